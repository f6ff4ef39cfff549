// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
)

// ManipulableLock is a lock that can be manipulated over HTTP and guards
// handlers with its Check middleware
type ManipulableLock interface {
	// Check is the middleware that bounces requests while locked
	Check(http.Handler) http.Handler

	// Inject adds the routes that manipulate the lock
	Inject(generichttp.HTTPer)
}

// Inject adds the lock routes of l to other
func Inject(other generichttp.HTTPer, l ManipulableLock) {
	l.Inject(other)
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of path fragments not to protect
type Locker struct {
	mu       sync.Mutex
	isLocked bool

	// DoNotProtect is a list of paths not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "lock"
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock the locker
func (l *Locker) Lock() {
	l.mu.Lock()
	l.isLocked = true
	l.mu.Unlock()
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.isLocked = false
	l.mu.Unlock()
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

func unprotected(path string, skip []string) bool {
	for _, str := range skip {
		if strings.Contains(path, str) {
			return true
		}
	}
	return false
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && !unprotected(r.URL.Path, l.DoNotProtect) {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet calls Lock or Unlock based on json:bool on the request body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := generichttp.BoolT{}
	if !generichttp.Decode(w, r, &b) {
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() over HTTP as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}

// Inject adds GET and POST /lock to other
func (l *Locker) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// AxisLocker is a Locker for motion controllers that can also lock single
// axes through /axis/{axis}/lock
type AxisLocker struct {
	*Locker

	mu   sync.Mutex
	axes map[string]bool
}

// NewAL returns a new AxisLocker
func NewAL() *AxisLocker {
	return &AxisLocker{Locker: New(), axes: map[string]bool{}}
}

// LockAxis locks one axis
func (al *AxisLocker) LockAxis(axis string) {
	al.mu.Lock()
	al.axes[axis] = true
	al.mu.Unlock()
}

// UnlockAxis unlocks one axis
func (al *AxisLocker) UnlockAxis(axis string) {
	al.mu.Lock()
	delete(al.axes, axis)
	al.mu.Unlock()
}

// AxisLocked returns true if the axis or the whole controller is locked
func (al *AxisLocker) AxisLocked(axis string) bool {
	if al.Locked() {
		return true
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.axes[axis]
}

// axisOf returns the segment following "axis" in a path, if there is one
func axisOf(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "axis" {
			return parts[i+1], true
		}
	}
	return "", false
}

// Check bounces requests while the controller is locked, and requests to a
// locked axis
func (al *AxisLocker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !unprotected(r.URL.Path, al.DoNotProtect) {
			if al.Locked() {
				w.WriteHeader(http.StatusLocked)
				return
			}
			if axis, ok := axisOf(r.URL.Path); ok && al.AxisLocked(axis) {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSetAxis locks or unlocks the axis in the path based on json:bool
func (al *AxisLocker) HTTPSetAxis(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	b := generichttp.BoolT{}
	if !generichttp.Decode(w, r, &b) {
		return
	}
	if b.Bool {
		al.LockAxis(axis)
	} else {
		al.UnlockAxis(axis)
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGetAxis returns AxisLocked over HTTP as JSON
func (al *AxisLocker) HTTPGetAxis(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: al.AxisLocked(chi.URLParam(r, "axis"))}
	hp.EncodeAndRespond(w, r)
}

// Inject adds /lock and /axis/{axis}/lock to other
func (al *AxisLocker) Inject(other generichttp.HTTPer) {
	al.Locker.Inject(other)
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/lock"}] = al.HTTPGetAxis
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/lock"}] = al.HTTPSetAxis
}
