package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/util"
)

var errClamped = errors.New("requested position violates software limits, aborted")

// LimitMiddleware imposes axis-specific software limits on motion.  Moves
// that would leave the limits are answered with 400 and never reach the mover.
type LimitMiddleware struct {
	// Limits contains the server imposed limits on the controller
	Limits map[string]util.Limiter

	// Mov is a reference to the mover, used to query axis positions
	Mov Mover
}

// Check verifies if a motion would violate the axis limit, if it exists,
// and if it does, responds with StatusBadRequest
// otherwise, flows control to the next handler
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/pos") {
			next.ServeHTTP(w, r)
			return
		}
		// the middleware runs before routing, so the axis comes from the path
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 {
			next.ServeHTTP(w, r)
			return
		}
		axis := parts[len(parts)-2]
		limiter, ok := l.Limits[axis]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		_, relative, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// downstream handlers want the body too; read it here and paste it back
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		f := generichttp.FloatT{}
		err = json.Unmarshal(body, &f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := f.F64
		if relative {
			curr, err := l.Mov.GetPos(axis)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			cmd += curr
		}
		if !limiter.Check(cmd) {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject places a /axis/{axis}/limits route on the table of the HTTPer
func (l *LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}] = l.GetLimits
}

// GetLimits replies with the limits of an axis, or null if it has none
func (l *LimitMiddleware) GetLimits(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	lim, ok := l.Limits[axis]
	if !ok {
		generichttp.Reply(w, nil)
		return
	}
	generichttp.Reply(w, lim)
}
