// Package imgrec contains an image recorder used to save camera frames to disk.
package imgrec

import (
	"fmt"
	"go/types"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/plume-lab/plume/generichttp"
)

// Recorder saves FITS files in yyyy-mm-dd subfolders of Root.  Files are
// either given a name by the caller or numbered Prefix000001.fits,
// Prefix000002.fits, ...
type Recorder struct {
	mu sync.Mutex

	// counter is the last number used for an unnamed file
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for numbered filenames
	Prefix string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool

	// now is time.Now, replaced in tests
	now func() time.Time
}

// NewRecorder returns an enabled recorder writing under root
func NewRecorder(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, Enabled: true}
}

// Folder returns the dated folder for today, creating it if needed
func (r *Recorder) Folder() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.folder()
}

func (r *Recorder) folder() (string, error) {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	fldr := filepath.Join(r.Root, now().Format("2006-01-02"))
	return fldr, os.MkdirAll(fldr, 0777)
}

// Save writes img to <Root>/<date>/<name>.fits and returns the path written.
// If name is empty, the next number after the highest in the folder is used.
func (r *Recorder) Save(name string, metadata []fitsio.Card, img *image.Gray16) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr, err := r.folder()
	if err != nil {
		return "", err
	}
	if name == "" {
		r.counter = r.scan(fldr) + 1
		name = fmt.Sprintf("%s%06d", r.Prefix, r.counter)
	}
	fn := filepath.Join(fldr, name+".fits")
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	err = WriteFITS(fid, metadata, img)
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", fn, err)
	}
	return fn, nil
}

// scan returns the highest numbered file with the recorder's prefix in fldr,
// or zero if there are none
func (r *Recorder) scan(fldr string) int {
	files, err := os.ReadDir(fldr)
	if err != nil {
		return r.counter
	}
	count := 0
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	return count
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	if !generichttp.Decode(w, r, &str) {
		return
	}
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Root = str.Str
	rec.counter = 0
	_, err := rec.folder()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Root}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	if !generichttp.Decode(w, r, &str) {
		return
	}
	h.mu.Lock()
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Prefix}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.Recorder.Enabled}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	if !generichttp.Decode(w, r, &bT) {
		return
	}
	h.mu.Lock()
	h.Recorder.Enabled = bT.Bool
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
