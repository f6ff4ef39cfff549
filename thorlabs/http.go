package thorlabs

import (
	"net/http"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/generichttp/camera"
	"github.com/plume-lab/plume/imgrec"
)

// HTTPWrapper provides HTTP bindings on top of a Camera
type HTTPWrapper struct {
	*Camera

	// RouteTable maps method, path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured.
// rec may be nil
func NewHTTPWrapper(c *Camera, rec *imgrec.Recorder) HTTPWrapper {
	w := HTTPWrapper{Camera: c}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/params"}:  w.GetParams,
		{Method: http.MethodPost, Path: "/params"}: w.SetParams,
	}
	camera.HTTPPicture(c, w.RouteTable, rec)
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(w)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetParams replies with the acquisition settings
func (h HTTPWrapper) GetParams(w http.ResponseWriter, r *http.Request) {
	generichttp.Reply(w, h.Camera.Params())
}

// SetParams applies acquisition settings sent as JSON, e.g.
// {"exposureUs": 1500, "framesPerTrigger": 1, "mode": 1}
func (h HTTPWrapper) SetParams(w http.ResponseWriter, r *http.Request) {
	var p Params
	if !generichttp.Decode(w, r, &p) {
		return
	}
	if err := h.Camera.SetParams(p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
