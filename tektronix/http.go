package tektronix

import (
	"go/types"
	"net/http"

	"github.com/plume-lab/plume/generichttp"
)

// Measurement is the body of a POST to /measurement/{n}
type Measurement struct {
	// Src is the input channel, 1-4
	Src int `json:"src"`

	// Type is the measurement, e.g. FREQuency, PERIod, MEAN, PK2pk, RISe
	Type string `json:"type"`
}

// HTTPWrapper provides HTTP bindings on top of an open TDS2000
type HTTPWrapper struct {
	*TDS2000

	// RouteTable maps method, path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(s *TDS2000) HTTPWrapper {
	w := HTTPWrapper{TDS2000: s}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/ready"}:           generichttp.Action(s.Ready),
		{Method: http.MethodGet, Path: "/measurement/{n}"}:  w.GetMeasurement,
		{Method: http.MethodPost, Path: "/measurement/{n}"}: w.SetupMeasurement,
		{Method: http.MethodPost, Path: "/setup/save"}:      generichttp.SetInt(s.Save),
		{Method: http.MethodPost, Path: "/setup/recall"}:    generichttp.SetInt(s.Recall),
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetMeasurement replies with the value of measurement slot n
func (h HTTPWrapper) GetMeasurement(w http.ResponseWriter, r *http.Request) {
	n, ok := generichttp.IntParam(w, r, "n")
	if !ok {
		return
	}
	v, err := h.TDS2000.GetValue(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: v}
	hp.EncodeAndRespond(w, r)
}

// SetupMeasurement assigns a source and type to measurement slot n
func (h HTTPWrapper) SetupMeasurement(w http.ResponseWriter, r *http.Request) {
	n, ok := generichttp.IntParam(w, r, "n")
	if !ok {
		return
	}
	var m Measurement
	if !generichttp.Decode(w, r, &m) {
		return
	}
	if err := h.TDS2000.Setup(n, m.Src, m.Type); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
