package quantumcomposers

import (
	"net/http"
	"strconv"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/generichttp/delaygen"
)

// Shot is the body of a /setup request
type Shot struct {
	// FlashDelay is the flashlamp delay after the laser shot, s
	FlashDelay float64 `json:"flashDelay"`

	// Skip is the number of laser shots skipped before the ablation shot
	Skip int `json:"skip"`

	// Width1 and Width2 are the pedal pulse widths, s
	Width1 float64 `json:"width1"`
	Width2 float64 `json:"width2"`
}

// HTTPWrapper provides HTTP bindings on top of a Generator
type HTTPWrapper struct {
	*Generator

	// RouteTable maps method, path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(g *Generator) HTTPWrapper {
	w := HTTPWrapper{Generator: g}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/setup"}:   w.HTTPSetup,
		{Method: http.MethodGet, Path: "/schedule"}: w.GetSchedule,
	}
	delaygen.HTTPGenerator(g, w.RouteTable)
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPSetup programs one ablation shot from a JSON Shot and replies with the
// Schedule that was sent
func (h HTTPWrapper) HTTPSetup(w http.ResponseWriter, r *http.Request) {
	var s Shot
	if !generichttp.Decode(w, r, &s) {
		return
	}
	sched, err := h.Generator.Setup(s.FlashDelay, s.Skip, s.Width1, s.Width2)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.Reply(w, sched)
}

// GetSchedule computes the schedule for the flashDelay and skip query
// parameters without talking to the generator
func (h HTTPWrapper) GetSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flash, err := strconv.ParseFloat(q.Get("flashDelay"), 64)
	if err != nil {
		http.Error(w, "flashDelay: "+err.Error(), http.StatusBadRequest)
		return
	}
	skip := 0
	if s := q.Get("skip"); s != "" {
		skip, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, "skip: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	generichttp.Reply(w, NewSchedule(flash, skip))
}
