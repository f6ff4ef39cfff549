// Package delaygen exposes digital delay / pulse generators over HTTP
package delaygen

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/pulsegen"
)

// Trigger is the body of a /trigger request
type Trigger struct {
	Level float64 `json:"level"`
	Edge  string  `json:"edge"`
}

// Gate is the body of a /gate request
type Gate struct {
	Level float64 `json:"level"`
	Logic string  `json:"logic"`
}

// Gater is a generator with a gate input
type Gater interface {
	SetGate(level float64, logic string) error
}

// Memory is a generator that can store and restore its settings
type Memory interface {
	Save(mem int) ([]byte, error)
	Recall(mem int) ([]byte, error)
}

// HTTPGenerator adds routes for a pulse generator to the table.  Gate and
// memory routes are added when g supports them
func HTTPGenerator(g pulsegen.Generator, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/run"}] = generichttp.RawResponse(g.Run)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}] = generichttp.RawResponse(g.Stop)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/reset"}] = generichttp.RawResponse(g.Reset)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/channel/{ch}"}] = SetChannel(g)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/trigger"}] = SetTrigger(g)
	if gt, ok := g.(Gater); ok {
		table[generichttp.MethodPath{Method: http.MethodPost, Path: "/gate"}] = SetGate(gt)
	}
	if m, ok := g.(Memory); ok {
		table[generichttp.MethodPath{Method: http.MethodPost, Path: "/memory/{mem}/save"}] = memory(m.Save)
		table[generichttp.MethodPath{Method: http.MethodPost, Path: "/memory/{mem}/recall"}] = memory(m.Recall)
	}
}

// SetChannel configures the channel named in the path from a JSON
// pulsegen.Channel.  Omitted fields take the NewChannel defaults
func SetChannel(g pulsegen.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch := chi.URLParam(r, "ch")
		c := pulsegen.NewChannel(0, 0)
		if !generichttp.Decode(w, r, &c) {
			return
		}
		err := g.SetChannel(ch, c)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetTrigger enables the external trigger from a JSON Trigger
func SetTrigger(g pulsegen.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t Trigger
		if !generichttp.Decode(w, r, &t) {
			return
		}
		edge, err := pulsegen.CheckEdge(t.Edge)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = g.SetTrigger(t.Level, edge)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetGate enables the gate from a JSON Gate
func SetGate(g Gater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var gt Gate
		if !generichttp.Decode(w, r, &gt) {
			return
		}
		err := g.SetGate(gt.Level, gt.Logic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func memory(fcn func(int) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mem, ok := generichttp.IntParam(w, r, "mem")
		if !ok {
			return
		}
		generichttp.RawResponse(func() ([]byte, error) { return fcn(mem) })(w, r)
	}
}
