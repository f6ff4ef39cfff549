package motion

import (
	"go/types"
	"net/http"

	"github.com/plume-lab/plume/generichttp"
)

// Scanner steps through a fixed pattern of sites
type Scanner interface {
	// Next moves to the next site
	Next() error

	// Reset restarts the pattern without moving
	Reset()

	// Done is true once the pattern is exhausted
	Done() bool
}

// HTTPScan adds /raster/step, /raster/reset and /raster/done to the table
func HTTPScan(s Scanner, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/raster/step"}] = generichttp.Action(s.Next)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/raster/reset"}] = func(w http.ResponseWriter, r *http.Request) {
		s.Reset()
		w.WriteHeader(http.StatusOK)
	}
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/raster/done"}] = func(w http.ResponseWriter, r *http.Request) {
		hp := generichttp.HumanPayload{T: types.Bool, Bool: s.Done()}
		hp.EncodeAndRespond(w, r)
	}
}
