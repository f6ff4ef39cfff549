// Package timetag exposes time-to-digital converters over HTTP
package timetag

import (
	"context"
	"net/http"
	"time"

	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/tdc"
)

// Acquirer reads out one buffer of timestamped events
type Acquirer interface {
	Start(ctx context.Context) (tdc.Capture, error)
}

// Acquisition is the JSON reply of /acquire
type Acquisition struct {
	// Unit of Times
	Unit string `json:"unit"`

	// Times of each event
	Times []float64 `json:"times"`

	// Patterns of each event, "0110" or 6
	Patterns []interface{} `json:"patterns"`

	// Channels active in each event, CH4 first
	Channels [][]string `json:"channels"`

	// Counts per channel over the acquisition
	Counts map[string]int `json:"counts"`
}

// NewAcquisition converts a capture for transmission
func NewAcquisition(c tdc.Capture, unit string, f tdc.PatternFormat) (Acquisition, error) {
	times, err := tdc.ConvertUnits(tdc.Times(c.Events), unit)
	if err != nil {
		return Acquisition{}, err
	}
	pats := make([]interface{}, len(c.Events))
	for i, e := range c.Events {
		pats[i] = f.Render(e.Pattern)
	}
	return Acquisition{
		Unit:     unit,
		Times:    times,
		Patterns: pats,
		Channels: c.Channels,
		Counts:   c.Counts.Map()}, nil
}

// HTTPAcquire adds GET /acquire to the table.  Each request reads out the
// device once and is abandoned after timeout
func HTTPAcquire(a Acquirer, timeout time.Duration, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/acquire"}] = Acquire(a, timeout)
}

// Acquire returns a handler that reads out the device.
//
// Query parameters:
//	units    ns (default), us, ms or s
//	patterns bits (default) or int
//	fmt      json (default) or csv
func Acquire(a Acquirer, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		unit := q.Get("units")
		if unit == "" {
			unit = "ns"
		}
		if _, err := tdc.ConvertUnits(nil, unit); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pf, err := tdc.ParsePatternFormat(q.Get("patterns"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format := q.Get("fmt")
		if format != "" && format != "json" && format != "csv" {
			http.Error(w, "fmt must be json or csv", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		c, err := a.Start(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", "attachment; filename=events.csv")
			if err = tdc.EncodeCSV(w, c.Events, unit); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		acq, err := NewAcquisition(c, unit, pf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		generichttp.Reply(w, acq)
	}
}
