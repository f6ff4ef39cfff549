package tdc

import (
	"errors"
	"fmt"
)

// ErrUnknownUnit is returned by ConvertUnits for a unit other than ns, us, ms, s
var ErrUnknownUnit = errors.New("unknown time unit")

var unitScale = map[string]float64{
	"ns": 1,
	"us": 1e-3,
	"ms": 1e-6,
	"s":  1e-9,
}

// ConvertUnits scales times in ns to the given unit, one of ns, us, ms, s
func ConvertUnits(ns []uint64, unit string) ([]float64, error) {
	scale, ok := unitScale[unit]
	if !ok {
		return nil, fmt.Errorf("%w %q, use ns, us, ms or s", ErrUnknownUnit, unit)
	}
	out := make([]float64, len(ns))
	for i, v := range ns {
		out[i] = float64(v) * scale
	}
	return out, nil
}
