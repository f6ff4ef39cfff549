// Package pulsegen holds the settings shared by the digital delay / pulse
// generators.
package pulsegen

import "fmt"

// Channel describes the output of one channel
type Channel struct {
	// Delay from the reference, s
	Delay float64 `json:"delay"`

	// Width of the pulse, s
	Width float64 `json:"width"`

	// Amplitude in volts, only relevant in ADJUSTABLE mode
	Amplitude float64 `json:"amplitude"`

	// Mode is TTL or ADJUSTABLE
	Mode string `json:"mode"`

	// Ref is the channel the delay is measured from, T0 or a channel name
	Ref string `json:"ref"`

	// CMode is the channel mode, NORMAL, SINGLE, BURST or DCYCLE
	CMode string `json:"cmode"`

	// Enable turns the output on after it is configured
	Enable bool `json:"enable"`
}

// NewChannel returns a single shot 3 V TTL channel referenced to T0
func NewChannel(delay, width float64) Channel {
	return Channel{
		Delay:     delay,
		Width:     width,
		Amplitude: 3,
		Mode:      "TTL",
		Ref:       "T0",
		CMode:     "SINGLE",
		Enable:    true,
	}
}

// WithDefaults fills empty fields the way NewChannel would
func (c Channel) WithDefaults() Channel {
	if c.Amplitude == 0 {
		c.Amplitude = 3
	}
	if c.Mode == "" {
		c.Mode = "TTL"
	}
	if c.Ref == "" {
		c.Ref = "T0"
	}
	if c.CMode == "" {
		c.CMode = "SINGLE"
	}
	return c
}

// Edge values for triggers
const (
	Rising  = "RISING"
	Falling = "FALLING"
)

// CheckEdge returns an error if e is not RISING or FALLING.  Empty means RISING
func CheckEdge(e string) (string, error) {
	switch e {
	case "":
		return Rising, nil
	case Rising, Falling:
		return e, nil
	}
	return "", fmt.Errorf("edge %q must be %s or %s", e, Rising, Falling)
}

// Generator is what every pulse generator can do
type Generator interface {
	// Run starts the pulse train
	Run() ([]byte, error)

	// Stop stops it
	Stop() ([]byte, error)

	// Reset restores factory settings
	Reset() ([]byte, error)

	// SetChannel configures one output
	SetChannel(ch string, c Channel) error

	// SetTrigger enables external triggering
	SetTrigger(level float64, edge string) error
}
