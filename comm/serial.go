package comm

import (
	"fmt"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// SerialParams are the user-facing serial port settings, as they appear in
// configuration files
type SerialParams struct {
	// Baud is the baud rate, 115200 if zero
	Baud int `yaml:"Baud"`

	// Size is the byte size in bits, 8 if zero
	Size byte `yaml:"Size"`

	// Parity is one of none, odd, even, mark, space.  none if empty
	Parity string `yaml:"Parity"`

	// StopBits is one of 1, 1.5, 2.  1 if empty
	StopBits string `yaml:"StopBits"`

	// ReadTimeout bounds a single read, 1.5 s if zero
	ReadTimeout time.Duration `yaml:"ReadTimeout"`
}

// DefaultSerialParams are 115200 8N1 with a 1.5 second read timeout
var DefaultSerialParams = SerialParams{
	Baud:        115200,
	Size:        8,
	Parity:      "none",
	StopBits:    "1",
	ReadTimeout: 1500 * time.Millisecond,
}

// MakeSerConf makes a new serial.Config for the port at addr, filling any
// zero fields of p with DefaultSerialParams
func MakeSerConf(addr string, p SerialParams) (*serial.Config, error) {
	if p.Baud == 0 {
		p.Baud = DefaultSerialParams.Baud
	}
	if p.Size == 0 {
		p.Size = DefaultSerialParams.Size
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = DefaultSerialParams.ReadTimeout
	}
	var parity serial.Parity
	switch strings.ToLower(p.Parity) {
	case "", "none", "n":
		parity = serial.ParityNone
	case "odd", "o":
		parity = serial.ParityOdd
	case "even", "e":
		parity = serial.ParityEven
	case "mark", "m":
		parity = serial.ParityMark
	case "space", "s":
		parity = serial.ParitySpace
	default:
		return nil, fmt.Errorf("unknown parity %q", p.Parity)
	}
	var stop serial.StopBits
	switch p.StopBits {
	case "", "1":
		stop = serial.Stop1
	case "1.5":
		stop = serial.Stop1Half
	case "2":
		stop = serial.Stop2
	default:
		return nil, fmt.Errorf("unknown stop bits %q", p.StopBits)
	}
	return &serial.Config{
		Name:        addr,
		Baud:        p.Baud,
		Size:        p.Size,
		Parity:      parity,
		StopBits:    stop,
		ReadTimeout: p.ReadTimeout}, nil
}
