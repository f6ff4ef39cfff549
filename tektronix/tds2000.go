// Package tektronix provides a driver for Tektronix TDS2000 series
// oscilloscopes over USBTMC.
package tektronix

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/plume-lab/plume/scpi"
	"github.com/plume-lab/plume/usbtmc"
)

// DefaultResource is the TDS2014C on the ablation bench
const DefaultResource = "USB::0x0699::0x03A4::C015987::INSTR"

// ErrNotOpen is returned when a command is sent before Open
var ErrNotOpen = errors.New("oscilloscope is not open")

// Opener opens the connection to a scope
type Opener func(usbtmc.Resource) (io.ReadWriteCloser, error)

// OpenUSB opens a scope over USBTMC, asking it to end responses on a newline
func OpenUSB(r usbtmc.Resource) (io.ReadWriteCloser, error) {
	d, err := usbtmc.Open(r)
	if err != nil {
		return nil, err
	}
	lf := byte('\n')
	d.Term = &lf
	return d, nil
}

// TDS2000 is a TDS2000 series oscilloscope.  It owns its connection
// between Open and Close
type TDS2000 struct {
	scpi.SCPI

	// Resource identifies the scope on the bus
	Resource usbtmc.Resource

	// Opener is OpenUSB unless overridden
	Opener Opener

	conn io.ReadWriteCloser
}

// New creates a scope from a VISA resource string; it is not opened
func New(resource string) (*TDS2000, error) {
	r, err := usbtmc.ParseResource(resource)
	if err != nil {
		return nil, err
	}
	return &TDS2000{Resource: r, Opener: OpenUSB}, nil
}

// Open connects to the scope.  Opening an open scope does nothing
func (s *TDS2000) Open() error {
	if s.conn != nil {
		return nil
	}
	opener := s.Opener
	if opener == nil {
		opener = OpenUSB
	}
	conn, err := opener(s.Resource)
	if err != nil {
		return fmt.Errorf("opening oscilloscope %s: %w", s.Resource, err)
	}
	s.conn = conn
	s.Conn = conn
	return nil
}

// Close releases the connection
func (s *TDS2000) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.Conn = nil
	return err
}

func (s *TDS2000) write(cmds ...string) error {
	if s.conn == nil {
		return ErrNotOpen
	}
	for _, cmd := range cmds {
		if err := s.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Ready arms the scope for a single acquisition, after which it freezes
func (s *TDS2000) Ready() error {
	return s.write("ACQuire:STATE RUN", "ACQuire:STOPAfter SEQuence")
}

// Setup configures measurement n (1-5) to measure typ on channel src (1-4).
// typ is one of the TDS2000 measurement types, e.g. PK2pk, MEAN, FREQuency
func (s *TDS2000) Setup(n, src int, typ string) error {
	if err := checkMeas(n); err != nil {
		return err
	}
	if src < 1 || src > 4 {
		return fmt.Errorf("source channel %d must be between 1 and 4", src)
	}
	meas := "MEASUrement:MEAS" + strconv.Itoa(n)
	return s.write(
		meas+":SOUrce CH"+strconv.Itoa(src),
		meas+":TYPE "+typ)
}

// Save stores the front panel setup in memory location mem
func (s *TDS2000) Save(mem int) error {
	return s.write("SAVE:SETUP " + strconv.Itoa(mem))
}

// Recall restores the front panel setup from memory location mem
func (s *TDS2000) Recall(mem int) error {
	return s.write("RECALL:SETUP " + strconv.Itoa(mem))
}

// GetValue reads the value of measurement n (1-5)
func (s *TDS2000) GetValue(n int) (float64, error) {
	if err := checkMeas(n); err != nil {
		return 0, err
	}
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	return s.ReadFloat("MEASUrement:MEAS" + strconv.Itoa(n) + ":VALue?")
}

func checkMeas(n int) error {
	if n < 1 || n > 5 {
		return fmt.Errorf("measurement %d must be between 1 and 5", n)
	}
	return nil
}
