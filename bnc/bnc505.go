// Package bnc provides a driver for the Berkeley Nucleonics model 505 pulse
// generator.
package bnc

import (
	"fmt"
	"strconv"

	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/pulsegen"
	"github.com/plume-lab/plume/util"
)

// Ack is the acknowledgement of a configuration command
var Ack = []byte("ok")

// Generator is a BNC 505
type Generator struct {
	*comm.RemoteDevice

	// Repeat bounds how long a configuration command is resent
	Repeat comm.Repeat
}

// NewGenerator makes a new Generator on the serial port at addr
func NewGenerator(addr string, params comm.SerialParams) (*Generator, error) {
	cfg, err := comm.MakeSerConf(addr, params)
	if err != nil {
		return nil, err
	}
	term := &comm.Terminators{Rx: comm.LF, Tx: comm.LF}
	rd := comm.NewRemoteDevice(addr, true, term, cfg)
	return &Generator{RemoteDevice: rd, Repeat: comm.DefaultRepeat}, nil
}

// Run starts the pulse train
func (g *Generator) Run() ([]byte, error) {
	return g.Exchange([]byte(":PULSE0:STATE ON"))
}

// Stop stops the pulse train
func (g *Generator) Stop() ([]byte, error) {
	return g.Exchange([]byte(":PULSE0:STATE OFF"))
}

// Reset restores the factory configuration
func (g *Generator) Reset() ([]byte, error) {
	return g.Exchange([]byte("*RST"))
}

func checkMem(mem int) error {
	if mem < 1 || mem > 10 {
		return fmt.Errorf("memory block %d must be between 1 and 10", mem)
	}
	return nil
}

// Save stores the current settings in memory block mem, 1-10
func (g *Generator) Save(mem int) ([]byte, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}
	// the firmware expects CRLF here
	return g.Exchange([]byte("*SAV " + strconv.Itoa(mem) + "\r"))
}

// Recall loads the settings in memory block mem, 1-10
func (g *Generator) Recall(mem int) ([]byte, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}
	return g.Exchange([]byte("*RCL " + strconv.Itoa(mem)))
}

// SetTrigger puts the generator in external trigger mode.  level is in
// volts, 0.2 to 15
func (g *Generator) SetTrigger(level float64, edge string) error {
	edge, err := pulsegen.CheckEdge(edge)
	if err != nil {
		return err
	}
	cmds := []string{
		":PULSE0:EXTernal:MODe TRIGger",
		":PULSE0:EXTernal:LEVel " + util.FormatFloat(level),
		":PULSE0:EXTernal:EDGe " + edge,
	}
	for _, cmd := range cmds {
		if _, err = g.ExchangeUntil([]byte(cmd), Ack, g.Repeat); err != nil {
			return err
		}
	}
	return nil
}

// SetChannel configures output ch, "1" or "2".  Ref is T0, T1 or T2 and is
// sent as is.  Mode and Enable are not used by this model.
func (g *Generator) SetChannel(ch string, c pulsegen.Channel) error {
	if ch != "1" && ch != "2" {
		return fmt.Errorf("channel %q must be 1 or 2", ch)
	}
	c = c.WithDefaults()
	pfx := ":PULSE" + ch + ":"
	cmds := []string{
		pfx + "SYNC " + c.Ref,
		pfx + "CMODE " + c.CMode,
		pfx + "OUTPUT:AMPLITUDE " + util.FormatFloat(c.Amplitude) + "V",
		pfx + "DELAY " + util.FormatFloat(c.Delay),
		pfx + "WIDTH " + util.FormatFloat(c.Width),
	}
	for _, cmd := range cmds {
		if _, err := g.ExchangeUntil([]byte(cmd), Ack, g.Repeat); err != nil {
			return fmt.Errorf("configuring channel %s: %w", ch, err)
		}
	}
	return nil
}

// NewMock returns a Generator that acknowledges everything, and the fake
// connection behind it
func NewMock() (*Generator, *comm.Mock) {
	m := comm.NewMock(comm.Fixed("ok\r\n"))
	rd := comm.NewRemoteDevice("mock-bnc505", false, &comm.Terminators{Rx: comm.LF, Tx: comm.LF}, nil)
	rd.UseMock(m)
	return &Generator{RemoteDevice: rd, Repeat: comm.Repeat{Tries: 3}}, m
}
