// Package quantumcomposers provides a driver for the Quantum Composers 9520
// series digital delay / pulse generator.
//
// All commands are terminated by a line feed.  Configuration commands are
// answered with "ok" and are resent until that acknowledgement is seen.
package quantumcomposers

import (
	"fmt"
	"strings"

	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/pulsegen"
	"github.com/plume-lab/plume/util"
)

const (
	// LaserPeriod is the repetition period of the ablation laser, s
	LaserPeriod = 0.00099997090

	// PedalLead is how long before a laser shot the pedal pulse must be sent, s
	PedalLead = 0.00020844

	// precision of the generator's delay registers, decimal places
	precision = 11
)

// Ack is the acknowledgement of a configuration command
var Ack = []byte("ok")

// Generator is a QC9520
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

func (g *Generator) repeat(cmd string) error {
	_, err := g.ExchangeUntil([]byte(cmd), Ack, g.Repeat)
	return err
}

// Run starts the pulse train, like pressing the run/stop button
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

// ChannelNumber maps a channel letter A-D to its index 1-4
func ChannelNumber(ch string) (int, error) {
	ch = strings.ToUpper(ch)
	if len(ch) != 1 || ch[0] < 'A' || ch[0] > 'D' {
		return 0, fmt.Errorf("channel %q must be one of A, B, C, D", ch)
	}
	return int(ch[0]-'A') + 1, nil
}

// SetChannel configures channel ch (A-D).  A Ref other than T0 names a
// channel letter, e.g. "A" for CHA.
func (g *Generator) SetChannel(ch string, c pulsegen.Channel) error {
	n, err := ChannelNumber(ch)
	if err != nil {
		return err
	}
	for _, cmd := range channelCommands(n, c.WithDefaults()) {
		if err = g.repeat(cmd); err != nil {
			return fmt.Errorf("configuring channel %s: %w", ch, err)
		}
	}
	return nil
}

func channelCommands(n int, c pulsegen.Channel) []string {
	ref := c.Ref
	if ref != "T0" {
		ref = "CH" + ref
	}
	state := "OFF"
	if c.Enable {
		state = "ON"
	}
	pfx := fmt.Sprintf(":PULSE%d:", n)
	return []string{
		pfx + "SYNC " + ref,
		pfx + "CMODE " + c.CMode,
		pfx + "OUTPUT:AMPLITUDE " + util.FormatFloat(c.Amplitude) + "V",
		pfx + "DELAY " + util.FormatFloat(c.Delay),
		pfx + "WIDTH " + util.FormatFloat(c.Width),
		pfx + "OUTPUT:MODE " + c.Mode,
		pfx + "STATE " + state,
	}
}

// SetTrigger puts the generator in external trigger mode.  level is in
// volts, 0.2 to 15.  edge is RISING or FALLING, empty for RISING
func (g *Generator) SetTrigger(level float64, edge string) error {
	edge, err := pulsegen.CheckEdge(edge)
	if err != nil {
		return err
	}
	cmds := []string{
		":PULSE0:TRIG:MODE TRIG",
		":PULSE0:TRIGGER:LEVEL " + util.FormatFloat(level),
		":PULSE0:TRIGGER:EDGE " + edge,
	}
	for _, cmd := range cmds {
		if err = g.repeat(cmd); err != nil {
			return err
		}
	}
	return nil
}

// SetGate puts the generator in pulse-inhibit gate mode.  logic is HIGH or
// LOW, empty for HIGH
func (g *Generator) SetGate(level float64, logic string) error {
	if logic == "" {
		logic = "HIGH"
	}
	if logic != "HIGH" && logic != "LOW" {
		return fmt.Errorf("gate logic %q must be HIGH or LOW", logic)
	}
	cmds := []string{
		":PULSE0:GATE:MODE PULSE",
		":PULSE0:GATE:LEVEL " + util.FormatFloat(level),
		":PULSE0:GATE:LOGIC " + logic,
	}
	for _, cmd := range cmds {
		if err := g.repeat(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Schedule holds the channel delays of one ablation shot, s
type Schedule struct {
	// Pedal1 is the start of the first pedal pulse, channel A
	Pedal1 float64 `json:"pedal1"`

	// Pedal2 is the start of the second pedal pulse, channel B
	Pedal2 float64 `json:"pedal2"`

	// Flash is the start of the flashlamp pulse, channel D
	Flash float64 `json:"flash"`
}

// NewSchedule computes the delays for a flashlamp flashDelay seconds after
// the laser shot that follows skip skipped shots
func NewSchedule(flashDelay float64, skip int) Schedule {
	s := float64(skip)
	p1 := s*LaserPeriod - PedalLead - 0.000005
	return Schedule{
		Pedal1: util.Round(p1, precision),
		Pedal2: util.Round(p1+LaserPeriod, precision) + 2e-6,
		Flash:  util.Round((s+1)*LaserPeriod+flashDelay, precision),
	}
}

// Setup resets the generator and programs one ablation shot: the camera on
// C, pedal pulses of width1 and width2 on A and B, and the flashlamp on D
func (g *Generator) Setup(flashDelay float64, skip int, width1, width2 float64) (Schedule, error) {
	sched := NewSchedule(flashDelay, skip)
	if _, err := g.Reset(); err != nil {
		return sched, err
	}
	if err := g.SetTrigger(0.5, pulsegen.Rising); err != nil {
		return sched, err
	}
	channels := []struct {
		ch string
		c  pulsegen.Channel
	}{
		{"C", pulsegen.NewChannel(0, 0.0005)},
		{"A", pulsegen.NewChannel(sched.Pedal1, width1)},
		{"B", pulsegen.NewChannel(sched.Pedal2, width2)},
		{"D", pulsegen.NewChannel(sched.Flash, 8e-6)},
	}
	for _, ch := range channels {
		if err := g.SetChannel(ch.ch, ch.c); err != nil {
			return sched, err
		}
	}
	return sched, nil
}

// NewMock returns a Generator that acknowledges everything, and the fake
// connection behind it
func NewMock() (*Generator, *comm.Mock) {
	m := comm.NewMock(comm.Fixed("ok\r\n"))
	rd := comm.NewRemoteDevice("mock-qc9520", false, &comm.Terminators{Rx: comm.LF, Tx: comm.LF}, nil)
	rd.UseMock(m)
	return &Generator{RemoteDevice: rd, Repeat: comm.Repeat{Tries: 3}}, m
}
