package quantumcomposers

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/pulsegen"
)

func TestSetChannelCommands(t *testing.T) {
	g, m := NewMock()
	c := pulsegen.NewChannel(0.0005, 8e-6)
	c.Ref = "B"
	err := g.SetChannel("A", c)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		":PULSE1:SYNC CHB\n",
		":PULSE1:CMODE SINGLE\n",
		":PULSE1:OUTPUT:AMPLITUDE 3V\n",
		":PULSE1:DELAY 0.0005\n",
		":PULSE1:WIDTH 8e-06\n",
		":PULSE1:OUTPUT:MODE TTL\n",
		":PULSE1:STATE ON\n",
	}
	got := m.Written()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSetChannelDisabled(t *testing.T) {
	g, m := NewMock()
	c := pulsegen.NewChannel(0, 1e-3)
	c.Enable = false
	if err := g.SetChannel("d", c); err != nil {
		t.Fatal(err)
	}
	got := m.Written()
	if got[len(got)-1] != ":PULSE4:STATE OFF\n" {
		t.Errorf("expected channel D to be disabled, last command %q", got[len(got)-1])
	}
}

func TestChannelNumber(t *testing.T) {
	for ch, n := range map[string]int{"A": 1, "B": 2, "C": 3, "D": 4} {
		got, err := ChannelNumber(ch)
		if err != nil || got != n {
			t.Errorf("ChannelNumber(%s) = %d, %v", ch, got, err)
		}
	}
	if _, err := ChannelNumber("E"); err == nil {
		t.Error("expected E to be rejected")
	}
}

func TestTriggerAndGate(t *testing.T) {
	g, m := NewMock()
	if err := g.SetTrigger(0.5, ""); err != nil {
		t.Fatal(err)
	}
	if err := g.SetGate(2.5, "LOW"); err != nil {
		t.Fatal(err)
	}
	want := ":PULSE0:TRIG:MODE TRIG\n:PULSE0:TRIGGER:LEVEL 0.5\n:PULSE0:TRIGGER:EDGE RISING\n" +
		":PULSE0:GATE:MODE PULSE\n:PULSE0:GATE:LEVEL 2.5\n:PULSE0:GATE:LOGIC LOW\n"
	if got := strings.Join(m.Written(), ""); got != want {
		t.Errorf("expected\n%q\ngot\n%q", want, got)
	}
	if err := g.SetTrigger(0.5, "SIDEWAYS"); err == nil {
		t.Error("expected a bad edge to be rejected")
	}
}

func TestUnacknowledgedIsBounded(t *testing.T) {
	g, _ := NewMock()
	g.UseMock(comm.NewMock(comm.Fixed("?2\r\n")))
	err := g.SetTrigger(1, pulsegen.Falling)
	if !errors.Is(err, comm.ErrNoAck) {
		t.Fatalf("expected ErrNoAck, got %v", err)
	}
	var ae *comm.AckError
	if errors.As(err, &ae) && ae.Attempts != g.Repeat.Tries {
		t.Errorf("expected %d attempts, got %d", g.Repeat.Tries, ae.Attempts)
	}
}

func TestSchedule(t *testing.T) {
	s := NewSchedule(1e-5, 1)
	want := Schedule{Pedal1: 0.0007865309, Pedal2: 0.0017885018, Flash: 0.0020099418}
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-12 }
	if !near(s.Pedal1, want.Pedal1) || !near(s.Pedal2, want.Pedal2) || !near(s.Flash, want.Flash) {
		t.Errorf("expected %+v, got %+v", want, s)
	}
}

func TestSetup(t *testing.T) {
	g, m := NewMock()
	sched, err := g.Setup(1e-5, 1, 0.0001, 0.0002)
	if err != nil {
		t.Fatal(err)
	}
	got := m.Written()
	if got[0] != "*RST\n" {
		t.Errorf("expected a reset first, got %q", got[0])
	}
	delays := map[string]float64{}
	for _, cmd := range got {
		if strings.Contains(cmd, ":DELAY ") {
			parts := strings.SplitN(strings.TrimSpace(cmd), " ", 2)
			v, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				t.Fatal(err)
			}
			delays[parts[0]] = v
		}
	}
	want := map[string]float64{
		":PULSE3:DELAY": 0,
		":PULSE1:DELAY": sched.Pedal1,
		":PULSE2:DELAY": sched.Pedal2,
		":PULSE4:DELAY": sched.Flash,
	}
	for k, v := range want {
		if delays[k] != v {
			t.Errorf("%s: expected %g, got %g", k, v, delays[k])
		}
	}
	// camera channel is programmed first, flashlamp last
	if !strings.HasPrefix(got[4], ":PULSE3:") || !strings.HasPrefix(got[len(got)-1], ":PULSE4:") {
		t.Errorf("channels programmed out of order: %q", got)
	}
}
