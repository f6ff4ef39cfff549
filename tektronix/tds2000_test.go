package tektronix

import (
	"errors"
	"strings"
	"testing"
)

func TestNotOpen(t *testing.T) {
	s, _ := NewMock("1")
	if err := s.Ready(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
	if _, err := s.GetValue(1); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestCommands(t *testing.T) {
	s, m := NewMock("1")
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Ready(); err != nil {
		t.Fatal(err)
	}
	if err := s.Setup(2, 3, "PK2pk"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Recall(4); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"ACQuire:STATE RUN",
		"ACQuire:STOPAfter SEQuence",
		"MEASUrement:MEAS2:SOUrce CH3",
		"MEASUrement:MEAS2:TYPE PK2pk",
		"SAVE:SETUP 1",
		"RECALL:SETUP 4",
	}
	if strings.Join(m.Commands, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, m.Commands)
	}
}

func TestGetValue(t *testing.T) {
	s, m := NewMock("2.48E-3")
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetValue(1)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.48e-3 {
		t.Errorf("expected 2.48e-3, got %g", v)
	}
	if m.Commands[0] != "MEASUrement:MEAS1:VALue?" {
		t.Errorf("unexpected query %q", m.Commands[0])
	}
	if _, err = s.GetValue(6); err == nil {
		t.Error("expected measurement 6 to be rejected")
	}
}

func TestResourceParsed(t *testing.T) {
	s, err := New(DefaultResource)
	if err != nil {
		t.Fatal(err)
	}
	if s.Resource.Serial != "C015987" {
		t.Errorf("unexpected serial %q", s.Resource.Serial)
	}
	if _, err = New("TCPIP::1.2.3.4::INSTR"); err == nil {
		t.Error("expected a non-USB resource to be rejected")
	}
}
