package timetag

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/plume-lab/plume/tdc"
)

type fixedCapture struct {
	c   tdc.Capture
	err error
}

func (f fixedCapture) Start(ctx context.Context) (tdc.Capture, error) {
	return f.c, f.err
}

func capture() tdc.Capture {
	events := []tdc.Event{{Time: 2000, Pattern: 0b0110}, {Time: 5000, Pattern: 0b0001}}
	chans, counts := tdc.ExpandChannels(tdc.Patterns(events))
	return tdc.Capture{Events: events, Channels: chans, Counts: counts}
}

func get(h http.HandlerFunc, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestAcquireJSON(t *testing.T) {
	h := Acquire(fixedCapture{c: capture()}, time.Second)
	w := get(h, "/acquire?units=us&patterns=int")
	if w.Code != http.StatusOK {
		t.Fatalf("acquire replied %d %s", w.Code, w.Body)
	}
	var acq struct {
		Unit     string         `json:"unit"`
		Times    []float64      `json:"times"`
		Patterns []int          `json:"patterns"`
		Channels [][]string     `json:"channels"`
		Counts   map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &acq); err != nil {
		t.Fatal(err)
	}
	if acq.Unit != "us" || len(acq.Times) != 2 || math.Abs(acq.Times[0]-2) > 1e-12 || math.Abs(acq.Times[1]-5) > 1e-12 {
		t.Errorf("unexpected times %v %s", acq.Times, acq.Unit)
	}
	if acq.Patterns[0] != 6 || acq.Patterns[1] != 1 {
		t.Errorf("unexpected patterns %v", acq.Patterns)
	}
	if acq.Counts["CH1"] != 1 || acq.Counts["CH2"] != 1 || acq.Counts["CH3"] != 1 || acq.Counts["CH4"] != 0 {
		t.Errorf("unexpected counts %v", acq.Counts)
	}
}

func TestAcquireCSV(t *testing.T) {
	h := Acquire(fixedCapture{c: capture()}, time.Second)
	w := get(h, "/acquire?fmt=csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || lines[1] != "2000,0110,CH3 CH2" {
		t.Errorf("unexpected csv %q", lines)
	}
}

func TestAcquireBadQuery(t *testing.T) {
	h := Acquire(fixedCapture{c: capture()}, time.Second)
	for _, url := range []string{"/acquire?units=furlongs", "/acquire?patterns=hex", "/acquire?fmt=xml"} {
		if w := get(h, url); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", url, w.Code)
		}
	}
	h = Acquire(fixedCapture{err: errors.New("no echo")}, time.Second)
	if w := get(h, "/acquire"); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on a device error, got %d", w.Code)
	}
}

func TestAcquireFromMockBoard(t *testing.T) {
	uno := tdc.NewMockUNO(50, 7)
	w := get(Acquire(uno, 5*time.Second), "/acquire")
	if w.Code != http.StatusOK {
		t.Fatalf("acquire replied %d %s", w.Code, w.Body)
	}
	var acq Acquisition
	if err := json.Unmarshal(w.Body.Bytes(), &acq); err != nil {
		t.Fatal(err)
	}
	if len(acq.Times) != 50 {
		t.Errorf("expected 50 events, got %d", len(acq.Times))
	}
}
