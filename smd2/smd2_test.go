package smd2

import (
	"errors"
	"testing"
	"time"

	"github.com/plume-lab/plume/comm"
)

func newTestDriver() (*Driver, *MockStage, *comm.Mock) {
	stage := &MockStage{}
	m := comm.NewMock(stage.Respond)
	d, _ := NewMock()
	d.UseMock(m)
	return d, stage, m
}

func TestRelativeMoves(t *testing.T) {
	d, stage, m := newTestDriver()
	if _, err := d.Forward(500); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Right(200); err != nil {
		t.Fatal(err)
	}
	if stage.Pos(Motor1) != 500 || stage.Pos(Motor2) != -200 {
		t.Errorf("expected (500, -200), got (%d, %d)", stage.Pos(Motor1), stage.Pos(Motor2))
	}
	w := m.Written()
	want := []string{"B1 \r", "+500\r", "F \r", "B2 \r", "-200\r", "F \r"}
	for i := range want {
		if w[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], w[i])
		}
	}
}

func TestWaitPollsUntilIdle(t *testing.T) {
	d, stage, m := newTestDriver()
	stage.Busy = 3
	if _, err := d.Left(10); err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, c := range m.Written() {
		if c == "F \r" {
			n++
		}
	}
	if n != 4 {
		t.Errorf("expected 4 status queries, got %d", n)
	}
}

func TestWaitIsBounded(t *testing.T) {
	d, stage, _ := newTestDriver()
	stage.Busy = 1 << 30
	d.MaxWait = 20 * time.Millisecond
	_, err := d.Back(10)
	if !errors.Is(err, ErrStillMoving) {
		t.Errorf("expected ErrStillMoving, got %v", err)
	}
}

func TestPositionAndHome(t *testing.T) {
	d, stage, m := newTestDriver()
	if err := d.MoveTo(100, 200); err != nil {
		t.Fatal(err)
	}
	y, err := d.Position(Motor1)
	if err != nil {
		t.Fatal(err)
	}
	if y != 200 || stage.Pos(Motor2) != 100 {
		t.Errorf("expected (100, 200), got (%d, %d)", stage.Pos(Motor2), y)
	}
	if err = d.GoHome(); err != nil {
		t.Fatal(err)
	}
	if stage.Pos(Motor1) != 0 || stage.Pos(Motor2) != 0 {
		t.Error("GoHome did not return both motors to zero")
	}
	found := false
	for _, c := range m.Written() {
		if c == "G+0 \r" {
			found = true
		}
	}
	if !found {
		t.Error("expected G+0 to be sent")
	}
}

func TestParsePosition(t *testing.T) {
	p, err := parsePosition([]byte("V1-250"))
	if err != nil || p != -250 {
		t.Errorf("parsePosition = %d, %v", p, err)
	}
	if _, err = parsePosition([]byte("V1")); err == nil {
		t.Error("expected a short reply to be rejected")
	}
}

func TestMover(t *testing.T) {
	d, stage, _ := newTestDriver()
	if err := d.MoveAbs("2", 300); err != nil {
		t.Fatal(err)
	}
	if err := d.MoveRel("2", -50); err != nil {
		t.Fatal(err)
	}
	pos, err := d.GetPos("2")
	if err != nil || pos != 250 {
		t.Errorf("GetPos = %g, %v", pos, err)
	}
	if err = d.Home("2"); err != nil || stage.Pos(Motor2) != 0 {
		t.Errorf("Home left motor 2 at %d, %v", stage.Pos(Motor2), err)
	}
	if _, err = d.GetPos("3"); err == nil {
		t.Error("expected axis 3 to be rejected")
	}
	ok, err := d.GetInPosition("1")
	if err != nil || !ok {
		t.Errorf("expected the idle stage to be in position, got %v, %v", ok, err)
	}
}

func TestRasterSerpentine(t *testing.T) {
	d, stage, _ := newTestDriver()
	r := NewRaster(500, 1000)
	type site struct{ x, y int }
	var sites []site
	for i := 0; i < 20 && !r.Done; i++ {
		if err := d.RasterStep(r); err != nil {
			t.Fatal(err)
		}
		sites = append(sites, site{stage.Pos(Motor2), stage.Pos(Motor1)})
	}
	want := []site{{0, 500}, {500, 500}, {1000, 500}, {1000, 1000}}
	if len(sites) != len(want) {
		t.Fatalf("expected %d sites, got %v", len(want), sites)
	}
	for i := range want {
		if sites[i] != want[i] {
			t.Errorf("site %d: expected %v, got %v", i, want[i], sites[i])
		}
	}
	if !r.Reversed {
		t.Error("expected the raster to be running back towards zero")
	}
}
