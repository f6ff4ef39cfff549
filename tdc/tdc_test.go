package tdc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/plume-lab/plume/comm"
)

func wordsToStream(raws []uint32, patterns []Pattern, dummy []bool) []byte {
	words := make([]Word, len(raws))
	for i := range raws {
		words[i] = Word{Raw: raws[i], Pattern: patterns[i]}
		if dummy != nil {
			words[i].Dummy = dummy[i]
		}
	}
	return EncodeWords(words)
}

func TestDecodeLiteralLayout(t *testing.T) {
	// a single word, byte-swapped on the wire
	stream := []byte{0x21, 0x00, 0x00, 0x00, 0x46, 0x00, 0x00, 0x00}
	events, err := Decode(stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Time != 2 || events[0].Pattern != 1 {
		t.Errorf("first event decoded as %+v", events[0])
	}
	if events[1].Time != 4 || events[1].Pattern != 6 {
		t.Errorf("second event decoded as %+v", events[1])
	}
}

func TestDecodeNoRollover(t *testing.T) {
	raws := []uint32{5, 17, 17, 900, Period - 1}
	pats := []Pattern{1, 2, 4, 8, 15}
	events, err := Decode(wordsToStream(raws, pats, nil))
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range events {
		if e.Time != uint64(raws[i])*TickNS {
			t.Errorf("event %d: expected %d ns, got %d", i, uint64(raws[i])*TickNS, e.Time)
		}
		if e.Pattern != pats[i] {
			t.Errorf("event %d: expected pattern %s, got %s", i, pats[i], e.Pattern)
		}
	}
}

func TestDecodeOneRollover(t *testing.T) {
	raws := []uint32{100, 200, 50, 60}
	pats := []Pattern{1, 1, 1, 1}
	events, err := Decode(wordsToStream(raws, pats, nil))
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{200, 400, (50 + Period) * 2, (60 + Period) * 2}
	for i, e := range events {
		if e.Time != want[i] {
			t.Errorf("event %d: expected %d ns, got %d", i, want[i], e.Time)
		}
	}
}

func TestDecodeDummyWordsTrackRollover(t *testing.T) {
	raws := []uint32{100, 10, 20}
	pats := []Pattern{2, 0, 4}
	dummy := []bool{false, true, false}
	events, err := Decode(wordsToStream(raws, pats, dummy))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected the dummy word to be dropped, got %d events", len(events))
	}
	if events[1].Time != (20+Period)*2 {
		t.Errorf("dummy word did not count the rollover, got %d ns", events[1].Time)
	}
}

func TestDecodeUndercountsLargeGaps(t *testing.T) {
	// the second word physically arrives two periods after the first,
	// which the counter cannot distinguish from one
	raws := []uint32{10, 5}
	pats := []Pattern{1, 1}
	events, err := Decode(wordsToStream(raws, pats, nil))
	if err != nil {
		t.Fatal(err)
	}
	actual := uint64(5+2*Period) * TickNS
	if events[1].Time == actual {
		t.Fatal("a gap of two periods was not expected to be recoverable")
	}
	if events[1].Time != uint64(5+Period)*TickNS {
		t.Errorf("expected one rollover to be counted, got %d ns", events[1].Time)
	}
}

func TestDecodeBadLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3, 4, 5, 6, 7})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
	if fe.Len != 7 {
		t.Errorf("expected Len 7, got %d", fe.Len)
	}
}

func TestDecodeEmpty(t *testing.T) {
	events, err := Decode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := []Event{
		{Time: 10, Pattern: 1},
		{Time: 2 * (Period - 1), Pattern: 2},
		{Time: 2 * (Period + 3), Pattern: 4},
		{Time: 2 * (3*Period + 7), Pattern: 8},
		{Time: 2 * (3*Period + 7), Pattern: 3},
		{Time: 2 * (9 * Period), Pattern: 0},
	}
	stream, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d events, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("event %d: encoded %+v, decoded %+v", i, in[i], out[i])
		}
	}
}

func TestEncodeRejectsDisorder(t *testing.T) {
	_, err := Encode([]Event{{Time: 100}, {Time: 50}})
	if err == nil {
		t.Error("expected an error for events out of order")
	}
	_, err = Encode([]Event{{Time: 3}})
	if err == nil {
		t.Error("expected an error for a time that is not a whole tick")
	}
}

func TestExpandChannels(t *testing.T) {
	chans, counts := ExpandChannels([]Pattern{0x6})
	if strings.Join(chans[0], ",") != "CH3,CH2" {
		t.Errorf("expected CH3,CH2, got %v", chans[0])
	}
	if counts != (Counts{0, 1, 1, 0}) {
		t.Errorf("expected only CH2 and CH3 counted, got %v", counts)
	}
	chans, counts = ExpandChannels([]Pattern{0, 0xF, 0x1})
	if len(chans[0]) != 0 {
		t.Errorf("empty pattern expanded to %v", chans[0])
	}
	if strings.Join(chans[1], ",") != "CH4,CH3,CH2,CH1" {
		t.Errorf("full pattern expanded to %v", chans[1])
	}
	if counts != (Counts{2, 1, 1, 1}) {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestPatternRender(t *testing.T) {
	p := Pattern(6)
	if got := Bits.Render(p); got != "0110" {
		t.Errorf("expected 0110, got %v", got)
	}
	if got := Integer.Render(p); got != 6 {
		t.Errorf("expected 6, got %v", got)
	}
	parsed, err := ParsePattern("0110")
	if err != nil || parsed != p {
		t.Errorf("ParsePattern(0110) = %v, %v", parsed, err)
	}
	if _, err = ParsePattern("012"); err == nil {
		t.Error("expected an error for a malformed pattern")
	}
}

func TestConvertUnits(t *testing.T) {
	in := []uint64{1500, 2000000}
	cases := map[string][]float64{
		"ns": {1500, 2000000},
		"us": {1.5, 2000},
		"ms": {0.0015, 2},
		"s":  {1.5e-6, 0.002},
	}
	for unit, want := range cases {
		got, err := ConvertUnits(in, unit)
		if err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-12*math.Max(1, want[i]) {
				t.Errorf("%s: expected %g, got %g", unit, want[i], got[i])
			}
		}
	}
	_, err := ConvertUnits(in, "min")
	if !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestEncodeCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	err := EncodeCSV(buf, []Event{{Time: 2000, Pattern: 6}}, "ns")
	if err != nil {
		t.Fatal(err)
	}
	want := "time (ns),pattern,channels\n2000,0110,CH3 CH2\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestUNOStart(t *testing.T) {
	u := NewMockUNO(25, 1)
	c, err := u.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Events) != 25 {
		t.Fatalf("expected 25 events, got %d", len(c.Events))
	}
	total := 0
	for _, ch := range c.Channels {
		total += len(ch)
	}
	sum := 0
	for _, n := range c.Counts {
		sum += n
	}
	if sum != total {
		t.Errorf("counts sum to %d but %d channel activations were listed", sum, total)
	}
}

func TestUNOStartCRLF(t *testing.T) {
	events := []Event{{Time: 2, Pattern: 0b0001}, {Time: 10, Pattern: 0b0110}}
	stream, err := Encode(events)
	if err != nil {
		t.Fatal(err)
	}
	board := NewMockBoard(stream)
	board.CRLF = true
	u := NewMockUNO(0, 0)
	u.Maker = func() (io.ReadWriteCloser, error) { return board, nil }
	c, err := u.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Events) != 2 || c.Events[1] != events[1] {
		t.Errorf("expected %v, got %v", events, c.Events)
	}
}

func TestUNOMalformedStream(t *testing.T) {
	board := NewMockBoard([]byte{1, 2, 3, 4, 5})
	u := NewMockUNO(0, 0)
	u.Maker = func() (io.ReadWriteCloser, error) { return board, nil }
	_, err := u.Start(context.Background())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("expected *FormatError, got %v", err)
	}
}

type silentConn struct{ writes int }

func (s *silentConn) Write(b []byte) (int, error) { s.writes++; return len(b), nil }
func (s *silentConn) Read(b []byte) (int, error)  { return 0, io.EOF }
func (s *silentConn) Close() error                { return nil }

func TestUNOHandshakeIsBounded(t *testing.T) {
	conn := &silentConn{}
	rd := comm.NewRemoteDevice("silent", false, &comm.Terminators{Rx: comm.LF, Tx: comm.LF}, nil)
	rd.Maker = func() (io.ReadWriteCloser, error) { return conn, nil }
	u := &UNO{RemoteDevice: rd, Handshakes: 3, MaxLines: 3, Pace: time.Millisecond}
	_, err := u.Start(context.Background())
	if !errors.Is(err, ErrNoHandshake) {
		t.Errorf("expected ErrNoHandshake, got %v", err)
	}
	if conn.writes != 3 {
		t.Errorf("expected 3 start commands, got %d", conn.writes)
	}
}

func ExampleDecode() {
	stream := []byte{0x21, 0x00, 0x00, 0x00, 0x46, 0x00, 0x00, 0x00}
	events, _ := Decode(stream)
	for _, e := range events {
		fmt.Println(e.Time, e.Pattern)
	}
	// Output:
	// 2 0001
	// 4 0110
}
