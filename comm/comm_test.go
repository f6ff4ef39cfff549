package comm_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/plume-lab/plume/comm"
)

// scriptedConn answers every write with the next scripted response
type scriptedConn struct {
	mu        sync.Mutex
	responses [][]byte
	written   [][]byte
	pending   bytes.Buffer
	closed    bool
}

func (s *scriptedConn) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, append([]byte{}, b...))
	if len(s.responses) > 0 {
		s.pending.Write(s.responses[0])
		s.responses = s.responses[1:]
	}
	return len(b), nil
}

func (s *scriptedConn) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		return 0, io.EOF
	}
	return s.pending.Read(b)
}

func (s *scriptedConn) Close() error {
	s.closed = true
	return nil
}

func newDevice(conn *scriptedConn, term *comm.Terminators) *comm.RemoteDevice {
	rd := comm.NewRemoteDevice("test", false, term, nil)
	rd.Maker = func() (io.ReadWriteCloser, error) { return conn, nil }
	return rd
}

func TestExchangeAppendsTxAndStripsRx(t *testing.T) {
	conn := &scriptedConn{responses: [][]byte{[]byte("ok\r\n")}}
	rd := newDevice(conn, &comm.Terminators{Rx: comm.LF, Tx: comm.LF})
	resp, err := rd.Exchange([]byte("*RST"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "ok\r" {
		t.Errorf("expected response ok\\r, got %q", resp)
	}
	if string(conn.written[0]) != "*RST\n" {
		t.Errorf("expected *RST\\n on the wire, got %q", conn.written[0])
	}
	if !conn.closed {
		t.Error("connection was not closed after the exchange")
	}
}

func TestExchangeNoResponse(t *testing.T) {
	conn := &scriptedConn{}
	rd := newDevice(conn, nil)
	_, err := rd.Exchange([]byte("F "))
	if !errors.Is(err, comm.ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestExchangeUnterminated(t *testing.T) {
	conn := &scriptedConn{responses: [][]byte{[]byte("partial")}}
	rd := newDevice(conn, nil)
	resp, err := rd.Exchange([]byte("V1 "))
	if !errors.Is(err, comm.ErrTerminatorNotFound) {
		t.Errorf("expected ErrTerminatorNotFound, got %v", err)
	}
	if string(resp) != "partial" {
		t.Errorf("expected partial data to be returned, got %q", resp)
	}
}

func TestExchangeUntilResendsUntilAck(t *testing.T) {
	conn := &scriptedConn{responses: [][]byte{
		[]byte("?1\r\n"),
		[]byte("?1\r\n"),
		[]byte("ok\r\n"),
	}}
	rd := newDevice(conn, &comm.Terminators{Rx: comm.LF, Tx: comm.LF})
	rep := comm.Repeat{Tries: 5, Interval: time.Millisecond}
	_, err := rd.ExchangeUntil([]byte(":PULSE1:WIDTH 0.001"), []byte("ok"), rep)
	if err != nil {
		t.Fatal(err)
	}
	if len(conn.written) != 3 {
		t.Errorf("expected 3 transmissions, got %d", len(conn.written))
	}
}

func TestExchangeUntilIsBounded(t *testing.T) {
	responses := make([][]byte, 10)
	for i := range responses {
		responses[i] = []byte("?5\r\n")
	}
	conn := &scriptedConn{responses: responses}
	rd := newDevice(conn, &comm.Terminators{Rx: comm.LF, Tx: comm.LF})
	rep := comm.Repeat{Tries: 4, Interval: time.Millisecond}
	_, err := rd.ExchangeUntil([]byte("*RST"), []byte("ok"), rep)
	var ackErr *comm.AckError
	if !errors.As(err, &ackErr) {
		t.Fatalf("expected *AckError, got %v", err)
	}
	if !errors.Is(err, comm.ErrNoAck) {
		t.Error("AckError does not unwrap to ErrNoAck")
	}
	if ackErr.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", ackErr.Attempts)
	}
	if len(conn.written) != 4 {
		t.Errorf("expected 4 transmissions, got %d", len(conn.written))
	}
}

func TestExchangeUntilSingleTry(t *testing.T) {
	conn := &scriptedConn{responses: [][]byte{[]byte("no\n"), []byte("ok\n")}}
	rd := newDevice(conn, &comm.Terminators{Rx: comm.LF, Tx: comm.LF})
	_, err := rd.ExchangeUntil([]byte("X"), []byte("ok"), comm.Repeat{Tries: 1})
	if !errors.Is(err, comm.ErrNoAck) {
		t.Errorf("expected ErrNoAck, got %v", err)
	}
	if len(conn.written) != 1 {
		t.Errorf("expected exactly one transmission, got %d", len(conn.written))
	}
}

func TestAcknowledgedIgnoresCR(t *testing.T) {
	if !comm.Acknowledged([]byte("ok\r"), []byte("ok")) {
		t.Error("ok\\r should match ok")
	}
	if !comm.Acknowledged([]byte("ok"), []byte("ok\r")) {
		t.Error("ok should match ok\\r")
	}
	if comm.Acknowledged([]byte("ok "), []byte("ok")) {
		t.Error("trailing space must not match")
	}
}

func TestMakeSerConfDefaults(t *testing.T) {
	cfg, err := comm.MakeSerConf("/dev/ttyUSB0", comm.SerialParams{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Baud != 115200 || cfg.Size != 8 || cfg.ReadTimeout != 1500*time.Millisecond {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	_, err = comm.MakeSerConf("COM3", comm.SerialParams{Parity: "sideways"})
	if err == nil {
		t.Error("expected an error for an unknown parity")
	}
}
