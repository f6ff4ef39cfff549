package tdc

import (
	"bytes"
	"io"
	"math/rand"
	"sync"

	"github.com/plume-lab/plume/comm"
)

// MockBoard imitates the UNO firmware.  Every "start\n" written to it is
// echoed; after the echo the stream is sent once, followed by a newline.
type MockBoard struct {
	mu     sync.Mutex
	stream []byte
	out    bytes.Buffer
	sent   bool

	// CRLF ends every line with "\r\n" as Serial.println does
	CRLF bool
}

// NewMockBoard returns a board that will send stream after the handshake
func NewMockBoard(stream []byte) *MockBoard {
	return &MockBoard{stream: stream}
}

func (m *MockBoard) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bytes.Equal(b, []byte("start\n")) {
		eol := "\n"
		if m.CRLF {
			eol = "\r\n"
		}
		m.out.WriteString("start" + eol)
		if !m.sent {
			m.out.WriteString("a" + eol)
			m.out.Write(m.stream)
			m.out.WriteString(eol)
			m.sent = true
		}
	}
	return len(b), nil
}

func (m *MockBoard) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out.Len() == 0 {
		return 0, io.EOF
	}
	return m.out.Read(b)
}

// Close resets the board so the stream is sent again on the next handshake
func (m *MockBoard) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out.Reset()
	m.sent = false
	return nil
}

// NewMockUNO returns an UNO backed by a MockBoard producing n random events
func NewMockUNO(n int, seed int64) *UNO {
	board := NewMockBoard(EncodeWords(RandomWords(n, seed)))
	term := &comm.Terminators{Rx: comm.LF, Tx: comm.LF}
	rd := comm.NewRemoteDevice("mock-uno", false, term, nil)
	rd.Maker = func() (io.ReadWriteCloser, error) { return board, nil }
	return &UNO{RemoteDevice: rd, Handshakes: 5, MaxLines: 5}
}

// RandomWords makes n increasing event words with random patterns.  No byte
// of the packed words is a line feed, so the stream survives line framing.
func RandomWords(n int, seed int64) []Word {
	rng := rand.New(rand.NewSource(seed))
	words := make([]Word, 0, n)
	raw := uint32(0)
	for len(words) < n {
		raw += uint32(rng.Intn(5000)) + 1
		if raw >= Period {
			raw %= Period
		}
		w := Word{Raw: raw, Pattern: Pattern(rng.Intn(15) + 1)}
		if bytes.IndexByte(EncodeWords([]Word{w}), comm.LF) >= 0 {
			continue
		}
		words = append(words, w)
	}
	return words
}
