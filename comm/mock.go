package comm

import (
	"bytes"
	"io"
	"sync"
)

// Responder computes the reply to one written command, terminator included.
// A nil reply means the device stays silent.
type Responder func(cmd []byte) []byte

// Fixed returns a Responder that always answers resp
func Fixed(resp string) Responder {
	return func([]byte) []byte { return []byte(resp) }
}

// Mock is an in-memory connection that answers each write through a
// Responder and records everything written to it
type Mock struct {
	mu      sync.Mutex
	respond Responder
	writes  [][]byte
	out     bytes.Buffer
}

// NewMock creates a new Mock
func NewMock(r Responder) *Mock {
	return &Mock{respond: r}
}

func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := append([]byte{}, b...)
	m.writes = append(m.writes, cmd)
	if m.respond != nil {
		m.out.Write(m.respond(cmd))
	}
	return len(b), nil
}

func (m *Mock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out.Len() == 0 {
		return 0, io.EOF
	}
	return m.out.Read(b)
}

// Close drops any unread output, as closing a port would
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out.Reset()
	return nil
}

// Written returns everything written so far, one string per write
func (m *Mock) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	for i, w := range m.writes {
		out[i] = string(w)
	}
	return out
}

// UseMock makes rd connect to m instead of real hardware
func (rd *RemoteDevice) UseMock(m *Mock) {
	rd.Maker = func() (io.ReadWriteCloser, error) { return m, nil }
}
