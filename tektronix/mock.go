package tektronix

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/plume-lab/plume/usbtmc"
)

// MockScope answers every query with Value and records all commands
type MockScope struct {
	sync.Mutex

	// Value is the reply to any query
	Value string

	// Commands holds everything written
	Commands []string

	out bytes.Buffer
}

func (m *MockScope) Write(b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()
	cmd := string(b)
	m.Commands = append(m.Commands, cmd)
	if strings.HasSuffix(cmd, "?") {
		m.out.WriteString(m.Value + "\n")
	}
	return len(b), nil
}

func (m *MockScope) Read(b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()
	if m.out.Len() == 0 {
		return 0, io.EOF
	}
	return m.out.Read(b)
}

// Close does nothing
func (m *MockScope) Close() error { return nil }

// NewMock returns a scope wired to a MockScope
func NewMock(value string) (*TDS2000, *MockScope) {
	m := &MockScope{Value: value}
	s, _ := New(DefaultResource)
	s.Opener = func(usbtmc.Resource) (io.ReadWriteCloser, error) { return m, nil }
	return s, m
}
