package smd2

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plume-lab/plume/comm"
)

// MockStage imitates the SMD2 firmware.  Moves complete instantly
type MockStage struct {
	sync.Mutex

	selected int
	pos      [3]int

	// Busy is the number of status queries answered "N" after each move
	Busy int

	busy int
}

// Pos returns the position of a motor
func (m *MockStage) Pos(motor int) int {
	m.Lock()
	defer m.Unlock()
	return m.pos[motor]
}

// Respond answers one command
func (m *MockStage) Respond(b []byte) []byte {
	m.Lock()
	defer m.Unlock()
	cmd := strings.TrimRight(string(b), "\r")
	switch {
	case cmd == "B1 ":
		m.selected = Motor1
	case cmd == "B2 ":
		m.selected = Motor2
	case cmd == "F ":
		if m.busy > 0 {
			m.busy--
			return []byte("N\r")
		}
		return []byte("Y\r")
	case cmd == "V1 ":
		return []byte(fmt.Sprintf("V1%d\r", m.pos[m.selected]))
	case cmd == "I3 ":
		m.pos = [3]int{}
	case strings.HasPrefix(cmd, "G"):
		n, err := strconv.Atoi(strings.TrimSpace(cmd[1:]))
		if err == nil {
			m.pos[m.selected] = n
			m.busy = m.Busy
		}
	case strings.HasPrefix(cmd, "+"), strings.HasPrefix(cmd, "-"):
		n, err := strconv.Atoi(cmd)
		if err == nil {
			m.pos[m.selected] += n
			m.busy = m.Busy
		}
	}
	return nil
}

// NewMock returns a Driver wired to a MockStage
func NewMock() (*Driver, *MockStage) {
	stage := &MockStage{}
	rd := comm.NewRemoteDevice("mock-smd2", false, &comm.Terminators{Rx: comm.CR, Tx: comm.CR}, nil)
	rd.UseMock(comm.NewMock(stage.Respond))
	return &Driver{RemoteDevice: rd, Poll: time.Millisecond, MaxWait: time.Second}, stage
}
