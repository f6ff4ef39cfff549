package tdc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/metrics"
)

var (
	// ErrNoHandshake is returned when the board never echoes the start command
	ErrNoHandshake = errors.New("UNO did not echo start")

	// ErrNoStream is returned when no data line follows the handshake
	ErrNoStream = errors.New("UNO sent no timestamp stream")

	startCmd = []byte("start")
)

// lines the board emits around the data that carry no timestamps
var ignorable = [][]byte{{}, []byte("start"), {comm.CR}, []byte("a")}

func isIgnorable(line []byte) bool {
	for _, ig := range ignorable {
		if bytes.Equal(line, ig) {
			return true
		}
	}
	return false
}

// Capture is one readout of the TDC
type Capture struct {
	// Events are the decoded events, in stream order
	Events []Event `json:"events"`

	// Channels holds the active channel names of each event, CH4 first
	Channels [][]string `json:"channels"`

	// Counts is the number of events each channel took part in
	Counts Counts `json:"counts"`
}

// NewCapture decodes a raw stream into a Capture
func NewCapture(stream []byte) (Capture, error) {
	events, err := Decode(stream)
	if err != nil {
		return Capture{}, err
	}
	chans, counts := ExpandChannels(Patterns(events))
	for i, n := range counts {
		if n > 0 {
			metrics.Events.WithLabelValues(ChannelNames[i]).Add(float64(n))
		}
	}
	return Capture{Events: events, Channels: chans, Counts: counts}, nil
}

// UNO is the Arduino UNO that buffers the TDC stream and sends it on request
type UNO struct {
	*comm.RemoteDevice

	// Handshakes bounds how many times "start" is sent waiting for the echo
	Handshakes int

	// MaxLines bounds how many lines are read after the echo looking for data
	MaxLines int

	// Pace is the minimum time between handshake attempts
	Pace time.Duration
}

// NewUNO makes a new UNO on the serial port at addr
func NewUNO(addr string, params comm.SerialParams) (*UNO, error) {
	cfg, err := comm.MakeSerConf(addr, params)
	if err != nil {
		return nil, err
	}
	term := &comm.Terminators{Rx: comm.LF, Tx: comm.LF}
	rd := comm.NewRemoteDevice(addr, true, term, cfg)
	return &UNO{RemoteDevice: rd, Handshakes: 50, MaxLines: 20, Pace: 100 * time.Millisecond}, nil
}

// Start asks the board for its buffer and decodes it.  The board must echo
// "start" before it sends data; the first line after the echo that is not
// filler is taken as the stream.
func (u *UNO) Start(ctx context.Context) (Capture, error) {
	stream, err := u.ReadStream(ctx)
	if err != nil {
		return Capture{}, err
	}
	return NewCapture(stream)
}

// ReadStream performs the handshake and returns the raw stream without decoding it
func (u *UNO) ReadStream(ctx context.Context) ([]byte, error) {
	u.Lock()
	defer u.Unlock()
	err := u.Open()
	if err != nil {
		return nil, err
	}
	defer u.Close()

	pace := u.Pace
	if pace <= 0 {
		pace = time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(pace), 1)
	echoed := false
	for i := 0; i < u.Handshakes; i++ {
		if err = lim.Wait(ctx); err != nil {
			return nil, err
		}
		if err = u.Send(startCmd); err != nil {
			return nil, err
		}
		var resp []byte
		resp, err = u.Recv()
		if err != nil && !errors.Is(err, comm.ErrNoResponse) && !errors.Is(err, comm.ErrTerminatorNotFound) {
			return nil, err
		}
		if err == nil && bytes.Equal(comm.TrimCR(resp), startCmd) {
			echoed = true
			break
		}
	}
	if !echoed {
		return nil, fmt.Errorf("%w after %d attempts", ErrNoHandshake, u.Handshakes)
	}
	for i := 0; i < u.MaxLines; i++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		var line []byte
		line, err = u.Recv()
		if err != nil {
			if errors.Is(err, comm.ErrNoResponse) {
				continue
			}
			return nil, err
		}
		if isIgnorable(line) || isIgnorable(comm.TrimCR(line)) {
			continue
		}
		// println on the board ends the data with CR LF
		if len(line)%WordSize == 1 && line[len(line)-1] == comm.CR {
			line = comm.TrimCR(line)
		}
		return line, nil
	}
	return nil, fmt.Errorf("%w within %d lines", ErrNoStream, u.MaxLines)
}
