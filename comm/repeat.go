package comm

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/plume-lab/plume/metrics"
)

// ErrNoAck is wrapped by AckError when a device never acknowledges a command
var ErrNoAck = errors.New("device did not acknowledge command")

var errNotYet = errors.New("not yet acknowledged")

// Repeat bounds the resend loop of ExchangeUntil
type Repeat struct {
	// Tries is the maximum number of transmissions, including the first
	Tries int

	// Within is the maximum wall time spent resending
	Within time.Duration

	// Interval is the pause between transmissions
	Interval time.Duration
}

// DefaultRepeat sends a command up to ten times over at most fifteen seconds
var DefaultRepeat = Repeat{Tries: 10, Within: 15 * time.Second, Interval: 50 * time.Millisecond}

// AckError is returned when the acknowledgement was not seen within the bounds of a Repeat
type AckError struct {
	// Cmd is the command that was sent
	Cmd string

	// Want is the expected acknowledgement
	Want string

	// Got is the last response seen, possibly empty
	Got string

	// Attempts is how many times Cmd was sent
	Attempts int

	// Last is the last communication error, if any
	Last error
}

func (e *AckError) Error() string {
	s := fmt.Sprintf("%q not acknowledged with %q after %d attempts, last response %q", e.Cmd, e.Want, e.Attempts, e.Got)
	if e.Last != nil {
		s += ": " + e.Last.Error()
	}
	return s
}

// Unwrap makes errors.Is(err, ErrNoAck) true
func (e *AckError) Unwrap() error {
	return ErrNoAck
}

// Acknowledged compares a response to an acknowledgement, ignoring one
// trailing carriage return on either
func Acknowledged(resp, ack []byte) bool {
	return bytes.Equal(TrimCR(resp), TrimCR(ack))
}

// ExchangeUntil sends cmd until the response equals ack, holding the
// connection open between attempts.  The last response is returned.  If ack
// is not seen within the bounds of rep, the error is an *AckError.
func (rd *RemoteDevice) ExchangeUntil(cmd, ack []byte, rep Repeat) ([]byte, error) {
	if rep.Tries < 1 {
		rep.Tries = 1
	}
	rd.Lock()
	defer rd.Unlock()
	err := rd.Open()
	if err != nil {
		metrics.Commands.WithLabelValues(rd.Addr, "error").Inc()
		return nil, err
	}
	defer rd.Close()

	var (
		resp     []byte
		last     error
		attempts int
	)
	op := func() error {
		if attempts > 0 {
			metrics.Resends.WithLabelValues(rd.Addr).Inc()
		}
		attempts++
		resp, last = rd.SendRecv(cmd)
		if last == nil && Acknowledged(resp, ack) {
			return nil
		}
		if errors.Is(last, ErrNotConnected) {
			return backoff.Permanent(last)
		}
		return errNotYet
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     rep.Interval,
		RandomizationFactor: 0.,
		Multiplier:          1.,
		MaxInterval:         rep.Interval,
		MaxElapsedTime:      rep.Within,
		Clock:               backoff.SystemClock}
	if rep.Tries == 1 {
		// WithMaxRetries treats zero as unlimited
		err = op()
	} else {
		err = backoff.Retry(op, backoff.WithMaxRetries(b, uint64(rep.Tries-1)))
	}
	if err == nil {
		metrics.Commands.WithLabelValues(rd.Addr, "ok").Inc()
		return resp, nil
	}
	metrics.Commands.WithLabelValues(rd.Addr, "noack").Inc()
	return resp, &AckError{
		Cmd:      string(cmd),
		Want:     string(ack),
		Got:      string(resp),
		Attempts: attempts,
		Last:     last}
}
