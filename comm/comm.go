/*Package comm provides interfaces and embeddable types for communication with lab hardware.

Most usages of this package will boil down to:
	1.  embed *RemoteDevice in a type that represents your hardware.
	2.  pick the Rx and Tx terminators the device firmware uses.  The default
		provided by NewRemoteDevice is a carriage return for both.
	3.  write methods for the commands of the device in terms of Exchange, or
		ExchangeUntil when the device acknowledges with a fixed string
		and a command must be resent until that acknowledgement is seen.

Each Exchange opens the connection, transmits, reads one terminated response
and closes the connection again.  Access to a single RemoteDevice is
serialized with its embedded mutex.

A minimal example is provided below for a temperature sensor that responds to
"RD?" with the current temperature

	import "strconv"

	type MySensor struct {
		*comm.RemoteDevice
	}

	func (ms *MySensor) ReadTemp() (float64, error) {
		resp, err := ms.Exchange([]byte("RD?"))
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(resp), 64)
	}
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"

	"github.com/plume-lab/plume/metrics"
)

const (
	// CR is a carriage return
	CR = byte('\r')

	// LF is a line feed (newline)
	LF = byte('\n')
)

var (
	// ErrNoSerialConf is generated when IsSerial is true but no serial config was provided
	ErrNoSerialConf = errors.New("remote device is serial but has no serial configuration")

	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrNoResponse is generated when the remote sent nothing before the read timed out
	ErrNoResponse = errors.New("no response from remote before read timeout")
)

// Terminators holds the receipt and transmission termination bytes
type Terminators struct {
	Rx byte
	Tx byte
}

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

/*RemoteDevice has an address and knows how to talk to it

if IsSerial is true, SerCfg must be populated.  If Maker is not nil, it is
used instead of opening a serial port or dialing TCP; this is how mocks and
tests get a connection.

the device is concurrent-safe through Exchange and ExchangeUntil; the lower
level Open / Send / Recv / Close are not, and callers using them directly
must hold the lock.
*/
type RemoteDevice struct {
	sync.Mutex

	// Addr is the network (host:port) or filesystem (/dev/ttyUSB0, COM4) address
	Addr string

	// IsSerial selects a serial port (true) or TCP (false)
	IsSerial bool

	// Conn is the open connection, nil when closed
	Conn io.ReadWriteCloser

	// Term holds the terminators used by Send and Recv
	Term Terminators

	// SerCfg is the serial port configuration
	SerCfg *serial.Config

	// Maker overrides how connections are made
	Maker CreationFunc

	// Timeout is used for TCP dial/read/write deadlines
	Timeout time.Duration

	rdr *bufio.Reader
}

// NewRemoteDevice creates a new RemoteDevice instance.  If term is nil, CR is
// used for both directions.  cfg may be nil if serial is false.
func NewRemoteDevice(addr string, serial bool, term *Terminators, cfg *serial.Config) *RemoteDevice {
	if term == nil {
		term = &Terminators{Rx: CR, Tx: CR}
	}
	return &RemoteDevice{
		Addr:     addr,
		IsSerial: serial,
		Term:     *term,
		SerCfg:   cfg,
		Timeout:  3 * time.Second,
	}
}

// Open the connection, setting the Conn variable
func (rd *RemoteDevice) Open() error {
	// exponential backoff, serial adapters and terminal servers
	// do not like being connection thrashed
	wasTimeout := false
	op := func() error {
		err := rd.open()
		if err != nil {
			errS := strings.ToLower(err.Error())
			if strings.Contains(errS, "refused") || errors.Is(err, ErrNoSerialConf) {
				return backoff.Permanent(err)
			}
			wasTimeout = true
			return err
		}
		wasTimeout = false
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err == nil {
		return nil
	}
	if wasTimeout {
		return fmt.Errorf("connection timeout to %s: %w", rd.Addr, err)
	}
	return err
}

func (rd *RemoteDevice) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	switch {
	case rd.Maker != nil:
		conn, err = rd.Maker()
	case rd.IsSerial:
		if rd.SerCfg == nil {
			return ErrNoSerialConf
		}
		conn, err = serial.OpenPort(rd.SerCfg)
	default:
		timeout := rd.Timeout
		if timeout == 0 {
			timeout = 3 * time.Second
		}
		conn, err = TCPSetup(rd.Addr, timeout)
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	rd.rdr = bufio.NewReader(conn)
	return nil
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	rd.Conn = nil
	rd.rdr = nil
	return err
}

// Send writes data to the remote with the Tx terminator appended
func (rd *RemoteDevice) Send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, rd.Term.Tx)
	_, err := rd.Conn.Write(buf)
	return err
}

// Recv recieves data from the remote and strips the Rx terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	term := rd.Term.Rx
	buf, err := rd.rdr.ReadBytes(term)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// a serial read timeout surfaces as EOF
			if len(buf) == 0 {
				return nil, ErrNoResponse
			}
			return buf, ErrTerminatorNotFound
		}
		return buf, err
	}
	return buf[:len(buf)-1], nil
}

// SendRecv sends a buffer after appending the Tx terminator,
// then returns the response with the Rx terminator stripped
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	err := rd.Send(b)
	if err != nil {
		return nil, err
	}
	return rd.Recv()
}

// Exchange opens the connection, sends cmd, reads a single response, and
// closes the connection.  The response is returned with the Rx terminator
// stripped.
func (rd *RemoteDevice) Exchange(cmd []byte) ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	err := rd.Open()
	if err != nil {
		metrics.Commands.WithLabelValues(rd.Addr, "error").Inc()
		return nil, err
	}
	defer rd.Close()
	resp, err := rd.SendRecv(cmd)
	if err != nil {
		metrics.Commands.WithLabelValues(rd.Addr, "error").Inc()
		return resp, err
	}
	metrics.Commands.WithLabelValues(rd.Addr, "ok").Inc()
	return resp, nil
}

// Tell opens the connection, sends cmd and closes it without reading a response
func (rd *RemoteDevice) Tell(cmd []byte) error {
	rd.Lock()
	defer rd.Unlock()
	err := rd.Open()
	if err != nil {
		return err
	}
	defer rd.Close()
	err = rd.Send(cmd)
	if err != nil {
		metrics.Commands.WithLabelValues(rd.Addr, "error").Inc()
		return err
	}
	metrics.Commands.WithLabelValues(rd.Addr, "ok").Inc()
	return nil
}

// TrimCR removes one trailing carriage return, if present
func TrimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte{CR})
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
