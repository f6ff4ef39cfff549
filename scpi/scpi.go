// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const frameSize = 1500

// ErrEmptyResponse is returned when the device answers a query with nothing
var ErrEmptyResponse = errors.New("empty response to SCPI query")

// SCPI is a type for encapsulating SCPI communication over a message based
// connection, where each Write is one command and each Read one response
type SCPI struct {
	// Conn is the connection to the instrument
	Conn io.ReadWriter

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool

	mu sync.Mutex
}

func (s *SCPI) compose(cmds []string) string {
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	return strings.Join(cmds, " ")
}

func (s *SCPI) read() ([]byte, error) {
	buf := make([]byte, frameSize)
	n, err := s.Conn.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return nil, err
	}
	return buf[:n], nil
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	if s.Conn == nil {
		return errors.New("scpi: no connection")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.Conn, s.compose(cmds))
	if err != nil {
		return err
	}
	if !s.Handshaking {
		return nil
	}
	resp, err := s.read()
	if err != nil {
		return err
	}
	return checkError(resp)
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	if s.Conn == nil {
		return nil, errors.New("scpi: no connection")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.Conn, s.compose(cmds))
	if err != nil {
		return nil, err
	}
	resp, err := s.read()
	if err != nil {
		return resp, err
	}
	if s.Handshaking {
		pieces := bytes.Split(resp, []byte{';'})
		if err = checkError(pieces[len(pieces)-1]); err != nil {
			return resp, err
		}
		return bytes.Join(pieces[:len(pieces)-1], []byte{}), nil
	}
	return resp, nil
}

func checkError(resp []byte) error {
	s := strings.TrimSpace(string(resp))
	if strings.HasPrefix(s, "+0") || strings.HasPrefix(s, "0") {
		return nil
	}
	return fmt.Errorf("instrument error: %s", s)
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	if err != nil {
		return "", err
	}
	resp = bytes.TrimSuffix(resp, []byte{'\n'})
	resp = bytes.TrimSuffix(resp, []byte{'\r'})
	if len(resp) == 0 {
		return "", ErrEmptyResponse
	}
	return string(resp), nil
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(resp))
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp))
}
