// Package smd2 provides a driver for the SMD2 two-channel stepper motor
// driver that moves the sample stage.
//
// Motor 1 moves the stage forward and back, motor 2 left and right, as seen
// from the breadboard.  Every command selects its motor first; the
// selection and the command are sent as two separate exchanges.
package smd2

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/plume-lab/plume/comm"
)

// ErrStillMoving is returned when a motor does not come to rest within MaxWait
var ErrStillMoving = errors.New("stepper still moving")

// Motor numbers
const (
	// Motor1 drives forward / back
	Motor1 = 1

	// Motor2 drives left / right
	Motor2 = 2
)

// Driver is an SMD2
type Driver struct {
	*comm.RemoteDevice

	// Poll is the interval between status queries while waiting for a move
	Poll time.Duration

	// MaxWait bounds how long a move may take
	MaxWait time.Duration

	// mu is held across a motor selection and the command that uses it
	mu sync.Mutex
}

// NewDriver makes a new Driver on the serial port at addr
func NewDriver(addr string, params comm.SerialParams) (*Driver, error) {
	cfg, err := comm.MakeSerConf(addr, params)
	if err != nil {
		return nil, err
	}
	rd := comm.NewRemoteDevice(addr, true, &comm.Terminators{Rx: comm.CR, Tx: comm.CR}, cfg)
	return &Driver{RemoteDevice: rd, Poll: 100 * time.Millisecond, MaxWait: time.Minute}, nil
}

// send exchanges one command.  The SMD2 is silent after many commands, which
// is not an error
func (d *Driver) send(cmd string) ([]byte, error) {
	resp, err := d.Exchange([]byte(cmd))
	switch {
	case errors.Is(err, comm.ErrNoResponse):
		return nil, nil
	case errors.Is(err, comm.ErrTerminatorNotFound):
		return resp, nil
	}
	return resp, err
}

func (d *Driver) selectMotor(motor int) error {
	if motor != Motor1 && motor != Motor2 {
		return fmt.Errorf("motor %d must be 1 or 2", motor)
	}
	_, err := d.send("B" + strconv.Itoa(motor) + " ")
	return err
}

// moving queries the status; the driver answers Y when idle
func (d *Driver) moving() (bool, error) {
	resp, err := d.send("F ")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(resp)) != "Y", nil
}

// IsMoving returns true if the selected motor is running
func (d *Driver) IsMoving() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.moving()
}

// Wait blocks until the driver reports idle, polling no faster than Poll and
// for no longer than MaxWait
func (d *Driver) Wait(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wait(ctx)
}

func (d *Driver) wait(parent context.Context) error {
	ctx := parent
	if d.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.MaxWait)
		defer cancel()
	}
	poll := d.Poll
	if poll <= 0 {
		poll = time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(poll), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			if parent.Err() != nil {
				return parent.Err()
			}
			return fmt.Errorf("%w after %s", ErrStillMoving, d.MaxWait)
		}
		moving, err := d.moving()
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
	}
}

// step selects motor and sends a relative move of signed steps, then waits
func (d *Driver) step(motor, steps int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.selectMotor(motor); err != nil {
		return nil, err
	}
	resp, err := d.send(fmt.Sprintf("%+d", steps))
	if err != nil {
		return resp, err
	}
	return resp, d.wait(context.Background())
}

// Back moves the stage back by steps
func (d *Driver) Back(steps int) ([]byte, error) {
	return d.step(Motor1, -steps)
}

// Forward moves the stage forward by steps
func (d *Driver) Forward(steps int) ([]byte, error) {
	return d.step(Motor1, steps)
}

// Right moves the stage right by steps
func (d *Driver) Right(steps int) ([]byte, error) {
	return d.step(Motor2, -steps)
}

// Left moves the stage left by steps
func (d *Driver) Left(steps int) ([]byte, error) {
	return d.step(Motor2, steps)
}

func (d *Driver) position(motor int) (int, error) {
	if err := d.selectMotor(motor); err != nil {
		return 0, err
	}
	resp, err := d.send("V1 ")
	if err != nil {
		return 0, err
	}
	return parsePosition(resp)
}

// the reply carries a two character prefix before the value
func parsePosition(resp []byte) (int, error) {
	s := strings.TrimSpace(string(resp))
	if len(s) < 3 {
		return 0, fmt.Errorf("position reply %q too short", s)
	}
	return strconv.Atoi(strings.TrimSpace(s[2:]))
}

// Position returns the step count of a motor
func (d *Driver) Position(motor int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position(motor)
}

// SetHome makes the current location zero on both motors
func (d *Driver) SetHome() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.send("I3 ")
	return err
}

func (d *Driver) goTo(motor, pos int) error {
	if err := d.selectMotor(motor); err != nil {
		return err
	}
	cmd := "G" + strconv.Itoa(pos) + " "
	if pos == 0 {
		cmd = "G+0 "
	}
	if _, err := d.send(cmd); err != nil {
		return err
	}
	return d.wait(context.Background())
}

// GoHome moves both motors to zero, motor 1 first
func (d *Driver) GoHome() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.goTo(Motor1, 0); err != nil {
		return err
	}
	return d.goTo(Motor2, 0)
}

// MoveTo moves to (x, y) relative to home: x on motor 2, then y on motor 1
func (d *Driver) MoveTo(x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.goTo(Motor2, x); err != nil {
		return err
	}
	return d.goTo(Motor1, y)
}

func parseAxis(axis string) (int, error) {
	switch axis {
	case "1", "y", "Y":
		return Motor1, nil
	case "2", "x", "X":
		return Motor2, nil
	}
	return 0, fmt.Errorf("axis %q must be 1 or 2", axis)
}

// GetPos returns the position of an axis, "1" or "2", in steps
func (d *Driver) GetPos(axis string) (float64, error) {
	m, err := parseAxis(axis)
	if err != nil {
		return 0, err
	}
	pos, err := d.Position(m)
	return float64(pos), err
}

// MoveAbs moves an axis to an absolute position, rounded to whole steps
func (d *Driver) MoveAbs(axis string, pos float64) error {
	m, err := parseAxis(axis)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.goTo(m, int(math.Round(pos)))
}

// MoveRel moves an axis by a relative amount, rounded to whole steps
func (d *Driver) MoveRel(axis string, delta float64) error {
	m, err := parseAxis(axis)
	if err != nil {
		return err
	}
	_, err = d.step(m, int(math.Round(delta)))
	return err
}

// Home moves an axis to zero
func (d *Driver) Home(axis string) error {
	return d.MoveAbs(axis, 0)
}

// GetInPosition returns true when the driver is idle.  The status is shared by
// both motors, so axis is only validated
func (d *Driver) GetInPosition(axis string) (bool, error) {
	if _, err := parseAxis(axis); err != nil {
		return false, err
	}
	moving, err := d.IsMoving()
	return !moving, err
}
