// Package thorlabs provides control of Thorlabs scientific cameras such as the
// CS505MU1 through the Thorlabs camera SDK.
//
// The SDK is reached through the SDK and Device interfaces.  A cgo binding to
// the C SDK is compiled with the tlcamera build tag; NewMockSDK serves tests
// and machines without a camera.
package thorlabs

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
)

var (
	// ErrNoCamera is returned by Open when the SDK finds no camera
	ErrNoCamera = errors.New("no cameras detected")

	// ErrNoFrame is returned by GetImage when no frame is pending
	ErrNoFrame = errors.New("no frame detected")

	// ErrClosed is returned when a closed camera is used
	ErrClosed = errors.New("camera is closed")
)

// OperationMode is the trigger mode of the camera
type OperationMode int

const (
	// SoftwareTriggered exposes on a software trigger
	SoftwareTriggered OperationMode = iota

	// HardwareTriggered exposes for the set exposure time on a trigger edge
	HardwareTriggered

	// Bulb exposes for as long as the trigger is held
	Bulb
)

func (m OperationMode) String() string {
	switch m {
	case SoftwareTriggered:
		return "software"
	case HardwareTriggered:
		return "hardware"
	case Bulb:
		return "bulb"
	}
	return fmt.Sprintf("OperationMode(%d)", int(m))
}

// PollTimeoutMS is how long the SDK waits for a frame when polled
const PollTimeoutMS = 1000

// ArmFrames is the number of frame buffers allocated when arming
const ArmFrames = 2

// Frame is one monochrome image
type Frame struct {
	Width, Height int

	// Pix holds Height rows of Width pixels
	Pix []uint16
}

// Image converts the frame to a 16-bit grayscale image
func (f *Frame) Image() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Pix {
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	return img
}

// SDK is an open session with the camera SDK
type SDK interface {
	// DiscoverAvailableCameras returns the serial numbers of attached cameras
	DiscoverAvailableCameras() ([]string, error)

	// OpenCamera opens a camera by serial number
	OpenCamera(id string) (Device, error)

	// Dispose closes the session
	Dispose() error
}

// Device is an opened camera
type Device interface {
	SetExposureTimeUS(us int) error
	SetFramesPerTrigger(n int) error
	SetImagePollTimeoutMS(ms int) error
	SetOperationMode(m OperationMode) error
	Arm(frames int) error
	Disarm() error

	// PendingFrame returns the next frame, or nil if none is pending
	PendingFrame() (*Frame, error)

	Dispose() error
}

// Params are the acquisition settings
type Params struct {
	// ExposureUS is the exposure time in microseconds
	ExposureUS int `json:"exposureUs" yaml:"ExposureUS"`

	// FramesPerTrigger is 1 for one frame per trigger, 0 for continuous
	FramesPerTrigger int `json:"framesPerTrigger" yaml:"FramesPerTrigger"`

	// Mode is the operation mode
	Mode OperationMode `json:"mode" yaml:"Mode"`
}

// Camera owns an SDK session and the camera opened with it
type Camera struct {
	mu  sync.Mutex
	sdk SDK
	dev Device

	// ID is the serial number of the opened camera
	ID string

	params Params
}

// Open discovers the cameras attached to sdk and opens the first.  The camera
// takes ownership of sdk and disposes it on Close, or here if opening fails
func Open(sdk SDK) (*Camera, error) {
	ids, err := sdk.DiscoverAvailableCameras()
	if err != nil {
		sdk.Dispose()
		return nil, err
	}
	if len(ids) < 1 {
		sdk.Dispose()
		return nil, ErrNoCamera
	}
	dev, err := sdk.OpenCamera(ids[0])
	if err != nil {
		sdk.Dispose()
		return nil, fmt.Errorf("opening camera %s: %w", ids[0], err)
	}
	return &Camera{sdk: sdk, dev: dev, ID: ids[0]}, nil
}

// SetParams sets the exposure, frames per trigger and operation mode
func (c *Camera) SetParams(p Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return ErrClosed
	}
	if err := c.dev.SetExposureTimeUS(p.ExposureUS); err != nil {
		return err
	}
	if err := c.dev.SetFramesPerTrigger(p.FramesPerTrigger); err != nil {
		return err
	}
	if err := c.dev.SetImagePollTimeoutMS(PollTimeoutMS); err != nil {
		return err
	}
	if err := c.dev.SetOperationMode(p.Mode); err != nil {
		return err
	}
	c.params = p
	return nil
}

// Params returns the last settings applied with SetParams
func (c *Camera) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// CollectHeaderMetadata describes the camera and its settings as FITS cards
func (c *Camera) CollectHeaderMetadata() []fitsio.Card {
	p := c.Params()
	return []fitsio.Card{
		{Name: "CAMERA", Value: "CS505MU1", Comment: "Thorlabs"},
		{Name: "SERIAL", Value: c.ID},
		{Name: "EXPTIME", Value: float64(p.ExposureUS) / 1e6, Comment: "exposure time, seconds"},
		{Name: "TRIGMODE", Value: p.Mode.String()},
		{Name: "DATE-OBS", Value: time.Now().UTC().Format("2006-01-02T15:04:05.000")},
	}
}

// Arm makes the camera wait for a trigger
func (c *Camera) Arm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return ErrClosed
	}
	return c.dev.Arm(ArmFrames)
}

// GetImage returns the pending frame and disarms the camera, whether or not
// a frame was pending
func (c *Camera) GetImage() (*image.Gray16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil, ErrClosed
	}
	frame, err := c.dev.PendingFrame()
	derr := c.dev.Disarm()
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrNoFrame
	}
	if derr != nil {
		return nil, derr
	}
	return frame.Image(), nil
}

// Close disposes the camera and then the SDK session
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := c.dev.Dispose()
	c.dev = nil
	if serr := c.sdk.Dispose(); err == nil {
		err = serr
	}
	return err
}
