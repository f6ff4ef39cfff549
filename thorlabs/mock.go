package thorlabs

import (
	"fmt"
	"sync"
)

// MockSDK is an SDK with one simulated camera.  Arming it makes a frame pending
type MockSDK struct {
	sync.Mutex

	// IDs are the cameras reported by discovery
	IDs []string

	// Width and Height of the simulated sensor
	Width, Height int

	// Disposed is set when the session is disposed
	Disposed bool

	// Dev is the last opened device
	Dev *MockDevice
}

// NewMockSDK returns a MockSDK with one small camera
func NewMockSDK() *MockSDK {
	return &MockSDK{IDs: []string{"MOCK0001"}, Width: 32, Height: 24}
}

// DiscoverAvailableCameras returns IDs
func (m *MockSDK) DiscoverAvailableCameras() ([]string, error) {
	m.Lock()
	defer m.Unlock()
	return append([]string{}, m.IDs...), nil
}

// OpenCamera opens a simulated camera
func (m *MockSDK) OpenCamera(id string) (Device, error) {
	m.Lock()
	defer m.Unlock()
	for _, known := range m.IDs {
		if known == id {
			m.Dev = &MockDevice{width: m.Width, height: m.Height}
			return m.Dev, nil
		}
	}
	return nil, fmt.Errorf("camera %s not found", id)
}

// Dispose ends the session
func (m *MockSDK) Dispose() error {
	m.Lock()
	defer m.Unlock()
	m.Disposed = true
	return nil
}

// MockDevice is a simulated camera
type MockDevice struct {
	sync.Mutex

	Params   Params
	PollMS   int
	Armed    bool
	Disposed bool

	// SkipFrame makes the next arm produce no frame
	SkipFrame bool

	width, height int
	pending       *Frame
	count         uint16
}

func (d *MockDevice) SetExposureTimeUS(us int) error {
	d.Lock()
	defer d.Unlock()
	d.Params.ExposureUS = us
	return nil
}

func (d *MockDevice) SetFramesPerTrigger(n int) error {
	d.Lock()
	defer d.Unlock()
	d.Params.FramesPerTrigger = n
	return nil
}

func (d *MockDevice) SetImagePollTimeoutMS(ms int) error {
	d.Lock()
	defer d.Unlock()
	d.PollMS = ms
	return nil
}

func (d *MockDevice) SetOperationMode(m OperationMode) error {
	d.Lock()
	defer d.Unlock()
	d.Params.Mode = m
	return nil
}

// Arm makes a ramp frame pending, unless SkipFrame is set
func (d *MockDevice) Arm(frames int) error {
	d.Lock()
	defer d.Unlock()
	d.Armed = true
	if d.SkipFrame {
		d.SkipFrame = false
		return nil
	}
	d.count++
	f := &Frame{Width: d.width, Height: d.height, Pix: make([]uint16, d.width*d.height)}
	for i := range f.Pix {
		f.Pix[i] = uint16(i) + d.count
	}
	d.pending = f
	return nil
}

func (d *MockDevice) Disarm() error {
	d.Lock()
	defer d.Unlock()
	d.Armed = false
	return nil
}

func (d *MockDevice) PendingFrame() (*Frame, error) {
	d.Lock()
	defer d.Unlock()
	f := d.pending
	d.pending = nil
	return f, nil
}

func (d *MockDevice) Dispose() error {
	d.Lock()
	defer d.Unlock()
	d.Disposed = true
	return nil
}
