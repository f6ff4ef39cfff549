package main

import (
	"io"
	"time"

	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/experiment"
	"github.com/plume-lab/plume/imgrec"
	"github.com/plume-lab/plume/quantumcomposers"
	"github.com/plume-lab/plume/runlog"
	"github.com/plume-lab/plume/smd2"
	"github.com/plume-lab/plume/tdc"
	"github.com/plume-lab/plume/tektronix"
	"github.com/plume-lab/plume/thorlabs"
)

// SerialSetup is the address and port settings of a serial instrument
type SerialSetup struct {
	// Addr is the port, e.g. /dev/ttyUSB0 or COM4
	Addr string `yaml:"Addr"`

	// Serial holds the port settings; zero fields take the defaults
	Serial comm.SerialParams `yaml:"Serial"`
}

// RasterSetup is the serpentine scan of the stage
type RasterSetup struct {
	Steps int `yaml:"Steps"`
	Size  int `yaml:"Size"`
}

// Config holds everything a scan needs.  It is populated by koanf from the YAML file
type Config struct {
	// Mock replaces every instrument with a simulation
	Mock bool `yaml:"Mock"`

	Delays SerialSetup `yaml:"Delays"`
	TDC    SerialSetup `yaml:"TDC"`
	Stage  SerialSetup `yaml:"Stage"`

	// Scope is the VISA resource string of the scope, empty to run without one
	Scope string `yaml:"Scope"`

	// Camera holds the acquisition settings applied after the camera is opened
	Camera thorlabs.Params `yaml:"Camera"`

	Raster RasterSetup `yaml:"Raster"`

	Settings experiment.Settings `yaml:"Settings"`

	// DB is the path of the run log
	DB string `yaml:"DB"`

	// ImageRoot is the folder under which the dated image folders are made
	ImageRoot string `yaml:"ImageRoot"`
}

// closers releases instruments in the reverse of the order they were opened
type closers []io.Closer

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildRunner opens every instrument named by c and the run log.  On error,
// anything already opened is closed again.
func BuildRunner(c Config) (*experiment.Runner, io.Closer, error) {
	var (
		cl  closers
		err error
	)
	fail := func(err error) (*experiment.Runner, io.Closer, error) {
		cl.Close()
		return nil, nil, err
	}
	r := &experiment.Runner{Settings: c.Settings}

	var delays *quantumcomposers.Generator
	if c.Mock {
		delays, _ = quantumcomposers.NewMock()
	} else if delays, err = quantumcomposers.NewGenerator(c.Delays.Addr, c.Delays.Serial); err != nil {
		return fail(err)
	}
	r.Delays = delays

	var uno *tdc.UNO
	if c.Mock {
		uno = tdc.NewMockUNO(1000, time.Now().UnixNano())
	} else if uno, err = tdc.NewUNO(c.TDC.Addr, c.TDC.Serial); err != nil {
		return fail(err)
	}
	r.TDC = uno

	var d *smd2.Driver
	if c.Mock {
		d, _ = smd2.NewMock()
	} else if d, err = smd2.NewDriver(c.Stage.Addr, c.Stage.Serial); err != nil {
		return fail(err)
	}
	r.Stage = smd2.NewScan(d, smd2.NewRaster(c.Raster.Steps, c.Raster.Size))

	if c.Mock || c.Scope != "" {
		var s *tektronix.TDS2000
		if c.Mock {
			s, _ = tektronix.NewMock("0")
		} else if s, err = tektronix.New(c.Scope); err != nil {
			return fail(err)
		}
		if err = s.Open(); err != nil {
			return fail(err)
		}
		cl = append(cl, s)
		r.Scope = s
	}

	var sdk thorlabs.SDK
	if c.Mock {
		sdk = thorlabs.NewMockSDK()
	} else if sdk, err = thorlabs.NewSDK(); err != nil {
		return fail(err)
	}
	cam, err := thorlabs.Open(sdk)
	if err != nil {
		return fail(err)
	}
	cl = append(cl, cam)
	if c.Camera != (thorlabs.Params{}) {
		if err = cam.SetParams(c.Camera); err != nil {
			return fail(err)
		}
	}
	r.Camera = cam

	r.Rec = imgrec.NewRecorder(c.ImageRoot, "")
	store, err := runlog.Open(c.DB)
	if err != nil {
		return fail(err)
	}
	cl = append(cl, store)
	r.Log = store
	return r, cl, nil
}
