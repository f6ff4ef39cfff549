package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/plume-lab/plume/bnc"
	"github.com/plume-lab/plume/comm"
	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/generichttp/motion"
	"github.com/plume-lab/plume/generichttp/timetag"
	"github.com/plume-lab/plume/imgrec"
	"github.com/plume-lab/plume/metrics"
	"github.com/plume-lab/plume/quantumcomposers"
	"github.com/plume-lab/plume/server/middleware/locker"
	"github.com/plume-lab/plume/smd2"
	"github.com/plume-lab/plume/tdc"
	"github.com/plume-lab/plume/tektronix"
	"github.com/plume-lab/plume/thorlabs"
	"github.com/plume-lab/plume/util"
)

// RasterSetup is the serpentine scan of a stage node
type RasterSetup struct {
	// Steps between sites
	Steps int `yaml:"Steps"`

	// Size of the square, steps
	Size int `yaml:"Size"`
}

// ObjSetup holds the setup of one device.  Fields a device type does not
// use need not be populated in the config file.
type ObjSetup struct {
	// Addr holds the filesystem address of a serial device, e.g. /dev/ttyUSB0
	// or COM4, or the VISA resource string of the scope
	Addr string `yaml:"Addr"`

	// Endpoint is the full path the routes from this device will be served on
	// ex. Endpoint="/bench/qc" will produce routes of /bench/qc/run, etc.
	Endpoint string `yaml:"Endpoint"`

	// Type is the "type" of the object, e.g. qc9520
	Type string `yaml:"Type"`

	// Serial holds the serial port settings; zero fields take the defaults
	Serial comm.SerialParams `yaml:"Serial"`

	// Limits are software limits per stage axis
	Limits map[string]util.Limiter `yaml:"Limits"`

	// Raster is the scan pattern of a stage
	Raster RasterSetup `yaml:"Raster"`

	// Camera holds the acquisition settings applied when a camera is opened
	Camera thorlabs.Params `yaml:"Camera"`

	// ImageRoot is where a camera saves the images it serves, empty to not save
	ImageRoot string `yaml:"ImageRoot"`

	// Readout bounds one TDC readout
	Readout time.Duration `yaml:"Readout"`
}

// Config is a struct that holds the initialization parameters for the
// HTTP adapted devices.  It is populated by koanf from the YAML file
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock replaces every device with a simulation
	Mock bool `yaml:"Mock"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes"`
}

// closers collects the devices that hold a connection open for the life of
// the server
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

// node builds the HTTPer of one device, plus any middleware and lock it wants
func node(o ObjSetup, mock bool, cl *closers) (generichttp.HTTPer, []func(http.Handler) http.Handler, locker.ManipulableLock, error) {
	typ := strings.ToLower(o.Type)
	switch typ {
	case "qc9520", "quantumcomposers", "delaygen":
		var g *quantumcomposers.Generator
		if mock {
			g, _ = quantumcomposers.NewMock()
		} else {
			var err error
			if g, err = quantumcomposers.NewGenerator(o.Addr, o.Serial); err != nil {
				return nil, nil, nil, err
			}
		}
		return quantumcomposers.NewHTTPWrapper(g), nil, locker.New(), nil

	case "bnc505", "bnc":
		var g *bnc.Generator
		if mock {
			g, _ = bnc.NewMock()
		} else {
			var err error
			if g, err = bnc.NewGenerator(o.Addr, o.Serial); err != nil {
				return nil, nil, nil, err
			}
		}
		return bnc.NewHTTPWrapper(g), nil, locker.New(), nil

	case "uno", "tdc", "timetagger":
		var u *tdc.UNO
		if mock {
			u = tdc.NewMockUNO(1000, time.Now().UnixNano())
		} else {
			var err error
			if u, err = tdc.NewUNO(o.Addr, o.Serial); err != nil {
				return nil, nil, nil, err
			}
		}
		readout := o.Readout
		if readout == 0 {
			readout = 10 * time.Second
		}
		h := httpTable{}
		timetag.HTTPAcquire(u, readout, h.RT())
		return h, nil, locker.New(), nil

	case "tds2000", "tds2014c", "tektronix", "scope":
		var s *tektronix.TDS2000
		if mock {
			s, _ = tektronix.NewMock("0")
		} else {
			addr := o.Addr
			if addr == "" {
				addr = tektronix.DefaultResource
			}
			var err error
			if s, err = tektronix.New(addr); err != nil {
				return nil, nil, nil, err
			}
		}
		if err := s.Open(); err != nil {
			return nil, nil, nil, err
		}
		*cl = append(*cl, s)
		return tektronix.NewHTTPWrapper(s), nil, locker.New(), nil

	case "cs505mu1", "thorlabs", "camera":
		var (
			sdk thorlabs.SDK
			err error
		)
		if mock {
			sdk = thorlabs.NewMockSDK()
		} else if sdk, err = thorlabs.NewSDK(); err != nil {
			return nil, nil, nil, err
		}
		cam, err := thorlabs.Open(sdk)
		if err != nil {
			return nil, nil, nil, err
		}
		*cl = append(*cl, cam)
		if o.Camera != (thorlabs.Params{}) {
			if err = cam.SetParams(o.Camera); err != nil {
				return nil, nil, nil, err
			}
		}
		var rec *imgrec.Recorder
		if o.ImageRoot != "" {
			rec = imgrec.NewRecorder(o.ImageRoot, "")
		}
		return thorlabs.NewHTTPWrapper(cam, rec), nil, locker.New(), nil

	case "smd2", "stage", "stepper":
		var d *smd2.Driver
		if mock {
			d, _ = smd2.NewMock()
		} else {
			var err error
			if d, err = smd2.NewDriver(o.Addr, o.Serial); err != nil {
				return nil, nil, nil, err
			}
		}
		h := httpTable{}
		motion.HTTPMove(d, h.RT())
		motion.HTTPInPosition(d, h.RT())
		if o.Raster.Steps > 0 {
			motion.HTTPScan(smd2.NewScan(d, smd2.NewRaster(o.Raster.Steps, o.Raster.Size)), h.RT())
		}
		limiter := &motion.LimitMiddleware{Limits: o.Limits, Mov: d}
		limiter.Inject(h)
		return h, []func(http.Handler) http.Handler{limiter.Check}, locker.NewAL(), nil
	}
	return nil, nil, nil, fmt.Errorf("type %q not understood", o.Type)
}

// httpTable is a bare HTTPer for devices whose routes come from generichttp
// helpers alone
type httpTable generichttp.RouteTable

func (h httpTable) RT() generichttp.RouteTable {
	return generichttp.RouteTable(h)
}

// BuildMux makes one chi router per node under its endpoint, each guarded by
// a lock, on a root that also serves /endpoints and /metrics.  The returned
// closer releases devices that were opened for the life of the server.
func BuildMux(c Config) (chi.Router, io.Closer, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	cl := closers{}

	for _, o := range c.Nodes {
		httper, mw, lock, err := node(o, c.Mock, &cl)
		if err != nil {
			cl.Close()
			return nil, nil, fmt.Errorf("node %s: %w", o.Endpoint, err)
		}
		// prepare the URL, "bench/qc" => "/bench/qc"
		hndlS := generichttp.SubMuxSanitize(o.Endpoint)
		if _, dup := supergraph[hndlS]; dup {
			cl.Close()
			return nil, nil, fmt.Errorf("endpoint %s is used twice", hndlS)
		}

		// add a lock interface for this node
		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// bind to the mux
		r := chi.NewRouter()
		r.Use(mw...)
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
		log.Printf("%s (%s) at %s", o.Type, o.Addr, hndlS)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Handle("/metrics", metrics.Handler())
	return root, cl, nil
}
