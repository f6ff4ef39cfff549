package smd2

import "sync"

// Raster walks the stage through a serpentine pattern of ablation sites,
// Steps apart inside a Size x Size square:
//
//	-> -> -> -> |
//	|  <- <- <- V
//	V -> -> -> |
//	...
//
// Lines run along motor 2 and advance along motor 1.
type Raster struct {
	// Steps between two sites
	Steps int `json:"steps"`

	// Size is the extent of the square in steps, from home
	Size int `json:"size"`

	// Advanced is true when the last step moved to a new line
	Advanced bool `json:"advanced"`

	// Reversed is true while a line runs right, back towards zero
	Reversed bool `json:"reversed"`

	// Done is set once motor 1 reaches Size
	Done bool `json:"done"`
}

// NewRaster returns a raster at its start
func NewRaster(steps, size int) *Raster {
	return &Raster{Steps: steps, Size: size}
}

// Reset returns the raster to its start; the stage is not moved
func (r *Raster) Reset() {
	r.Advanced = false
	r.Reversed = false
	r.Done = false
}

// RasterStep moves the stage to the next site of r
func (d *Driver) RasterStep(r *Raster) error {
	d.mu.Lock()
	x, err := d.position(Motor2)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	switch {
	case x >= r.Size && !r.Advanced:
		_, err = d.Forward(r.Steps)
		r.Reversed = true
		r.Advanced = true
	case x <= 0 && !r.Advanced:
		_, err = d.Forward(r.Steps)
		r.Reversed = false
		r.Advanced = true
	case !r.Reversed:
		_, err = d.Left(r.Steps)
		r.Advanced = false
	default:
		_, err = d.Right(r.Steps)
		r.Advanced = false
	}
	if err != nil {
		return err
	}
	y, err := d.Position(Motor1)
	if err != nil {
		return err
	}
	if y >= r.Size {
		r.Done = true
	}
	return nil
}

// Scan pairs a driver with a raster, stepping the stage through it.  It is
// safe for concurrent use.
type Scan struct {
	mu sync.Mutex
	d  *Driver
	r  *Raster
}

// NewScan returns a scan of r driven by d
func NewScan(d *Driver, r *Raster) *Scan {
	return &Scan{d: d, r: r}
}

// Next moves to the next site
func (s *Scan) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.RasterStep(s.r)
}

// Reset restarts the pattern without moving the stage
func (s *Scan) Reset() {
	s.mu.Lock()
	s.r.Reset()
	s.mu.Unlock()
}

// Done is true once the last line has been reached
func (s *Scan) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Done
}

// State returns a copy of the raster flags
func (s *Scan) State() Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.r
}

// Position returns the stage position, motor 2 then motor 1
func (s *Scan) Position() (x, y int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, err = s.d.Position(Motor2); err != nil {
		return 0, 0, err
	}
	y, err = s.d.Position(Motor1)
	return x, y, err
}
