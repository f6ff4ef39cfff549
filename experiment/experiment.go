/*Package experiment sequences the instruments into ablation shots.

One shot programs the delay generator, readies the scope, arms the camera,
fires, reads out the TDC and the camera, saves the frame and logs the shot.
A scan repeats shots while stepping the stage through its raster.
*/
package experiment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/plume-lab/plume/imgrec"
	"github.com/plume-lab/plume/metrics"
	"github.com/plume-lab/plume/quantumcomposers"
	"github.com/plume-lab/plume/runlog"
	"github.com/plume-lab/plume/tdc"
	"github.com/plume-lab/plume/util"
)

// ErrNoDelay is returned by TrueDelay when the capture holds no reference
// event followed by a flash event
var ErrNoDelay = errors.New("no reference and flash event pair in capture")

// FileName is the base name of the files of one shot,
// "<unix seconds>_<set delay>_<true delay>" with delays in ns padded to nine digits
func FileName(t time.Time, setDelay, trueDelay int64) string {
	return fmt.Sprintf("%d_%09d_%09d", t.Round(time.Second).Unix(), setDelay, trueDelay)
}

// TrueDelay is the time from the last event on ref to the first later event
// on flash, ns.  Channels are numbered 1-4
func TrueDelay(events []tdc.Event, ref, flash int) (int64, error) {
	refBit := tdc.Pattern(1) << uint(ref-1)
	flashBit := tdc.Pattern(1) << uint(flash-1)
	var (
		last uint64
		seen bool
	)
	for _, e := range events {
		if seen && e.Pattern&flashBit != 0 && e.Time >= last {
			return int64(e.Time - last), nil
		}
		if e.Pattern&refBit != 0 {
			last = e.Time
			seen = true
		}
	}
	return 0, ErrNoDelay
}

// Delays is the delay generator that times the shot
type Delays interface {
	Setup(flashDelay float64, skip int, width1, width2 float64) (quantumcomposers.Schedule, error)
	Run() ([]byte, error)
	Stop() ([]byte, error)
}

// Scope is an oscilloscope that records a measurement of the shot
type Scope interface {
	Ready() error
	GetValue(n int) (float64, error)
}

// Camera images the plume
type Camera interface {
	Arm() error
	GetImage() (*image.Gray16, error)
}

// TimeTagger reads out the TDC
type TimeTagger interface {
	Start(ctx context.Context) (tdc.Capture, error)
}

// Stage moves the target between shots
type Stage interface {
	Next() error
	Done() bool
	Position() (x, y int, err error)
}

// Settings are the parameters of a scan
type Settings struct {
	// FlashDelay is the flashlamp delay after the laser shot, s
	FlashDelay float64 `yaml:"FlashDelay"`

	// Skip is the number of laser shots let through before the ablation shot
	Skip int `yaml:"Skip"`

	// Width1 and Width2 are the pedal pulse widths, s
	Width1 float64 `yaml:"Width1"`
	Width2 float64 `yaml:"Width2"`

	// RefChannel and FlashChannel are the TDC inputs of the laser
	// photodiode and the flashlamp, 1-4
	RefChannel   int `yaml:"RefChannel"`
	FlashChannel int `yaml:"FlashChannel"`

	// ScopeMeas is the scope measurement slot stored with each image, 0 for none
	ScopeMeas int `yaml:"ScopeMeas"`

	// Settle is the wait between firing and readout
	Settle time.Duration `yaml:"Settle"`

	// Readout bounds the TDC readout
	Readout time.Duration `yaml:"Readout"`

	// MaxShots ends a scan early, 0 scans the whole raster
	MaxShots int `yaml:"MaxShots"`
}

// DefaultSettings are a 1 us flash delay with 10 us pedal pulses, laser on
// CH1 and flashlamp on CH2
var DefaultSettings = Settings{
	FlashDelay:   1e-6,
	Skip:         1,
	Width1:       1e-5,
	Width2:       1e-5,
	RefChannel:   1,
	FlashChannel: 2,
	Settle:       200 * time.Millisecond,
	Readout:      10 * time.Second,
}

// Runner owns the instruments of a scan.  Scope may be nil
type Runner struct {
	Delays Delays
	Scope  Scope
	Camera Camera
	TDC    TimeTagger
	Stage  Stage
	Rec    *imgrec.Recorder
	Log    *runlog.Store

	Settings Settings

	// Progress, if not nil, is called after each logged shot
	Progress func(runlog.Shot)

	now func() time.Time
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Shot takes shot number idx of run and logs it
func (r *Runner) Shot(ctx context.Context, run string, idx int) (runlog.Shot, error) {
	s := r.Settings
	sh := runlog.Shot{RunID: run, Index: idx, SetDelay: int64(math.Round(s.FlashDelay * 1e9))}
	sched, err := r.Delays.Setup(s.FlashDelay, s.Skip, s.Width1, s.Width2)
	if err != nil {
		return sh, fmt.Errorf("programming delays: %w", err)
	}
	if r.Scope != nil {
		if err = r.Scope.Ready(); err != nil {
			return sh, fmt.Errorf("readying scope: %w", err)
		}
	}
	if err = r.Camera.Arm(); err != nil {
		return sh, fmt.Errorf("arming camera: %w", err)
	}
	if _, err = r.Delays.Run(); err != nil {
		return sh, fmt.Errorf("firing: %w", err)
	}
	sh.Time = r.clock()
	stop := func() {
		if _, err := r.Delays.Stop(); err != nil {
			log.Printf("stopping delay generator after shot %d: %v", idx, err)
		}
	}
	if err = sleep(ctx, s.Settle); err != nil {
		stop()
		return sh, err
	}

	tctx, cancel := context.WithTimeout(ctx, s.Readout)
	capture, err := r.TDC.Start(tctx)
	cancel()
	if err != nil {
		stop()
		return sh, fmt.Errorf("reading TDC: %w", err)
	}
	img, err := r.Camera.GetImage()
	stop()
	if err != nil {
		return sh, fmt.Errorf("reading camera: %w", err)
	}
	sh.Counts = capture.Counts
	sh.TrueDelay, err = TrueDelay(capture.Events, s.RefChannel, s.FlashChannel)
	if err != nil {
		log.Printf("shot %d: %v, true delay logged as 0", idx, err)
	}

	cards := []fitsio.Card{
		{Name: "RUNID", Value: run},
		{Name: "SHOT", Value: idx},
		{Name: "SETDELAY", Value: int(sh.SetDelay), Comment: "flashlamp delay, ns"},
		{Name: "TRUDELAY", Value: int(sh.TrueDelay), Comment: "measured delay, ns"},
		{Name: "PEDAL1", Value: sched.Pedal1, Comment: "s"},
		{Name: "PEDAL2", Value: sched.Pedal2, Comment: "s"},
		{Name: "FLASH", Value: sched.Flash, Comment: "s"},
		{Name: "COUNTS", Value: util.IntSliceToCSV(sh.Counts[:]), Comment: "TDC events on CH1-CH4"},
	}
	if md, ok := r.Camera.(interface{ CollectHeaderMetadata() []fitsio.Card }); ok {
		cards = append(cards, md.CollectHeaderMetadata()...)
	}
	if r.Scope != nil && s.ScopeMeas > 0 {
		v, err := r.Scope.GetValue(s.ScopeMeas)
		if err != nil {
			return sh, fmt.Errorf("reading scope: %w", err)
		}
		cards = append(cards, fitsio.Card{Name: "SCOPE", Value: v, Comment: fmt.Sprintf("measurement %d", s.ScopeMeas)})
	}
	sh.X, sh.Y, err = r.Stage.Position()
	if err != nil {
		return sh, fmt.Errorf("reading stage position: %w", err)
	}
	cards = append(cards, fitsio.Card{Name: "STAGEX", Value: sh.X}, fitsio.Card{Name: "STAGEY", Value: sh.Y})

	sh.Image, err = r.Rec.Save(FileName(sh.Time, sh.SetDelay, sh.TrueDelay), cards, img)
	if err != nil {
		return sh, err
	}
	if err = r.Log.Record(ctx, sh); err != nil {
		return sh, err
	}
	metrics.Shots.Inc()
	if r.Progress != nil {
		r.Progress(sh)
	}
	return sh, nil
}

// Scan starts a run and takes shots, stepping the stage after each, until
// the raster is done, MaxShots is reached or ctx ends.  The shots taken are
// returned along with the first error
func (r *Runner) Scan(ctx context.Context, note string) (runlog.Run, []runlog.Shot, error) {
	run, err := r.Log.NewRun(ctx, note)
	if err != nil {
		return run, nil, err
	}
	log.Printf("run %s started", run.ID)
	var shots []runlog.Shot
	for idx := 0; !r.Stage.Done(); idx++ {
		if r.Settings.MaxShots > 0 && idx >= r.Settings.MaxShots {
			break
		}
		if err = ctx.Err(); err != nil {
			return run, shots, err
		}
		sh, err := r.Shot(ctx, run.ID, idx)
		if err != nil {
			return run, shots, fmt.Errorf("shot %d: %w", idx, err)
		}
		shots = append(shots, sh)
		if err = r.Stage.Next(); err != nil {
			return run, shots, fmt.Errorf("moving stage after shot %d: %w", idx, err)
		}
	}
	log.Printf("run %s finished after %d shots", run.ID, len(shots))
	return run, shots, nil
}
