package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	"github.com/plume-lab/plume/experiment"
	"github.com/plume-lab/plume/runlog"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "plumeshot.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Delays:    SerialSetup{Addr: "/dev/ttyUSB0"},
		TDC:       SerialSetup{Addr: "/dev/ttyACM0"},
		Stage:     SerialSetup{Addr: "/dev/ttyUSB1"},
		Raster:    RasterSetup{Steps: 500, Size: 10000},
		Settings:  experiment.DefaultSettings,
		DB:        "plume.db",
		ImageRoot: "images"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `plumeshot runs an ablation scan: it fires the laser at each site of the
stage raster, images the plume and logs every shot.

Usage:
	plumeshot <command> [note]

Commands:
	run
	runs
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `plumeshot is configured by plumeshot.yml in the working directory.  mkconf
writes one with the defaults.

Delays, TDC and Stage are serial instruments: a QC9520 delay generator, the
UNO that reads out the TDC and the SMD2 stepper driver.  Each has an Addr and
optional Serial settings (Baud, Size, Parity, StopBits, ReadTimeout).

Scope is the VISA resource of a TDS2000 series scope, e.g.
USB0::0x0699::0x0368::C012345::INSTR, or empty to scan without it.

Settings control each shot:
	FlashDelay, Width1, Width2 in seconds
	Skip, laser shots let through before the ablation shot
	RefChannel, FlashChannel, TDC inputs 1-4 used for the true delay
	ScopeMeas, the scope measurement slot stored with each image, 0 for none
	Settle, Readout as durations, e.g. 200ms
	MaxShots, 0 for the whole raster

Images are saved as FITS under ImageRoot/yyyy-mm-dd/ and the shots are logged
to the sqlite database at DB.  "plumeshot runs" lists the logged runs.

Setting Mock: true replaces every instrument with a simulation.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("plumeshot version %v\n", Version)
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " scanning",
		SuffixAutoColon:   true,
		Message:           "starting",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
}

func run(note string) {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	runner, instruments, err := BuildRunner(c)
	if err != nil {
		log.Fatal(err)
	}
	defer instruments.Close()

	spinner, err := newSpinner()
	if err != nil {
		log.Fatal(err)
	}
	runner.Progress = func(sh runlog.Shot) {
		spinner.Message(fmt.Sprintf("shot %d at (%d, %d), delay %d ns", sh.Index, sh.X, sh.Y, sh.TrueDelay))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	spinner.Start()
	r, shots, err := runner.Scan(ctx, note)
	if err != nil {
		spinner.StopFailMessage(fmt.Sprintf("run %s stopped after %d shots", r.ID, len(shots)))
		spinner.StopFail()
		log.Println(err)
		return
	}
	spinner.StopMessage(fmt.Sprintf("run %s, %d shots", r.ID, len(shots)))
	spinner.Stop()
}

func listRuns() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	store, err := runlog.Open(c.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	runs, err := store.Runs(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s\n", r.ID, r.Started.Format(time.RFC3339), r.Note)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run(strings.Join(args[2:], " "))
		return
	case "runs":
		listRuns()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
