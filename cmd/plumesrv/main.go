package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "plumesrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:  ":8000",
		Nodes: []ObjSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `plumesrv communicates with the laser ablation bench and exposes an HTTP
interface to it.  This enables a server-client architecture, and the clients
can leverage the excellent HTTP libraries for any programming language.

Usage:
	plumesrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `plumesrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server will only serve /endpoints and /metrics.

No two endpoints can have the same URL.

URLs may look like any variation between "bench/qc" or "/bench/qc/", the leading
slash is added and the trailing slash removed by the server.

Every node has a /lock route.  While a node is locked, its other routes reply
423 (Locked).  Stages can also lock single axes with /axis/{axis}/lock.

Setting Mock: true replaces every device with a simulation.

Hardware and matching "type" fields, case insensitive, alphabetical by vendor:
- BNC
	> 505 pulse generator "bnc505", "bnc"
- Arduino
	> UNO reading out the TDC "uno", "tdc", "timetagger"
- Quantum Composers
	> 9520 pulse / delay generator "qc9520", "quantumcomposers", "delaygen"
- SMD2
	> two axis stepper driver "smd2", "stage", "stepper"
	  Raster.Steps and Raster.Size enable /raster/step
	  Limits.<axis>.Min and .Max bound moves of axis 1 and 2
- Tektronix
	> TDS2000 series oscilloscope over USB "tds2000", "tds2014c", "tektronix", "scope"
	  Addr is the VISA resource string
- Thorlabs
	> CS505MU1 scientific camera "cs505mu1", "thorlabs", "camera"
	  needs a build with -tags tlcamera unless Mock is set
	  ImageRoot saves every FITS image served`
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
	fmt.Printf("plumesrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux, devices, err := BuildMux(c)
	if err != nil {
		log.Fatal(err)
	}
	srv := &http.Server{Addr: c.Addr, Handler: mux}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()
	log.Println("now listening for requests at ", c.Addr)
	err = srv.ListenAndServe()
	if cerr := devices.Close(); cerr != nil {
		log.Println("closing devices:", cerr)
	}
	if err != http.ErrServerClosed {
		log.Fatal(err)
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
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
