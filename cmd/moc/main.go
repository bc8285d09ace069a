// File: cmd/moc/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// moc creates and inspects the shared core ownership table.
//
//	moc init [-cores N] [-legacy]   write a fresh table at $MOC_MAPFILE (default moc.dat)
//	moc read                        dump the advisory lock, core count and cells
//	moc help | -h                   print usage

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/momentics/corelend/api"
	"github.com/momentics/corelend/control"
	"github.com/momentics/corelend/internal/table"
)

const usage = "usage: moc init [-cores N] [-legacy] | read | help\n"

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	cfg, err := control.LoadConfig(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "moc: %v\n", err)
		return 1
	}
	log := control.Component(control.NewLogger(cfg.Level(), stderr), "moc")

	switch args[0] {
	case "init":
		return runInit(args[1:], cfg, log, stdout, stderr)
	case "read":
		if len(args) != 1 {
			fmt.Fprint(stderr, usage)
			return 1
		}
		return runRead(cfg, log, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "moc: unknown command %q\n", args[0])
		fmt.Fprint(stderr, usage)
		return 1
	}
}

func runInit(args []string, cfg *control.Config, log *control.Logger, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cores := fs.Int("cores", table.MaxCores, "number of live cells")
	legacy := fs.Bool("legacy", false, "mark every cell uninitialized")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	var opts []table.CreateOption
	if *legacy {
		opts = append(opts, table.WithInitialState(api.CellUninitialized))
	}
	fmt.Fprintf(stdout, "init file:%s\n", cfg.MapFile)
	if err := table.Create(cfg.MapFile, *cores, opts...); err != nil {
		log.Err().Err(err).Str("mapfile", cfg.MapFile).Int("cores", *cores).Log("init failed")
		return 1
	}
	log.Debug().Str("mapfile", cfg.MapFile).Int("cores", *cores).Bool("legacy", *legacy).Log("table created")
	return 0
}

func runRead(cfg *control.Config, log *control.Logger, stdout io.Writer) int {
	fmt.Fprintf(stdout, "read file:%s\n", cfg.MapFile)
	tbl, err := table.Open(cfg.MapFile)
	if err != nil {
		log.Err().Err(err).Str("mapfile", cfg.MapFile).Log("read failed")
		return 1
	}
	defer tbl.Close()
	fmt.Fprint(stdout, tbl.Snapshot().String())
	return 0
}
