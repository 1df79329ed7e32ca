// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flags provides an easy creation of standard flag parameters for event-builder processes.
package flags // import "github.com/go-daq/evb/flags"

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-daq/evb/config"
	"github.com/go-daq/evb/log"
)

// New parses the command-line of an event-builder process.
func New() config.Process {
	cmd, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	return cmd
}

// Parse registers the standard flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (config.Process, error) {
	var (
		cmd config.Process
		lvl string
	)

	fs.StringVar(&cmd.Name, "id", "evb", "name of the event-builder process")
	fs.StringVar(&lvl, "lvl", "INFO", "msgstream level")
	fs.StringVar(&cmd.Config, "cfg", "", "path to the event-builder YAML configuration")
	fs.IntVar(&cmd.Workers, "workers", 1, "number of slice workers")
	fs.IntVar(&cmd.Chunk, "chunk", 4, "number of contiguous slices per worker job")
	fs.StringVar(&cmd.Web, "web", "", "[addr]:port of the HTTP monitor")
	fs.BoolVar(&cmd.Interactive, "i", false, "enable interactive shell")

	err := fs.Parse(args)
	if err != nil {
		return cmd, err
	}

	cmd.Args = fs.Args()

	if cmd.Name == "" {
		return cmd, fmt.Errorf("missing event-builder process name")
	}

	cmd.Level, err = log.ParseLevel(lvl)
	if err != nil {
		return cmd, err
	}

	if cmd.Workers < 1 {
		cmd.Workers = 1
	}
	if cmd.Chunk < 1 {
		cmd.Chunk = 1
	}

	return cmd, nil
}
