// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

// Build compiles the evb commands.
func Build() error {
	mg.Deps(Vet)
	for _, cmd := range []string{"evb-build", "evb-gen", "evb-dump"} {
		err := sh.RunV("go", "build", "-o", "bin/"+cmd, "./cmd/"+cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

// Vet runs go vet on all packages.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the tests with the race detector.
func Test() error {
	mg.Deps(Vet)
	return sh.RunV("go", "test", "-race", "./...")
}

// Clean removes the build artifacts.
func Clean() error {
	return sh.Rm("bin")
}
