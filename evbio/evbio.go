// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evbio provides digi sources and event sinks for exercizing event builders.
package evbio // import "github.com/go-daq/evb/evbio"
