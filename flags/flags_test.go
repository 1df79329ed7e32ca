// Copyright 2020 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flags

import (
	"flag"
	"reflect"
	"testing"

	"github.com/go-daq/evb/config"
	"github.com/go-daq/evb/log"
)

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want config.Process
		err  bool
	}{
		{
			args: nil,
			want: config.Process{Name: "evb", Level: log.LvlInfo, Workers: 1, Chunk: 4},
		},
		{
			args: []string{"-id", "evb-01", "-lvl", "dbg", "-cfg", "evb.yaml", "-workers", "4", "-chunk", "0", "-web", ":8080", "-i", "tcp://localhost:5555"},
			want: config.Process{
				Name: "evb-01", Level: log.LvlDebug, Config: "evb.yaml",
				Workers: 4, Chunk: 1, Web: ":8080", Interactive: true,
				Args: []string{"tcp://localhost:5555"},
			},
		},
		{
			args: []string{"-lvl", "loud"},
			err:  true,
		},
		{
			args: []string{"-id", ""},
			err:  true,
		},
	} {
		t.Run("", func(t *testing.T) {
			fs := flag.NewFlagSet("evb", flag.ContinueOnError)
			got, err := Parse(fs, tt.args)
			if tt.err {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("could not parse flags: %+v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("invalid process config.\ngot = %+v\nwant= %+v\n", got, tt.want)
			}
		})
	}
}
