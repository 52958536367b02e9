// Copyright 2025 The objvm Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"objvm.dev/objvm/pkg/heap"
	"objvm.dev/objvm/pkg/lockword"
)

// recurseCmd drives a single thread through deep recursive locking, past the
// thin-lock recursion limit, and then deflates the result.
type recurseCmd struct {
	depth  int
	rounds int
}

// Name implements subcommands.Command.Name.
func (*recurseCmd) Name() string {
	return "recurse"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*recurseCmd) Synopsis() string {
	return "measure recursive locking and overflow inflation"
}

// Usage implements subcommands.Command.Usage.
func (*recurseCmd) Usage() string {
	return `recurse [-depth N] [-rounds N]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *recurseCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.depth, "depth", int(lockword.MaxThinRecursion)+2, "acquisitions per round")
	f.IntVar(&c.rounds, "rounds", 100, "lock ladders to run")
}

// Execute implements subcommands.Command.Execute.
func (c *recurseCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	rt, err := newVM()
	if err != nil {
		return fail(err)
	}
	self, err := rt.Attach("recurse")
	if err != nil {
		return fail(err)
	}
	defer rt.Detach(self)
	mon := rt.Monitors()

	inflated := 0
	start := time.Now()
	for r := 0; r < c.rounds; r++ {
		obj := heap.NewObject("lockbench.Ladder")
		for i := 0; i < c.depth; i++ {
			if _, err := mon.Enter(self, obj, false); err != nil {
				return fail(err)
			}
		}
		if obj.Header().State() == lockword.StateFat {
			inflated++
		}
		for i := 0; i < c.depth; i++ {
			if err := mon.Exit(self, obj); err != nil {
				return fail(err)
			}
		}
	}
	deflated := rt.Deflate()
	elapsed := time.Since(start)

	logrus.WithFields(logrus.Fields{
		"depth":        c.depth,
		"rounds":       c.rounds,
		"elapsed":      elapsed,
		"acquires/sec": float64(c.depth*c.rounds) / elapsed.Seconds(),
		"inflated":     inflated,
		"deflated":     deflated,
	}).Info("recurse complete")
	return subcommands.ExitSuccess
}
