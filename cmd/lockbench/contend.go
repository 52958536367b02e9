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
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"objvm.dev/objvm/pkg/heap"
)

// contendCmd hammers a set of shared objects from many threads and reports
// how many locks inflated under the contention.
type contendCmd struct {
	threads    int
	objects    int
	iterations int
}

// Name implements subcommands.Command.Name.
func (*contendCmd) Name() string {
	return "contend"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*contendCmd) Synopsis() string {
	return "measure contended lock/unlock throughput"
}

// Usage implements subcommands.Command.Usage.
func (*contendCmd) Usage() string {
	return `contend [-threads N] [-objects N] [-iterations N]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *contendCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.threads, "threads", 8, "number of contending threads")
	f.IntVar(&c.objects, "objects", 4, "number of shared objects")
	f.IntVar(&c.iterations, "iterations", 100000, "lock/unlock pairs per thread")
}

// Execute implements subcommands.Command.Execute.
func (c *contendCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	rt, err := newVM()
	if err != nil {
		return fail(err)
	}

	objs := make([]*heap.Object, c.objects)
	for i := range objs {
		objs[i] = heap.NewObject("lockbench.Shared")
	}
	counters := make([]int64, c.objects)

	start := time.Now()
	var eg errgroup.Group
	for i := 0; i < c.threads; i++ {
		self, err := rt.Attach(fmt.Sprintf("contend-%d", i))
		if err != nil {
			return fail(err)
		}
		eg.Go(func() error {
			defer rt.Detach(self)
			mon := rt.Monitors()
			for j := 0; j < c.iterations; j++ {
				k := j % len(objs)
				if _, err := mon.Enter(self, objs[k], false); err != nil {
					return err
				}
				counters[k]++
				if err := mon.Exit(self, objs[k]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fail(err)
	}
	elapsed := time.Since(start)

	var total int64
	for _, n := range counters {
		total += n
	}
	pairs := int64(c.threads) * int64(c.iterations)
	logrus.WithFields(logrus.Fields{
		"threads":    c.threads,
		"objects":    c.objects,
		"pairs":      pairs,
		"elapsed":    elapsed,
		"pairs/sec":  float64(pairs) / elapsed.Seconds(),
		"inflated":   rt.Monitors().MonitorList().Count(),
		"consistent": total == pairs,
	}).Info("contend complete")
	if total != pairs {
		logrus.Errorf("counter total %d does not match %d lock/unlock pairs", total, pairs)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
