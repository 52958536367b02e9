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
	"objvm.dev/objvm/pkg/thread"
)

// waitNotifyCmd bounces tokens through a wait/notify ring: each thread waits
// for its slot, takes a token, and notifies the others.
type waitNotifyCmd struct {
	threads int
	tokens  int
}

// Name implements subcommands.Command.Name.
func (*waitNotifyCmd) Name() string {
	return "waitnotify"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*waitNotifyCmd) Synopsis() string {
	return "measure wait/notify handoff latency"
}

// Usage implements subcommands.Command.Usage.
func (*waitNotifyCmd) Usage() string {
	return `waitnotify [-threads N] [-tokens N]
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *waitNotifyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.threads, "threads", 4, "number of consumer threads")
	f.IntVar(&c.tokens, "tokens", 10000, "tokens to hand through the ring")
}

// Execute implements subcommands.Command.Execute.
func (c *waitNotifyCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	rt, err := newVM()
	if err != nil {
		return fail(err)
	}
	mon := rt.Monitors()
	obj := heap.NewObject("lockbench.Mailbox")

	var (
		pending  int
		consumed int64
		done     bool
	)

	start := time.Now()
	var eg errgroup.Group
	for i := 0; i < c.threads; i++ {
		self, err := rt.Attach(fmt.Sprintf("consumer-%d", i))
		if err != nil {
			return fail(err)
		}
		eg.Go(func() error {
			defer rt.Detach(self)
			for {
				if _, err := mon.Enter(self, obj, false); err != nil {
					return err
				}
				for pending == 0 && !done {
					if err := mon.Wait(self, obj, 0, 0, true, thread.StateWaiting); err != nil {
						mon.Exit(self, obj)
						return err
					}
				}
				if pending > 0 {
					pending--
					consumed++
				}
				stop := done && pending == 0
				if err := mon.Exit(self, obj); err != nil {
					return err
				}
				if stop {
					return nil
				}
			}
		})
	}

	producer, err := rt.Attach("producer")
	if err != nil {
		return fail(err)
	}
	eg.Go(func() error {
		defer rt.Detach(producer)
		for i := 0; i < c.tokens; i++ {
			if _, err := mon.Enter(producer, obj, false); err != nil {
				return err
			}
			pending++
			if err := mon.Notify(producer, obj); err != nil {
				return err
			}
			if err := mon.Exit(producer, obj); err != nil {
				return err
			}
		}
		if _, err := mon.Enter(producer, obj, false); err != nil {
			return err
		}
		done = true
		if err := mon.NotifyAll(producer, obj); err != nil {
			return err
		}
		return mon.Exit(producer, obj)
	})

	if err := eg.Wait(); err != nil {
		return fail(err)
	}
	elapsed := time.Since(start)
	logrus.WithFields(logrus.Fields{
		"threads":    c.threads,
		"tokens":     c.tokens,
		"consumed":   consumed,
		"elapsed":    elapsed,
		"tokens/sec": float64(consumed) / elapsed.Seconds(),
	}).Info("waitnotify complete")
	if consumed != int64(c.tokens) {
		logrus.Errorf("consumed %d tokens, want %d", consumed, c.tokens)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
