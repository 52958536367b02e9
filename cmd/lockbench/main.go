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

// Binary lockbench exercises the monitor subsystem under synthetic workloads
// and reports throughput and inflation behavior.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"objvm.dev/objvm/pkg/config"
	"objvm.dev/objvm/pkg/vm"
)

var configPath = flag.String("config", "", "path to a TOML runtime configuration; defaults apply if empty")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(contendCmd), "workloads")
	subcommands.Register(new(waitNotifyCmd), "workloads")
	subcommands.Register(new(recurseCmd), "workloads")

	flag.Parse()
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false})
	os.Exit(int(subcommands.Execute(context.Background())))
}

// newVM builds a runtime from the -config flag.
func newVM() (*vm.VM, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	return vm.New(cfg)
}

// fail logs err and maps it to a subcommand exit status.
func fail(err error) subcommands.ExitStatus {
	logrus.WithError(err).Error("workload failed")
	return subcommands.ExitFailure
}
