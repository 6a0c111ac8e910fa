/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command deploykitd is the installer daemon: it wires every component
// together and exports the RPC surface on the session bus.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aosc-dev/deploykit/pkg/logger"
	"github.com/aosc-dev/deploykit/pkg/orchestrator"
	"github.com/aosc-dev/deploykit/pkg/rpcserver"
	"github.com/aosc-dev/deploykit/pkg/runner"
	"github.com/aosc-dev/deploykit/pkg/types"
	"github.com/aosc-dev/deploykit/pkg/vfs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploykitd",
		Short: "Installer backend daemon exposing io.aosc.Deploykit1",
		RunE:  runDaemon,
	}

	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("mountpoint", "/mnt/deploykit", "install target mountpoint")
	cmd.PersistentFlags().String("lock-file", "/run/deploykit.lock", "single-in-flight advisory lock path")
	cmd.PersistentFlags().String("arch", runtime.GOARCH, "target architecture")

	_ = viper.BindPFlags(cmd.PersistentFlags())
	viper.SetEnvPrefix("DEPLOYKIT")
	viper.AutomaticEnv()

	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// .env is optional; most deployments configure purely via flags/env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	log := logger.New()
	log.SetLevel(viper.GetString("log-level"))

	cfg := types.Config{
		Logger:  log,
		FS:      vfs.NewOSFS(),
		Runner:  runner.New(),
		Arch:    viper.GetString("arch"),
	}
	if err := cfg.Sanitize(); err != nil {
		return fmt.Errorf("sanitizing config: %w", err)
	}

	orch := orchestrator.New(cfg, viper.GetString("mountpoint"), viper.GetString("lock-file"))

	log.Infof("deploykitd starting, arch=%s mountpoint=%s", cfg.Arch, viper.GetString("mountpoint"))
	return rpcserver.Serve(cfg, orch, cfg.Arch)
}
