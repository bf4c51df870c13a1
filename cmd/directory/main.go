// main.go - onionmix directory binary.
// Copyright (C) 2026  The onionmix Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onionmix/onionmix/common"
	"github.com/onionmix/onionmix/directory"
	"github.com/onionmix/onionmix/directory/config"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "directory",
		Short: "onionmix relay directory",
		Long: `The directory is the registry relays announce themselves to and
endpoints build their circuits from.

Relays register their id, public key and address over HTTP, and remove
themselves again on shutdown.  The registry is persisted to the DataDir,
so a restarted directory keeps serving the relays it knew about.

The directory is a trusted party.  It does not authenticate registrations
beyond requiring the key of an existing entry to remove it.`,
		Example: `  # Start the directory with the default configuration file
  directory

  # Start the directory with a custom configuration file
  directory --config /etc/onionmix/directory.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "directory.toml",
		"path to the directory configuration file (TOML format)")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func run(cfg Config) error {
	common.PrepareProcess()

	dirCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	svr, err := directory.New(dirCfg)
	if err != nil {
		return fmt.Errorf("failed to spawn directory instance: %v", err)
	}
	defer svr.Shutdown()

	common.RunDaemons(svr)
	return nil
}
