// main.go - onionmix relay binary.
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
	"github.com/onionmix/onionmix/relay"
	"github.com/onionmix/onionmix/relay/config"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "onionmix relay node",
		Long: `A relay peels one layer off every envelope it receives and hands
what remains to the next hop, or delivers the message to its destination
when it is the last relay of the circuit.

On startup the relay loads or generates its keypair in the DataDir and
registers with the directory.  It unregisters again on a clean shutdown.

Relays only ever learn their predecessor and successor in a circuit.`,
		Example: `  # Start a relay with the default configuration file
  relay

  # Start a relay with a custom configuration file
  relay -f /etc/onionmix/relay.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "relay.toml",
		"path to the relay configuration file (TOML format)")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func run(cfg Config) error {
	common.PrepareProcess()

	relayCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	svr, err := relay.New(relayCfg)
	if err != nil {
		return fmt.Errorf("failed to spawn relay instance: %v", err)
	}
	defer svr.Shutdown()

	common.RunDaemons(svr)
	return nil
}
