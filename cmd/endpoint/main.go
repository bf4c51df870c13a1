// main.go - onionmix endpoint binary.
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
	"github.com/onionmix/onionmix/endpoint"
	"github.com/onionmix/onionmix/endpoint/config"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile string
	Print      bool
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "onionmix endpoint",
		Long: `An endpoint sends messages through circuits of relays picked at
random from the directory, and receives the messages other endpoints send
to it.

Messages are submitted to the local HTTP API:

  POST /sendMessage  {"message": "...", "destinationUserId": 2}
  POST /sendMessage  {"message": "...", "destination": "http://host:port"}

Contacts are configured in the [[Contact]] sections of the configuration
file.`,
		Example: `  # Start an endpoint with the default configuration file
  endpoint

  # Start an endpoint and print every message it receives
  endpoint -f /etc/onionmix/endpoint.toml --print`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "endpoint.toml",
		"path to the endpoint configuration file (TOML format)")
	cmd.Flags().BoolVarP(&cfg.Print, "print", "p", false,
		"print received messages to stdout")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func run(cmd *cobra.Command, cfg Config) error {
	common.PrepareProcess()

	endpointCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	var opts []endpoint.AgentOption
	if cfg.Print {
		out := cmd.OutOrStdout()
		opts = append(opts, endpoint.WithSink(func(m []byte) {
			fmt.Fprintf(out, "%s\n", m)
		}))
	}

	svr, err := endpoint.New(endpointCfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to spawn endpoint instance: %v", err)
	}
	defer svr.Shutdown()

	fmt.Fprintf(cmd.OutOrStdout(), "Accepting messages on %v, API on %v\n", svr.Address(), svr.APIAddress())
	common.RunDaemons(svr)
	return nil
}
