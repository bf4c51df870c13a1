// main.go - onionmix local test network.
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
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/onionmix/onionmix/common"
	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/directory"
	dirConfig "github.com/onionmix/onionmix/directory/config"
	"github.com/onionmix/onionmix/endpoint"
	endpointConfig "github.com/onionmix/onionmix/endpoint/config"
	"github.com/onionmix/onionmix/relay"
	relayConfig "github.com/onionmix/onionmix/relay/config"
)

const localhost = "127.0.0.1"

// Config holds the command line configuration.
type Config struct {
	DataDir       string
	BasePort      int
	Relays        int
	Endpoints     int
	CircuitLength int
	QUIC          bool
	KeySchemes    []string
	LogLevel      string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "testnet",
		Short: "Run a local onionmix network in one process",
		Long: `Starts a directory, a set of relays and a set of endpoints on the
loopback interface, for development and demonstrations.

Ports are allocated upwards from the base port: the directory takes the
base port, relay i takes base+i, and endpoint i accepts messages on
base+100+i with its API on base+200+i.  Every endpoint has every other
endpoint as a contact, with the contact id being the endpoint number.

Relays cycle through the given key schemes.`,
		Example: `  # Three relays and two endpoints
  testnet

  # A bigger network over QUIC, with post quantum relay keys
  testnet --relays 9 --endpoints 4 --quic --key-schemes MLKEM768,MLKEM768-X25519`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.DataDir, "datadir", "d", "",
		"base directory for the state of every node (a temporary directory if unset)")
	cmd.Flags().IntVarP(&cfg.BasePort, "base-port", "b", 30000,
		"first port of the network")
	cmd.Flags().IntVarP(&cfg.Relays, "relays", "r", 3,
		"number of relays")
	cmd.Flags().IntVarP(&cfg.Endpoints, "endpoints", "e", 2,
		"number of endpoints")
	cmd.Flags().IntVarP(&cfg.CircuitLength, "circuit-length", "l", 3,
		"number of relays in every circuit")
	cmd.Flags().BoolVarP(&cfg.QUIC, "quic", "q", false,
		"relay and deliver over QUIC instead of HTTP")
	cmd.Flags().StringSliceVarP(&cfg.KeySchemes, "key-schemes", "k", []string{pke.DefaultSchemeName},
		"relay key schemes")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "NOTICE",
		"log level of every node")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Relays < 1:
		return errors.New("invalid argument: at least one relay is required")
	case cfg.Endpoints < 1:
		return errors.New("invalid argument: at least one endpoint is required")
	case cfg.Relays >= 100 || cfg.Endpoints >= 100:
		return errors.New("invalid argument: at most 99 relays and endpoints are supported")
	case cfg.CircuitLength < 1 || cfg.CircuitLength > cfg.Relays:
		return fmt.Errorf("invalid argument: circuit length must be between 1 and %d", cfg.Relays)
	case cfg.BasePort < 1 || cfg.BasePort+300 > 65535:
		return errors.New("invalid argument: base port out of range")
	}
	for _, v := range cfg.KeySchemes {
		if pke.ByName(v) == nil {
			return fmt.Errorf("invalid argument: unknown key scheme '%v'", v)
		}
	}
	return nil
}

func (cfg *Config) hostPort(offset int) string {
	return net.JoinHostPort(localhost, strconv.Itoa(cfg.BasePort+offset))
}

func (cfg *Config) scheme() string {
	if cfg.QUIC {
		return "quic"
	}
	return "http"
}

func (cfg *Config) endpointAddress(i int) string {
	return cfg.scheme() + "://" + cfg.hostPort(100+i)
}

func (cfg *Config) dataDir(name string) string {
	return filepath.Join(cfg.DataDir, name)
}

func (cfg *Config) directoryConfig() *dirConfig.Config {
	return &dirConfig.Config{
		Directory: &dirConfig.Directory{
			Addresses: []string{cfg.hostPort(0)},
			DataDir:   cfg.dataDir("directory"),
		},
		Logging: &dirConfig.Logging{Level: cfg.LogLevel},
	}
}

func (cfg *Config) relayConfig(i int) *relayConfig.Config {
	return &relayConfig.Config{
		Relay: &relayConfig.Relay{
			ID:        uint64(i),
			Address:   cfg.scheme() + "://" + cfg.hostPort(i),
			DataDir:   cfg.dataDir(fmt.Sprintf("relay%d", i)),
			KeyScheme: cfg.KeySchemes[(i-1)%len(cfg.KeySchemes)],
		},
		Directory: &relayConfig.Directory{Address: "http://" + cfg.hostPort(0)},
		Logging:   &relayConfig.Logging{Level: cfg.LogLevel},
	}
}

func (cfg *Config) endpointConfig(i int) *endpointConfig.Config {
	c := &endpointConfig.Config{
		Endpoint: &endpointConfig.Endpoint{
			ID:            uint64(i),
			Address:       cfg.endpointAddress(i),
			Addresses:     []string{cfg.hostPort(200 + i)},
			DataDir:       cfg.dataDir(fmt.Sprintf("endpoint%d", i)),
			CircuitLength: cfg.CircuitLength,
		},
		Directory: &endpointConfig.Directory{Address: "http://" + cfg.hostPort(0)},
		Logging:   &endpointConfig.Logging{Level: cfg.LogLevel},
		Debug:     &endpointConfig.Debug{RecordCircuits: true},
	}
	for j := 1; j <= cfg.Endpoints; j++ {
		if j != i {
			c.Contacts = append(c.Contacts, &endpointConfig.Contact{ID: uint64(j), Address: cfg.endpointAddress(j)})
		}
	}
	return c
}

func run(out io.Writer, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	common.PrepareProcess()

	if cfg.DataDir == "" {
		d, err := os.MkdirTemp("", "onionmix-testnet")
		if err != nil {
			return err
		}
		defer os.RemoveAll(d)
		cfg.DataDir = d
	} else if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return err
	}
	cfg.DataDir, _ = filepath.Abs(cfg.DataDir)

	var daemons []common.Daemon
	defer func() {
		// Relays unregister on shutdown, so the directory goes last.
		for i := len(daemons) - 1; i >= 0; i-- {
			daemons[i].Shutdown()
		}
	}()

	dCfg := cfg.directoryConfig()
	if err := dCfg.FixupAndValidate(); err != nil {
		return err
	}
	dir, err := directory.New(dCfg)
	if err != nil {
		return fmt.Errorf("failed to spawn directory: %v", err)
	}
	daemons = append(daemons, dir)
	fmt.Fprintf(out, "directory   http://%v\n", dir.Addresses()[0])

	for i := 1; i <= cfg.Relays; i++ {
		rCfg := cfg.relayConfig(i)
		if err = rCfg.FixupAndValidate(); err != nil {
			return err
		}
		r, err := relay.New(rCfg)
		if err != nil {
			return fmt.Errorf("failed to spawn relay %d: %v", i, err)
		}
		daemons = append(daemons, r)
		pk := r.Relay().Key().PublicKey()
		fmt.Fprintf(out, "relay %-4d  %v  %v %v\n", i, r.Descriptor().Address, pk.Scheme().Name(), pke.Fingerprint(pk))
	}

	for i := 1; i <= cfg.Endpoints; i++ {
		eCfg := cfg.endpointConfig(i)
		if err = eCfg.FixupAndValidate(); err != nil {
			return err
		}
		id := i
		e, err := endpoint.New(eCfg, endpoint.WithSink(func(m []byte) {
			fmt.Fprintf(out, "endpoint %d received: %s\n", id, m)
		}))
		if err != nil {
			return fmt.Errorf("failed to spawn endpoint %d: %v", i, err)
		}
		daemons = append(daemons, e)
		fmt.Fprintf(out, "endpoint %-2d %v  api %v\n", i, e.Address(), e.APIAddress())
	}

	common.RunDaemons(daemons...)
	return nil
}
