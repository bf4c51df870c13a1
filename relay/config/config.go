// config.go - Relay configuration.
// Copyright (C) 2017  Yawning Angel and David Stainton.
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

// Package config implements the relay configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	defaultLogLevel          = "NOTICE"
	defaultForwardTimeoutSec = 30
	defaultDialTimeoutSec    = 10
	defaultReadTimeoutSec    = 30
	defaultReplayFilterLn2   = 23 // 1 MiB.
	minReplayFilterLn2       = 10
	maxReplayFilterLn2       = 32
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Relay is the relay configuration.
type Relay struct {
	// ID is the relay's unique identifier in the directory.
	ID uint64

	// Address is the URL the relay advertises in the directory, of the form
	// http://host:port or quic://host:port.  A port of 0 is replaced with
	// the port the matching listener bound to.
	Address string

	// Addresses are the IP address/port combinations the HTTP ingress binds
	// to.  If omitted and Address is an HTTP URL with an IP host, the host
	// and port of Address are used.
	Addresses []string

	// QUICAddress is the IP address/port combination the QUIC ingress binds
	// to.  If omitted and Address is a QUIC URL with an IP host, the host
	// and port of Address are used.
	QUICAddress string

	// DataDir is the absolute path to the relay's state files.
	DataDir string

	// KeyScheme is the name of the relay's public key encryption scheme.
	KeyScheme string
}

func (rCfg *Relay) validate() error {
	if rCfg.Address == "" {
		return errors.New("config: Relay: Address is not set")
	}
	addr, err := utils.NormalizeNodeAddress(rCfg.Address)
	if err != nil {
		return fmt.Errorf("config: Relay: %v", err)
	}
	rCfg.Address = addr
	u, _ := url.Parse(addr)

	for _, v := range rCfg.Addresses {
		if err := utils.EnsureAddrIPPort(v); err != nil {
			return fmt.Errorf("config: Relay: Address '%v' is invalid: %v", v, err)
		}
	}
	if rCfg.QUICAddress != "" {
		if err := utils.EnsureAddrIPPort(rCfg.QUICAddress); err != nil {
			return fmt.Errorf("config: Relay: QUICAddress '%v' is invalid: %v", rCfg.QUICAddress, err)
		}
	}
	switch u.Scheme {
	case utils.SchemeHTTP:
		if len(rCfg.Addresses) == 0 {
			if net.ParseIP(u.Hostname()) == nil {
				return errors.New("config: Relay: Addresses must be set when Address is not an IP URL")
			}
			rCfg.Addresses = []string{u.Host}
		}
	case utils.SchemeQUIC:
		if rCfg.QUICAddress == "" {
			if net.ParseIP(u.Hostname()) == nil {
				return errors.New("config: Relay: QUICAddress must be set when Address is not an IP URL")
			}
			rCfg.QUICAddress = u.Host
		}
	}

	if !filepath.IsAbs(rCfg.DataDir) {
		return fmt.Errorf("config: Relay: DataDir '%v' is not an absolute path", rCfg.DataDir)
	}
	if rCfg.KeyScheme == "" {
		rCfg.KeyScheme = pke.DefaultSchemeName
	}
	s := pke.ByName(rCfg.KeyScheme)
	if s == nil {
		return fmt.Errorf("config: Relay: KeyScheme '%v' is unknown", rCfg.KeyScheme)
	}
	rCfg.KeyScheme = s.Name()
	return nil
}

// Directory is the directory the relay registers with.
type Directory struct {
	// Address is the directory's base URL, eg: http://127.0.0.1:8080.
	Address string
}

func (dCfg *Directory) validate() error {
	u, err := url.Parse(dCfg.Address)
	if err != nil {
		return fmt.Errorf("config: Directory: Address '%v' is invalid: %v", dCfg.Address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: Directory: Address '%v' is not an HTTP URL", dCfg.Address)
	}
	return nil
}

// Logging is the relay logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Debug is the relay debug configuration.
type Debug struct {
	// ForwardTimeoutSec bounds handing an envelope to the next hop.
	ForwardTimeoutSec int

	// DialTimeoutSec bounds establishing an outgoing QUIC connection.
	DialTimeoutSec int

	// ReadTimeoutSec bounds reading an inbound request.
	ReadTimeoutSec int

	// DisableReplayFilter disables rejecting envelopes already processed.
	DisableReplayFilter bool

	// ReplayFilterLn2 is the log2 of the replay filter size in bits.
	ReplayFilterLn2 int

	// MetricsAddress is the IP address/port combination the Prometheus
	// metrics are served on.  Metrics are disabled if empty.
	MetricsAddress string

	// SkipUnregister leaves the relay registered on shutdown.
	SkipUnregister bool
}

// ForwardTimeout returns the forwarding timeout.
func (dCfg *Debug) ForwardTimeout() time.Duration {
	return time.Duration(dCfg.ForwardTimeoutSec) * time.Second
}

// DialTimeout returns the QUIC dial timeout.
func (dCfg *Debug) DialTimeout() time.Duration {
	return time.Duration(dCfg.DialTimeoutSec) * time.Second
}

// ReadTimeout returns the ingress read timeout.
func (dCfg *Debug) ReadTimeout() time.Duration {
	return time.Duration(dCfg.ReadTimeoutSec) * time.Second
}

func (dCfg *Debug) validate() error {
	if dCfg.ForwardTimeoutSec < 0 || dCfg.DialTimeoutSec < 0 || dCfg.ReadTimeoutSec < 0 {
		return errors.New("config: Debug: timeouts must not be negative")
	}
	if dCfg.ReplayFilterLn2 != 0 && (dCfg.ReplayFilterLn2 < minReplayFilterLn2 || dCfg.ReplayFilterLn2 > maxReplayFilterLn2) {
		return fmt.Errorf("config: Debug: ReplayFilterLn2 %v is out of range", dCfg.ReplayFilterLn2)
	}
	if dCfg.MetricsAddress != "" {
		if err := utils.EnsureAddrIPPort(dCfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: Debug: MetricsAddress '%v' is invalid: %v", dCfg.MetricsAddress, err)
		}
	}
	return nil
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.ForwardTimeoutSec == 0 {
		dCfg.ForwardTimeoutSec = defaultForwardTimeoutSec
	}
	if dCfg.DialTimeoutSec == 0 {
		dCfg.DialTimeoutSec = defaultDialTimeoutSec
	}
	if dCfg.ReadTimeoutSec == 0 {
		dCfg.ReadTimeoutSec = defaultReadTimeoutSec
	}
	if dCfg.ReplayFilterLn2 == 0 {
		dCfg.ReplayFilterLn2 = defaultReplayFilterLn2
	}
}

// Config is the top level relay configuration.
type Config struct {
	Relay     *Relay
	Directory *Directory
	Logging   *Logging
	Debug     *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Relay == nil {
		return errors.New("config: No Relay block was present")
	}
	if cfg.Directory == nil {
		return errors.New("config: No Directory block was present")
	}
	if cfg.Logging == nil {
		logging := defaultLogging
		cfg.Logging = &logging
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}

	// Validate and fixup the various sections.
	if err := cfg.Relay.validate(); err != nil {
		return err
	}
	if err := cfg.Directory.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Debug.validate(); err != nil {
		return err
	}
	cfg.Debug.applyDefaults()
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
