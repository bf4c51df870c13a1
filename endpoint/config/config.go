// config.go - Endpoint configuration.
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

// Package config implements the endpoint configuration.
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

	"github.com/onionmix/onionmix/core/crypto/symmetric"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	defaultLogLevel       = "NOTICE"
	defaultCircuitLength  = 3
	defaultSendTimeoutSec = 60
	defaultDialTimeoutSec = 10
	defaultReadTimeoutSec = 30
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Endpoint is the endpoint configuration.
type Endpoint struct {
	// ID is the endpoint's contact id, used only for logging.
	ID uint64

	// Address is the URL messages for this endpoint are delivered to, of
	// the form http://host:port or quic://host:port.  A port of 0 is
	// replaced with the port the matching listener bound to.
	Address string

	// Addresses are the IP address/port combinations the HTTP API binds to.
	// If omitted and Address is an HTTP URL with an IP host, the host and
	// port of Address are used.
	Addresses []string

	// QUICAddress is the IP address/port combination QUIC deliveries are
	// accepted on.  If omitted and Address is a QUIC URL with an IP host,
	// the host and port of Address are used.
	QUICAddress string

	// DataDir is the absolute path to the endpoint's state files.
	DataDir string

	// CircuitLength is the number of relays each message traverses.
	CircuitLength int

	// Cipher is the symmetric cipher layers are sealed with.
	Cipher string
}

func (eCfg *Endpoint) validate() error {
	if eCfg.Address == "" {
		return errors.New("config: Endpoint: Address is not set")
	}
	addr, err := utils.NormalizeNodeAddress(eCfg.Address)
	if err != nil {
		return fmt.Errorf("config: Endpoint: %v", err)
	}
	eCfg.Address = addr
	u, _ := url.Parse(addr)

	for _, v := range eCfg.Addresses {
		if err := utils.EnsureAddrIPPort(v); err != nil {
			return fmt.Errorf("config: Endpoint: Address '%v' is invalid: %v", v, err)
		}
	}
	if eCfg.QUICAddress != "" {
		if err := utils.EnsureAddrIPPort(eCfg.QUICAddress); err != nil {
			return fmt.Errorf("config: Endpoint: QUICAddress '%v' is invalid: %v", eCfg.QUICAddress, err)
		}
	}
	isIP := net.ParseIP(u.Hostname()) != nil
	switch u.Scheme {
	case utils.SchemeHTTP:
		if len(eCfg.Addresses) == 0 {
			if !isIP {
				return errors.New("config: Endpoint: Addresses must be set when Address is not an IP URL")
			}
			eCfg.Addresses = []string{u.Host}
		}
	case utils.SchemeQUIC:
		if eCfg.QUICAddress == "" {
			if !isIP {
				return errors.New("config: Endpoint: QUICAddress must be set when Address is not an IP URL")
			}
			eCfg.QUICAddress = u.Host
		}
		if len(eCfg.Addresses) == 0 {
			return errors.New("config: Endpoint: Addresses must be set for the HTTP API")
		}
	}

	if !filepath.IsAbs(eCfg.DataDir) {
		return fmt.Errorf("config: Endpoint: DataDir '%v' is not an absolute path", eCfg.DataDir)
	}
	if eCfg.CircuitLength < 0 || eCfg.CircuitLength > onion.MaxPathLength {
		return fmt.Errorf("config: Endpoint: CircuitLength %v is out of range", eCfg.CircuitLength)
	}
	if eCfg.Cipher != "" {
		c := symmetric.ByName(eCfg.Cipher)
		if c == nil {
			return fmt.Errorf("config: Endpoint: Cipher '%v' is unknown", eCfg.Cipher)
		}
		eCfg.Cipher = c.Name()
	}
	return nil
}

func (eCfg *Endpoint) applyDefaults() {
	if eCfg.CircuitLength == 0 {
		eCfg.CircuitLength = defaultCircuitLength
	}
	if eCfg.Cipher == "" {
		eCfg.Cipher = symmetric.Default().Name()
	}
}

// Contact is an entry in the endpoint's address book.
type Contact struct {
	// ID is the number senders address the contact by.
	ID uint64

	// Address is the contact's endpoint address.
	Address string
}

// Directory is the directory the endpoint fetches relays from.
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

// Logging is the endpoint logging configuration.
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

// Debug is the endpoint debug configuration.
type Debug struct {
	// RecordCircuits keeps the relay ids of the last circuit used, served
	// by the /getLastCircuit route.  It defeats the point of onion routing
	// and is for testing only.
	RecordCircuits bool

	// SendTimeoutSec bounds sending a message to the first relay.
	SendTimeoutSec int

	// DialTimeoutSec bounds establishing an outgoing QUIC connection.
	DialTimeoutSec int

	// ReadTimeoutSec bounds reading an inbound request.
	ReadTimeoutSec int
}

// SendTimeout returns the send timeout.
func (dCfg *Debug) SendTimeout() time.Duration {
	return time.Duration(dCfg.SendTimeoutSec) * time.Second
}

// DialTimeout returns the QUIC dial timeout.
func (dCfg *Debug) DialTimeout() time.Duration {
	return time.Duration(dCfg.DialTimeoutSec) * time.Second
}

// ReadTimeout returns the inbound request read timeout.
func (dCfg *Debug) ReadTimeout() time.Duration {
	return time.Duration(dCfg.ReadTimeoutSec) * time.Second
}

func (dCfg *Debug) validate() error {
	if dCfg.SendTimeoutSec < 0 || dCfg.DialTimeoutSec < 0 || dCfg.ReadTimeoutSec < 0 {
		return errors.New("config: Debug: timeouts must not be negative")
	}
	return nil
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.SendTimeoutSec == 0 {
		dCfg.SendTimeoutSec = defaultSendTimeoutSec
	}
	if dCfg.DialTimeoutSec == 0 {
		dCfg.DialTimeoutSec = defaultDialTimeoutSec
	}
	if dCfg.ReadTimeoutSec == 0 {
		dCfg.ReadTimeoutSec = defaultReadTimeoutSec
	}
}

// Config is the top level endpoint configuration.
type Config struct {
	Endpoint  *Endpoint
	Directory *Directory
	Contacts  []*Contact `toml:"Contact"`
	Logging   *Logging
	Debug     *Debug
}

// ContactAddress returns the address of the contact with the given id.
func (cfg *Config) ContactAddress(id uint64) (string, bool) {
	for _, c := range cfg.Contacts {
		if c.ID == id {
			return c.Address, true
		}
	}
	return "", false
}

func (cfg *Config) validateContacts() error {
	seen := make(map[uint64]bool)
	for _, c := range cfg.Contacts {
		if c == nil {
			return errors.New("config: Contact: empty entry")
		}
		if seen[c.ID] {
			return fmt.Errorf("config: Contact: duplicate ID %v", c.ID)
		}
		seen[c.ID] = true
		addr, err := utils.NormalizeNodeAddress(c.Address)
		if err != nil {
			return fmt.Errorf("config: Contact %v: %v", c.ID, err)
		}
		c.Address = addr
	}
	return nil
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Endpoint == nil {
		return errors.New("config: No Endpoint block was present")
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
	if err := cfg.Endpoint.validate(); err != nil {
		return err
	}
	if err := cfg.Directory.validate(); err != nil {
		return err
	}
	if err := cfg.validateContacts(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Debug.validate(); err != nil {
		return err
	}
	cfg.Endpoint.applyDefaults()
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
