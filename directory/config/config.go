// config.go - Directory configuration.
// Copyright (C) 2017  Yawning Angel.
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

// Package config implements the directory configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	defaultAddress     = "127.0.0.1:8080"
	defaultLogLevel    = "NOTICE"
	defaultReadTimeout = 30 * time.Second
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Directory is the directory configuration.
type Directory struct {
	// Addresses are the IP address/port combinations that the directory
	// will bind to for incoming connections.
	Addresses []string

	// DataDir is the absolute path to the directory's state files.
	DataDir string

	// AllowedKeySchemes restricts the relay key schemes accepted on
	// registration.  If empty every known scheme is accepted.
	AllowedKeySchemes []string

	// ReadTimeoutSec is the HTTP request read timeout in seconds.
	ReadTimeoutSec int
}

// ReadTimeout returns the HTTP request read timeout.
func (dCfg *Directory) ReadTimeout() time.Duration {
	return time.Duration(dCfg.ReadTimeoutSec) * time.Second
}

func (dCfg *Directory) validate() error {
	if dCfg.Addresses != nil {
		for _, v := range dCfg.Addresses {
			if err := utils.EnsureAddrIPPort(v); err != nil {
				return fmt.Errorf("config: Directory: Address '%v' is invalid: %v", v, err)
			}
		}
	} else {
		dCfg.Addresses = []string{defaultAddress}
	}
	if !filepath.IsAbs(dCfg.DataDir) {
		return fmt.Errorf("config: Directory: DataDir '%v' is not an absolute path", dCfg.DataDir)
	}
	for i, v := range dCfg.AllowedKeySchemes {
		s := pke.ByName(v)
		if s == nil {
			return fmt.Errorf("config: Directory: AllowedKeySchemes: unknown scheme '%v'", v)
		}
		dCfg.AllowedKeySchemes[i] = s.Name()
	}
	if dCfg.ReadTimeoutSec < 0 {
		return fmt.Errorf("config: Directory: ReadTimeoutSec %v is invalid", dCfg.ReadTimeoutSec)
	}
	return nil
}

func (dCfg *Directory) applyDefaults() {
	if dCfg.ReadTimeoutSec == 0 {
		dCfg.ReadTimeoutSec = int(defaultReadTimeout / time.Second)
	}
}

// Logging is the directory logging configuration.
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

// Config is the top level directory configuration.
type Config struct {
	Directory *Directory
	Logging   *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if cfg.Directory == nil {
		return errors.New("config: No Directory block was present")
	}
	if cfg.Logging == nil {
		logging := defaultLogging
		cfg.Logging = &logging
	}

	// Validate and fixup the various sections.
	if err := cfg.Directory.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	cfg.Directory.applyDefaults()
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
