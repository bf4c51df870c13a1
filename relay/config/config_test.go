// config_test.go - Relay configuration tests.
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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	require := require.New(t)

	const basicConfig = `
[Relay]
ID = 3
Address = "HTTP://127.0.0.1:4003"
DataDir = "/var/lib/onionmix/relay3"
KeyScheme = "x25519"

[Directory]
Address = "http://127.0.0.1:8080"

[Logging]
Level = "info"

[Debug]
ForwardTimeoutSec = 5
MetricsAddress = "127.0.0.1:6543"
`
	cfg, err := Load([]byte(basicConfig))
	require.NoError(err)
	require.Equal(uint64(3), cfg.Relay.ID)
	require.Equal("http://127.0.0.1:4003", cfg.Relay.Address)
	require.Equal([]string{"127.0.0.1:4003"}, cfg.Relay.Addresses)
	require.Empty(cfg.Relay.QUICAddress)
	require.Equal("INFO", cfg.Logging.Level)
	require.Equal(5*time.Second, cfg.Debug.ForwardTimeout())
	require.Equal(defaultDialTimeoutSec*time.Second, cfg.Debug.DialTimeout())
	require.Equal(defaultReplayFilterLn2, cfg.Debug.ReplayFilterLn2)
	require.False(cfg.Debug.DisableReplayFilter)

	cfg, err = Load([]byte(`
[Relay]
Address = "quic://127.0.0.1:0"
DataDir = "/tmp/r"
[Directory]
Address = "http://127.0.0.1:8080"
`))
	require.NoError(err)
	require.Equal("127.0.0.1:0", cfg.Relay.QUICAddress)
	require.Empty(cfg.Relay.Addresses)
	require.Equal("RSA-OAEP-2048", cfg.Relay.KeyScheme)
	require.Equal(defaultLogLevel, cfg.Logging.Level)
}

func TestConfigErrors(t *testing.T) {
	const dir = "[Directory]\nAddress = \"http://127.0.0.1:8080\"\n"

	for name, body := range map[string]string{
		"missing relay":     dir,
		"missing directory": "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\n",
		"missing address":   "[Relay]\nDataDir = \"/r\"\n" + dir,
		"bad scheme":        "[Relay]\nAddress = \"udp://127.0.0.1:1\"\nDataDir = \"/r\"\n" + dir,
		"hostname bind":     "[Relay]\nAddress = \"http://relay.example:1\"\nDataDir = \"/r\"\n" + dir,
		"relative datadir":  "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"r\"\n" + dir,
		"unknown scheme":    "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\nKeyScheme = \"rot13\"\n" + dir,
		"bad directory":     "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\n[Directory]\nAddress = \"quic://127.0.0.1:1\"\n",
		"bad filter size":   "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\n" + dir + "[Debug]\nReplayFilterLn2 = 64\n",
		"negative timeout":  "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\n" + dir + "[Debug]\nDialTimeoutSec = -1\n",
		"undecoded key":     "[Relay]\nAddress = \"http://127.0.0.1:1\"\nDataDir = \"/r\"\nPrivateKey = \"x\"\n" + dir,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			require.Error(t, err)
		})
	}
}
