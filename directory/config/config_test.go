// config_test.go - Directory configuration tests.
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

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	require := require.New(t)

	const basicConfig = `
[Directory]
Addresses = [ "127.0.0.1:8080" ]
DataDir = "/var/lib/onionmix/directory"
AllowedKeySchemes = [ "rsa-oaep-2048", "x25519" ]

[Logging]
Level = "debug"
`
	cfg, err := Load([]byte(basicConfig))
	require.NoError(err)
	require.Equal("DEBUG", cfg.Logging.Level)
	require.Equal([]string{"RSA-OAEP-2048", "x25519"}, cfg.Directory.AllowedKeySchemes)
	require.Equal(30, cfg.Directory.ReadTimeoutSec)
	require.Equal(float64(30), cfg.Directory.ReadTimeout().Seconds())

	cfg, err = Load([]byte("[Directory]\nDataDir = \"/tmp/d\"\n"))
	require.NoError(err)
	require.Equal([]string{defaultAddress}, cfg.Directory.Addresses)
	require.Equal(defaultLogLevel, cfg.Logging.Level)
}

func TestConfigErrors(t *testing.T) {
	for name, body := range map[string]string{
		"missing section": "[Logging]\nLevel = \"DEBUG\"\n",
		"relative datadir": "[Directory]\nDataDir = \"d\"\n",
		"hostname address": "[Directory]\nDataDir = \"/d\"\nAddresses = [ \"localhost:80\" ]\n",
		"unknown scheme":   "[Directory]\nDataDir = \"/d\"\nAllowedKeySchemes = [ \"nope\" ]\n",
		"bad level":        "[Directory]\nDataDir = \"/d\"\n[Logging]\nLevel = \"LOUD\"\n",
		"undecoded key":    "[Directory]\nDataDir = \"/d\"\nPrivateKeys = true\n",
		"syntax":           "[Directory\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			require.Error(t, err)
		})
	}
}
