// pem_test.go - PEM display helper tests.
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

package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/crypto/pke"
)

func TestTruncatePEM(t *testing.T) {
	require := require.New(t)

	for _, name := range []string{pke.RSAOAEP2048, "x25519"} {
		pk, _, err := pke.ByName(name).GenerateKeyPair()
		require.NoError(err)

		full := string(pke.PublicKeyToPEM(pk))
		truncated := TruncatePEM(full)
		lines := strings.Split(truncated, "\n")
		require.Len(lines, 3, name)
		require.True(strings.HasPrefix(lines[0], "-----BEGIN "), name)
		require.Equal("...", lines[2])
		require.Less(len(truncated), len(full))
	}

	short := "-----BEGIN TEST-----\n-----END TEST-----"
	require.Equal(short, TruncatePEM(short))
}
