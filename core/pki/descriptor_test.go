// descriptor_test.go - Descriptor s11n tests.
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

package pki

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/crypto/pke"
)

func TestDescriptor(t *testing.T) {
	require := require.New(t)

	scheme := pke.ByName("X25519")
	pk, _, err := scheme.GenerateKeyPair()
	require.NoError(err)

	d := &RelayDescriptor{ID: 7}
	require.Error(IsDescriptorWellFormed(d), "IsDescriptorWellFormed(bad)")
	require.Error(IsDescriptorWellFormed(nil))

	d = NewRelayDescriptor(7, pk, "http://127.0.0.1:3007")
	require.NoError(IsDescriptorWellFormed(d))
	t.Logf("Descriptor: '%v'", d)

	blob, err := d.MarshalBinary()
	require.NoError(err)
	d2 := new(RelayDescriptor)
	require.NoError(d2.UnmarshalBinary(blob))
	require.Equal(d, d2)
	require.True(d.SameKey(d2))

	pk2, err := d2.Key()
	require.NoError(err)
	require.True(pk.Equal(pk2))

	other, _, err := scheme.GenerateKeyPair()
	require.NoError(err)
	require.False(d.SameKey(NewRelayDescriptor(7, other, d.Address)))
}

func TestDescriptorValidation(t *testing.T) {
	require := require.New(t)

	pk, _, err := pke.ByName("X25519").GenerateKeyPair()
	require.NoError(err)

	for _, addr := range []string{"", "127.0.0.1:3000", "ftp://127.0.0.1:21", "HTTP://127.0.0.1:3000"} {
		d := NewRelayDescriptor(1, pk, addr)
		require.Errorf(IsDescriptorWellFormed(d), "address %q", addr)
	}

	d := NewRelayDescriptor(1, pk, "quic://127.0.0.1:3000")
	require.NoError(IsDescriptorWellFormed(d))

	d.KeyScheme = "nope"
	require.Error(IsDescriptorWellFormed(d))

	d.KeyScheme = "X25519"
	d.PublicKey = d.PublicKey[1:]
	require.Error(IsDescriptorWellFormed(d))
}
