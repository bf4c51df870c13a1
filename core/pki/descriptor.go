// descriptor.go - Relay descriptor s11n.
// Copyright (C) 2022  Yawning Angel, masala, David Stainton
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
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/utils"
)

// RelayDescriptor is a description of a relay.
type RelayDescriptor struct {
	// ID is the unique, stable relay identifier.
	ID uint64

	// KeyScheme is the name of the pke scheme of PublicKey.
	KeyScheme string

	// PublicKey is the relay's binary serialized public key.
	PublicKey []byte

	// Address is the URL the relay accepts envelopes on.
	Address string
}

type relayDescriptor RelayDescriptor

// NewRelayDescriptor returns a descriptor for the public key.
func NewRelayDescriptor(id uint64, pk pke.PublicKey, address string) *RelayDescriptor {
	return &RelayDescriptor{
		ID:        id,
		KeyScheme: pk.Scheme().Name(),
		PublicKey: pk.Bytes(),
		Address:   address,
	}
}

// Key deserializes the descriptor's public key.
func (d *RelayDescriptor) Key() (pke.PublicKey, error) {
	s := pke.ByName(d.KeyScheme)
	if s == nil {
		return nil, fmt.Errorf("pki: relay %d has unknown key scheme '%v'", d.ID, d.KeyScheme)
	}
	pk, err := s.UnmarshalPublicKey(d.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("pki: relay %d has an invalid public key: %w", d.ID, err)
	}
	return pk, nil
}

// SameKey returns true iff both descriptors carry the same key.
func (d *RelayDescriptor) SameKey(other *RelayDescriptor) bool {
	return d.KeyScheme == other.KeyScheme && bytes.Equal(d.PublicKey, other.PublicKey)
}

// String returns a human readable RelayDescriptor suitable for terse logging.
func (d *RelayDescriptor) String() string {
	fp := "invalid"
	if pk, err := d.Key(); err == nil {
		fp = pke.Fingerprint(pk)
	}
	return fmt.Sprintf("{%d %s %s %s}", d.ID, d.KeyScheme, fp, d.Address)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface
func (d *RelayDescriptor) UnmarshalBinary(data []byte) error {
	return cbor.Unmarshal(data, (*relayDescriptor)(d))
}

// MarshalBinary implmements encoding.BinaryMarshaler
func (d *RelayDescriptor) MarshalBinary() ([]byte, error) {
	return ccbor.Marshal((*relayDescriptor)(d))
}

// IsDescriptorWellFormed validates the descriptor and returns a descriptive
// error iff there are any problems that would make it unusable as a hop.
func IsDescriptorWellFormed(d *RelayDescriptor) error {
	if d == nil {
		return fmt.Errorf("Descriptor is nil")
	}
	if len(d.PublicKey) == 0 {
		return fmt.Errorf("Descriptor %d missing PublicKey", d.ID)
	}
	if _, err := d.Key(); err != nil {
		return err
	}
	if d.Address == "" {
		return fmt.Errorf("Descriptor %d missing Address", d.ID)
	}
	addr, err := utils.NormalizeNodeAddress(d.Address)
	if err != nil {
		return fmt.Errorf("Descriptor %d contains invalid address: %v", d.ID, err)
	}
	if addr != d.Address {
		return fmt.Errorf("Descriptor %d address '%v' is not normalized", d.ID, d.Address)
	}
	return nil
}
