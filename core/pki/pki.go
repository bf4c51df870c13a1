// pki.go - Relay directory interfaces.
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

// Package pki provides the relay directory interfaces and the relay
// descriptor serialization routines.
package pki

import (
	"context"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrDuplicateID is the error returned when a relay id is already
	// registered with a different descriptor.
	ErrDuplicateID = errors.New("pki: relay id already registered")

	// ErrNotFound is the error returned for relay ids the directory does
	// not know about.
	ErrNotFound = errors.New("pki: relay id not registered")

	// ErrInvalidProof is the error returned when a request fails to prove
	// ownership of the registered key.
	ErrInvalidProof = errors.New("pki: proof of key ownership failed")

	ccbor cbor.EncMode
)

// Client is the abstract interface used for directory interaction.
type Client interface {
	// Register registers the relay descriptor.  Registering the same
	// descriptor twice is not an error, an id registered with any other
	// descriptor is ErrDuplicateID.
	Register(ctx context.Context, d *RelayDescriptor) error

	// Update replaces the address of a registered relay, after proving
	// ownership of its registered key with p.
	Update(ctx context.Context, d *RelayDescriptor, p Prover) error

	// ListRelays returns every registered relay, ordered by id.
	ListRelays(ctx context.Context) ([]*RelayDescriptor, error)

	// Unregister removes the relay with the given id, after proving
	// ownership of its registered key with p.
	Unregister(ctx context.Context, id uint64, p Prover) error
}

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	ccbor, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}
