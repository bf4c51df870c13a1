// circuit.go - Circuit construction and dispatch.
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

// Package circuit implements the sending side of the protocol: it selects
// a random path of relays, builds the layered envelope and hands it to the
// first relay.
package circuit

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/crypto/rand"
	"github.com/onionmix/onionmix/core/crypto/symmetric"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
)

// DefaultLength is the default number of hops of a circuit.
const DefaultLength = 3

var (
	rngLock sync.Mutex
	rng     *mrand.Rand
)

// BuildCircuit selects length distinct relays from pool uniformly at random.
func BuildCircuit(pool []*pki.RelayDescriptor, length int) ([]*pki.RelayDescriptor, error) {
	if length < 1 || length > onion.MaxPathLength {
		return nil, &onion.MalformedPathError{Hop: -1, Reason: fmt.Sprintf("invalid circuit length %d", length)}
	}
	seen := make(map[uint64]bool, len(pool))
	for i, d := range pool {
		if d == nil {
			return nil, &onion.MalformedPathError{Hop: i, Reason: "nil relay in pool"}
		}
		if seen[d.ID] {
			return nil, &onion.MalformedPathError{Hop: i, Reason: fmt.Sprintf("relay %d listed twice", d.ID)}
		}
		seen[d.ID] = true
	}
	if len(pool) < length {
		return nil, &onion.InsufficientRelaysError{Available: len(pool), Requested: length}
	}

	rngLock.Lock()
	if rng == nil {
		rng = rand.NewMath()
	}
	idx := rng.Perm(len(pool))
	rngLock.Unlock()

	path := make([]*pki.RelayDescriptor, 0, length)
	for _, i := range idx[:length] {
		path = append(path, pool[i])
	}
	return path, nil
}

// SendResult is the outcome of a successful Send.
type SendResult struct {
	// FirstHop is the address of the relay the envelope was handed to.
	FirstHop string

	// Length is the number of hops of the circuit.
	Length int

	// EnvelopeSize is the size of the serialized outermost envelope.
	EnvelopeSize int

	// Circuit is the relay ids in path order, only set when the Builder
	// records circuits.
	Circuit []uint64
}

// Option configures a Builder.
type Option func(*Builder)

// WithCipher sets the symmetric cipher used for every layer.
func WithCipher(c symmetric.Cipher) Option {
	return func(b *Builder) {
		b.cipher = c
	}
}

// WithCircuitRecording makes SendResult carry the relay ids of the path.
// It exists for test harnesses and must not be enabled in production.
func WithCircuitRecording() Option {
	return func(b *Builder) {
		b.record = true
	}
}

// Builder builds circuits and sends messages through them.
type Builder struct {
	log *logging.Logger

	dir    pki.Client
	tr     transport.Transport
	cipher symmetric.Cipher
	record bool
}

// New returns a Builder that queries dir for relays and sends over tr.
func New(dir pki.Client, tr transport.Transport, log *logging.Logger, opts ...Option) *Builder {
	b := &Builder{
		log:    log,
		dir:    dir,
		tr:     tr,
		cipher: symmetric.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send sends message to destination through a fresh circuit of length
// hops, and returns once the first relay has accepted the envelope.  A
// failed dispatch is returned as a DeliveryError; there are no retries.
func (b *Builder) Send(ctx context.Context, message []byte, destination string, length int) (*SendResult, error) {
	pool, err := b.dir.ListRelays(ctx)
	if err != nil {
		return nil, fmt.Errorf("circuit: failed to list relays: %w", err)
	}
	path, err := BuildCircuit(pool, length)
	if err != nil {
		return nil, err
	}
	env, err := onion.Build(path, message, destination, onion.WithCipher(b.cipher))
	if err != nil {
		return nil, err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return nil, err
	}

	res := &SendResult{
		FirstHop:     path[0].Address,
		Length:       len(path),
		EnvelopeSize: len(blob),
	}
	if b.record {
		for _, d := range path {
			res.Circuit = append(res.Circuit, d.ID)
		}
	}

	b.log.Debugf("Dispatching %d byte envelope over %d hops to %v.", len(blob), len(path), res.FirstHop)
	if err = b.tr.SendEnvelope(ctx, res.FirstHop, blob); err != nil {
		return nil, &onion.DeliveryError{Address: res.FirstHop, Err: err}
	}
	return res, nil
}
