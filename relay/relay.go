// relay.go - Relay forwarding state machine.
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

// Package relay implements the onionmix relay.
//
// A relay peels exactly one layer off every envelope it receives, then
// either hands the inner envelope to the next relay or the plaintext
// message to its destination endpoint.  Envelopes are acknowledged as soon
// as they peel cleanly and the hand-off happens in the background.  It
// never chooses routes and never retries.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/worker"
	"github.com/onionmix/onionmix/relay/internal/instrument"
)

// ErrReplay is the error returned for envelopes the relay already processed.
var ErrReplay = errors.New("relay: envelope replayed")

// Diagnostics is a snapshot of the relay's most recent activity.  Every
// field is overwritten by the next envelope.
type Diagnostics struct {
	// LastReceivedEnvelope is the last raw envelope received.
	LastReceivedEnvelope []byte

	// LastDecrypted is the plaintext recovered from the last envelope,
	// either the serialized inner envelope or the final message.
	LastDecrypted []byte

	// LastDestination is the address the last envelope was handed to.
	LastDestination string

	// LastError is the failure of the last envelope, if any.  Hand-off
	// failures are recorded once the hand-off completes.
	LastError error
}

// Relay is the per relay forwarding state machine.
type Relay struct {
	worker.Worker
	sync.Mutex

	log *logging.Logger
	id  uint64
	key *Key
	tr  transport.Transport

	forwardTimeout time.Duration

	diag Diagnostics
	seq  uint64
}

// ID returns the relay id.
func (r *Relay) ID() uint64 {
	return r.id
}

// Key returns the relay key.
func (r *Relay) Key() *Key {
	return r.key
}

// Diagnostics returns a copy of the relay's diagnostics.
func (r *Relay) Diagnostics() Diagnostics {
	r.Lock()
	defer r.Unlock()
	return r.diag
}

// OnEnvelope processes one serialized envelope: it is decoded, peeled and
// checked for replays.  An envelope that passes is accepted and its hand-off
// to the next hop runs in the background, bounded by the forward timeout.
// Rejected envelopes are never forwarded.
func (r *Relay) OnEnvelope(ctx context.Context, raw []byte) error {
	instrument.EnvelopeReceived()
	diag := Diagnostics{LastReceivedEnvelope: raw}

	e, err := onion.UnmarshalEnvelope(raw)
	if err != nil {
		return r.reject(diag, "decode", err)
	}
	layer, err := onion.Peel(e, r.key.PrivateKey())
	if err != nil {
		reason := "frame"
		if errors.Is(err, onion.ErrDecryption) {
			reason = "decrypt"
		}
		return r.reject(diag, reason, err)
	}

	// Only envelopes that peeled cleanly mark the filter.
	if r.key.IsReplay(ReplayTag(e)) {
		return r.reject(diag, "replay", &onion.FrameError{Reason: "replayed envelope", Err: ErrReplay})
	}

	diag.LastDestination = layer.NextHop
	if layer.Kind == onion.KindTerminal {
		diag.LastDecrypted = layer.Terminal.Payload
	} else {
		diag.LastDecrypted = layer.Payload
	}
	seq := r.setDiagnostics(diag)

	r.Go(func() {
		r.handOff(seq, layer)
	})
	return nil
}

func (r *Relay) handOff(seq uint64, layer *onion.Layer) {
	ctx, cancel := r.HaltContext(context.Background())
	defer cancel()
	if r.forwardTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.forwardTimeout)
		defer cancel()
	}

	var err error
	start := time.Now()
	switch layer.Kind {
	case onion.KindInterior:
		r.log.Debugf("Forwarding %d byte envelope to %v.", len(layer.Payload), layer.NextHop)
		err = r.tr.SendEnvelope(ctx, layer.NextHop, layer.Payload)
		if err == nil {
			instrument.EnvelopeForwarded()
		}
	case onion.KindTerminal:
		r.log.Debugf("Delivering %d byte message to %v.", len(layer.Terminal.Payload), layer.NextHop)
		err = r.tr.Deliver(ctx, layer.NextHop, layer.Terminal.Payload)
		if err == nil {
			instrument.MessageDelivered()
		}
	}
	instrument.ObserveHandOff(time.Since(start))
	if err == nil {
		return
	}

	instrument.DeliveryFailed(layer.Kind.String())
	r.log.Warningf("Failed to hand off to %v: %v", layer.NextHop, err)

	r.Lock()
	defer r.Unlock()
	if r.seq == seq {
		r.diag.LastError = &onion.DeliveryError{Address: layer.NextHop, Err: err}
	}
}

func (r *Relay) setDiagnostics(diag Diagnostics) uint64 {
	r.Lock()
	defer r.Unlock()
	r.seq++
	r.diag = diag
	return r.seq
}

func (r *Relay) reject(diag Diagnostics, reason string, err error) error {
	instrument.EnvelopeRejected(reason)
	r.log.Debugf("Rejected envelope (%v): %v", reason, err)
	diag.LastError = err
	r.setDiagnostics(diag)
	return err
}

// HandleEnvelope implements quic.Handler.
func (r *Relay) HandleEnvelope(ctx context.Context, envelope []byte) error {
	return r.OnEnvelope(ctx, envelope)
}

// HandleMessage implements quic.Handler, relays do not accept messages.
func (r *Relay) HandleMessage(ctx context.Context, message []byte) error {
	return transport.ErrNotAccepted
}

// NewRelay returns a Relay that peels with key and hands off over tr.
func NewRelay(id uint64, key *Key, tr transport.Transport, log *logging.Logger, forwardTimeout time.Duration) *Relay {
	return &Relay{
		log:            log,
		id:             id,
		key:            key,
		tr:             tr,
		forwardTimeout: forwardTimeout,
	}
}
