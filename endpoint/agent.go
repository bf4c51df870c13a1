// agent.go - Endpoint agent.
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

// Package endpoint implements the onionmix endpoint, the sending and
// receiving end of the overlay.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/circuit"
	"github.com/onionmix/onionmix/core/transport"
)

// ErrUnknownContact is the error returned when sending to a contact id that
// is not in the address book.
var ErrUnknownContact = errors.New("endpoint: unknown contact")

// ErrEmptyMessage is the error returned when sending or receiving an empty
// message.
var ErrEmptyMessage = fmt.Errorf("endpoint: empty message: %w", transport.ErrInvalidRequest)

// Sink is invoked with every message delivered to the endpoint.
type Sink func(message []byte)

// Contacts resolves contact ids to endpoint addresses.
type Contacts interface {
	ContactAddress(id uint64) (string, bool)
}

// Agent sends messages through circuits and receives the ones delivered
// to it.
type Agent struct {
	sync.Mutex

	log      *logging.Logger
	builder  *circuit.Builder
	contacts Contacts
	length   int
	sink     Sink

	lastReceived []byte
	lastSent     []byte
	lastCircuit  []uint64
}

// Send sends the message to the endpoint at destination through a fresh
// circuit, and returns once the first relay accepted it.
func (a *Agent) Send(ctx context.Context, message []byte, destination string) (*circuit.SendResult, error) {
	if len(message) == 0 {
		return nil, ErrEmptyMessage
	}
	res, err := a.builder.Send(ctx, message, destination, a.length)
	if err != nil {
		a.log.Warningf("Failed to send to %v: %v", destination, err)
		return nil, err
	}
	a.log.Debugf("Sent %d byte message via %v (%d hops).", len(message), res.FirstHop, res.Length)

	a.Lock()
	defer a.Unlock()
	a.lastSent = append([]byte{}, message...)
	if res.Circuit != nil {
		a.lastCircuit = res.Circuit
	}
	return res, nil
}

// SendTo sends the message to a contact from the address book.
func (a *Agent) SendTo(ctx context.Context, message []byte, contactID uint64) (*circuit.SendResult, error) {
	if a.contacts == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContact, contactID)
	}
	addr, ok := a.contacts.ContactAddress(contactID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContact, contactID)
	}
	return a.Send(ctx, message, addr)
}

// Deliver records a message delivered to the endpoint and passes it to the
// sink.
func (a *Agent) Deliver(message []byte) error {
	if len(message) == 0 {
		return ErrEmptyMessage
	}
	a.Lock()
	a.lastReceived = append([]byte{}, message...)
	sink := a.sink
	a.Unlock()

	a.log.Debugf("Received %d byte message.", len(message))
	if sink != nil {
		sink(message)
	}
	return nil
}

// LastReceived returns the last message delivered, or nil.
func (a *Agent) LastReceived() []byte {
	a.Lock()
	defer a.Unlock()
	return a.lastReceived
}

// LastSent returns the last message sent, or nil.
func (a *Agent) LastSent() []byte {
	a.Lock()
	defer a.Unlock()
	return a.lastSent
}

// LastCircuit returns the relay ids of the last circuit used.  It is only
// recorded if the builder was created with circuit.WithCircuitRecording.
func (a *Agent) LastCircuit() []uint64 {
	a.Lock()
	defer a.Unlock()
	return a.lastCircuit
}

// HandleEnvelope implements quic.Handler, endpoints do not relay.
func (a *Agent) HandleEnvelope(ctx context.Context, envelope []byte) error {
	return transport.ErrNotAccepted
}

// HandleMessage implements quic.Handler.
func (a *Agent) HandleMessage(ctx context.Context, message []byte) error {
	return a.Deliver(message)
}

// AgentOption is an optional Agent parameter.
type AgentOption func(*Agent)

// WithSink sets the function every delivered message is passed to.
func WithSink(s Sink) AgentOption {
	return func(a *Agent) {
		a.sink = s
	}
}

// WithContacts sets the address book SendTo resolves contact ids with.
func WithContacts(c Contacts) AgentOption {
	return func(a *Agent) {
		a.contacts = c
	}
}

// NewAgent returns an Agent sending through circuits of the given length.
func NewAgent(builder *circuit.Builder, length int, log *logging.Logger, opts ...AgentOption) *Agent {
	a := &Agent{
		log:     log,
		builder: builder,
		length:  length,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
