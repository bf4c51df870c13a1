// transport.go - Hop to hop transport interfaces.
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

// Package transport provides the interfaces and plumbing used to hand
// envelopes to relays and messages to endpoints.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/onionmix/onionmix/core/onion"
)

const (
	// EnvelopePath is the HTTP route relays accept envelopes on.
	EnvelopePath = "/v0/envelope"

	// MessagePath is the HTTP route endpoints accept messages on.
	MessagePath = "/message"

	// StatusPath is the liveness route of every daemon.
	StatusPath = "/status"

	// EnvelopeContentType is the media type of serialized envelopes.
	EnvelopeContentType = "application/cbor"
)

// ErrUnsupportedScheme is the error returned for addresses whose scheme has
// no registered transport.
var ErrUnsupportedScheme = errors.New("transport: unsupported address scheme")

// ErrNotAccepted is the error handlers return for requests their node does
// not serve, such as a message delivered to a relay.
var ErrNotAccepted = errors.New("transport: request not accepted by this node")

// ErrInvalidRequest is the error handlers wrap for malformed requests.
var ErrInvalidRequest = errors.New("transport: invalid request")

// Transport hands envelopes to relays and final messages to endpoints.
type Transport interface {
	// SendEnvelope hands a serialized envelope to the relay at addr, and
	// returns once the relay has accepted it.  Relays accept envelopes
	// before handing them on.
	SendEnvelope(ctx context.Context, addr string, envelope []byte) error

	// Deliver hands a message to the endpoint at addr.
	Deliver(ctx context.Context, addr string, message []byte) error
}

// StatusError is the error returned when the remote peer refused a request.
type StatusError struct {
	Address string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transport: '%s' replied %d %s", e.Address, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("transport: '%s' replied %d: %s", e.Address, e.Code, e.Message)
}

// StatusFor maps a handler error to the status code reported to the peer.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, onion.ErrDecryption), errors.Is(err, onion.ErrFrame), errors.Is(err, onion.ErrMalformedPath), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, onion.ErrInsufficientRelays):
		return http.StatusServiceUnavailable
	case errors.Is(err, onion.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotAccepted):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsSuccess returns true iff code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// Mux dispatches to a Transport by the scheme of the address.
type Mux struct {
	sync.RWMutex

	transports map[string]Transport
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{transports: make(map[string]Transport)}
}

// Handle registers the transport for the scheme.
func (m *Mux) Handle(scheme string, t Transport) {
	m.Lock()
	defer m.Unlock()
	m.transports[strings.ToLower(scheme)] = t
}

func (m *Mux) lookup(addr string) (Transport, error) {
	scheme, _, ok := strings.Cut(addr, "://")
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, addr)
	}
	m.RLock()
	defer m.RUnlock()
	t, ok := m.transports[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, addr)
	}
	return t, nil
}

// SendEnvelope implements Transport.
func (m *Mux) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	t, err := m.lookup(addr)
	if err != nil {
		return err
	}
	return t.SendEnvelope(ctx, addr, envelope)
}

// Deliver implements Transport.
func (m *Mux) Deliver(ctx context.Context, addr string, message []byte) error {
	t, err := m.lookup(addr)
	if err != nil {
		return err
	}
	return t.Deliver(ctx, addr, message)
}
