// agent_test.go - Endpoint agent tests.
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

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/circuit"
	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
)

type memDirectory struct {
	relays []*pki.RelayDescriptor
}

func (d *memDirectory) Register(ctx context.Context, desc *pki.RelayDescriptor) error {
	d.relays = append(d.relays, desc)
	return nil
}

func (d *memDirectory) ListRelays(ctx context.Context) ([]*pki.RelayDescriptor, error) {
	return d.relays, nil
}

func (d *memDirectory) Update(ctx context.Context, desc *pki.RelayDescriptor, p pki.Prover) error {
	return pki.ErrNotFound
}

func (d *memDirectory) Unregister(ctx context.Context, id uint64, p pki.Prover) error {
	return pki.ErrNotFound
}

type nopTransport struct {
	err error
}

func (t *nopTransport) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	return t.err
}

func (t *nopTransport) Deliver(ctx context.Context, addr string, message []byte) error {
	return errors.New("unexpected delivery")
}

type contactBook map[uint64]string

func (c contactBook) ContactAddress(id uint64) (string, bool) {
	addr, ok := c[id]
	return addr, ok
}

func newTestAgent(t *testing.T, record bool, tr transport.Transport, opts ...AgentOption) *Agent {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	dir := new(memDirectory)
	for i := 0; i < 4; i++ {
		pk, _, err := pke.ByName("x25519").GenerateKeyPair()
		require.NoError(t, err)
		dir.relays = append(dir.relays, pki.NewRelayDescriptor(uint64(i+1), pk, fmt.Sprintf("http://127.0.0.1:%d", 4001+i)))
	}
	var builderOpts []circuit.Option
	if record {
		builderOpts = append(builderOpts, circuit.WithCircuitRecording())
	}
	b := circuit.New(dir, tr, logBackend.GetLogger("circuit"), builderOpts...)
	return NewAgent(b, 3, logBackend.GetLogger("endpoint"), opts...)
}

func TestAgentSend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	contacts := contactBook{2: "http://127.0.0.1:3002"}
	a := newTestAgent(t, true, new(nopTransport), WithContacts(contacts))
	require.Nil(a.LastSent())
	require.Nil(a.LastCircuit())

	res, err := a.SendTo(ctx, []byte("hello"), 2)
	require.NoError(err)
	require.Equal(3, res.Length)
	require.Equal("hello", string(a.LastSent()))
	require.Len(a.LastCircuit(), 3)

	_, err = a.SendTo(ctx, []byte("hello"), 3)
	require.ErrorIs(err, ErrUnknownContact)

	_, err = a.Send(ctx, nil, "http://127.0.0.1:3002")
	require.ErrorIs(err, ErrEmptyMessage)

	// Without recording no circuit is kept.
	a = newTestAgent(t, false, new(nopTransport))
	_, err = a.Send(ctx, []byte("hello"), "http://127.0.0.1:3002")
	require.NoError(err)
	require.Nil(a.LastCircuit())

	_, err = a.SendTo(ctx, []byte("hello"), 2)
	require.ErrorIs(err, ErrUnknownContact)
}

func TestAgentSendFailure(t *testing.T) {
	require := require.New(t)

	a := newTestAgent(t, true, &nopTransport{err: errors.New("connection refused")})
	_, err := a.Send(context.Background(), []byte("hello"), "http://127.0.0.1:3002")
	require.ErrorIs(err, onion.ErrDelivery)
	require.Nil(a.LastSent())
	require.Nil(a.LastCircuit())
}

func TestAgentDeliver(t *testing.T) {
	require := require.New(t)

	var got [][]byte
	a := newTestAgent(t, false, new(nopTransport), WithSink(func(m []byte) {
		got = append(got, m)
	}))
	require.Nil(a.LastReceived())

	require.NoError(a.Deliver([]byte("one")))
	require.NoError(a.HandleMessage(context.Background(), []byte("two")))
	require.Equal("two", string(a.LastReceived()))
	require.Equal([][]byte{[]byte("one"), []byte("two")}, got)

	err := a.Deliver(nil)
	require.ErrorIs(err, transport.ErrInvalidRequest)
	require.Len(got, 2)

	require.ErrorIs(a.HandleEnvelope(context.Background(), []byte("x")), transport.ErrNotAccepted)
}
