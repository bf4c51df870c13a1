// relay_test.go - Relay state machine tests.
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

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
)

const testDestination = "http://127.0.0.1:4007"

type handOff struct {
	addr     string
	body     []byte
	envelope bool
}

type fakeTransport struct {
	sync.Mutex

	handOffs []handOff
	err      error
}

func (f *fakeTransport) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	f.Lock()
	defer f.Unlock()
	f.handOffs = append(f.handOffs, handOff{addr, envelope, true})
	return f.err
}

func (f *fakeTransport) Deliver(ctx context.Context, addr string, message []byte) error {
	f.Lock()
	defer f.Unlock()
	f.handOffs = append(f.handOffs, handOff{addr, message, false})
	return f.err
}

func newTestRelays(t *testing.T, n int) ([]*Relay, []*pki.RelayDescriptor, *fakeTransport) {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	tr := new(fakeTransport)
	var relays []*Relay
	var path []*pki.RelayDescriptor
	for i := 0; i < n; i++ {
		k, err := NewKey(pke.ByName("x25519"))
		require.NoError(t, err)
		require.NoError(t, k.EnableReplayFilter(16))
		id := uint64(i + 1)
		relays = append(relays, NewRelay(id, k, tr, logBackend.GetLogger(fmt.Sprintf("relay:%d", id)), 0))
		path = append(path, pki.NewRelayDescriptor(id, k.PublicKey(), fmt.Sprintf("http://127.0.0.1:%d", 4000+id)))
	}
	return relays, path, tr
}

func buildEnvelope(t *testing.T, path []*pki.RelayDescriptor, msg string) []byte {
	e, err := onion.Build(path, []byte(msg), testDestination)
	require.NoError(t, err)
	b, err := e.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestForwardAndDeliver(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	relays, path, tr := newTestRelays(t, 3)
	raw := buildEnvelope(t, path, "hello")

	// Each relay hands off to the next, and only the last one delivers.
	for i, r := range relays {
		require.NoError(r.OnEnvelope(ctx, raw))
		r.Wait()
		require.Len(tr.handOffs, i+1)
		h := tr.handOffs[i]

		d := r.Diagnostics()
		require.Equal(raw, d.LastReceivedEnvelope)
		require.Equal(h.body, d.LastDecrypted)
		require.Equal(h.addr, d.LastDestination)
		require.NoError(d.LastError)

		if i < len(relays)-1 {
			require.True(h.envelope)
			require.Equal(path[i+1].Address, h.addr)
			require.NotContains(string(h.body), "hello")
			raw = h.body
			continue
		}
		require.False(h.envelope)
		require.Equal(testDestination, h.addr)
		require.Equal("hello", string(h.body))
	}
}

func TestRejected(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	relays, path, tr := newTestRelays(t, 2)
	raw := buildEnvelope(t, path, "hello")

	// Garbage.
	err := relays[0].OnEnvelope(ctx, []byte("garbage"))
	require.ErrorIs(err, onion.ErrFrame)
	require.Equal(err, relays[0].Diagnostics().LastError)
	require.Empty(relays[0].Diagnostics().LastDestination)

	// Addressed to a different relay.
	err = relays[1].OnEnvelope(ctx, raw)
	require.ErrorIs(err, onion.ErrDecryption)

	// Tampered.
	e, err := onion.UnmarshalEnvelope(raw)
	require.NoError(err)
	e.EncryptedPayload[len(e.EncryptedPayload)/2] ^= 0x01
	b, err := e.MarshalBinary()
	require.NoError(err)
	err = relays[0].OnEnvelope(ctx, b)
	require.ErrorIs(err, onion.ErrDecryption)
	require.Empty(tr.handOffs)

	// The tampered copy did not poison the filter for the genuine one,
	// which is only accepted once.
	require.NoError(relays[0].OnEnvelope(ctx, raw))
	err = relays[0].OnEnvelope(ctx, raw)
	require.ErrorIs(err, onion.ErrFrame)
	require.ErrorIs(err, ErrReplay)
	relays[0].Wait()
	require.Len(tr.handOffs, 1)
}

func TestDeliveryFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	relays, path, tr := newTestRelays(t, 1)
	tr.err = &transport.StatusError{Address: testDestination, Code: 500}

	// The envelope is accepted, the failed hand-off is only recorded.
	require.NoError(relays[0].OnEnvelope(ctx, buildEnvelope(t, path, "hello")))
	relays[0].Wait()
	require.Len(tr.handOffs, 1)

	d := relays[0].Diagnostics()
	require.Equal("hello", string(d.LastDecrypted))
	require.ErrorIs(d.LastError, onion.ErrDelivery)
	var deliveryErr *onion.DeliveryError
	require.ErrorAs(d.LastError, &deliveryErr)
	require.Equal(testDestination, deliveryErr.Address)

	// No retries, and a success clears the error.
	tr.err = nil
	require.NoError(relays[0].OnEnvelope(ctx, buildEnvelope(t, path, "again")))
	relays[0].Wait()
	require.Len(tr.handOffs, 2)
	require.NoError(relays[0].Diagnostics().LastError)
}

type blockingTransport struct {
	fakeTransport

	releaseCh chan struct{}
}

func (b *blockingTransport) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	select {
	case <-b.releaseCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.fakeTransport.SendEnvelope(ctx, addr, envelope)
}

func (b *blockingTransport) Deliver(ctx context.Context, addr string, message []byte) error {
	select {
	case <-b.releaseCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.fakeTransport.Deliver(ctx, addr, message)
}

func TestHandOffDoesNotBlock(t *testing.T) {
	require := require.New(t)

	relays, path, _ := newTestRelays(t, 2)
	tr := &blockingTransport{releaseCh: make(chan struct{})}
	r := relays[0]
	r.tr = tr

	// A stuck next hop holds neither the caller nor later envelopes.
	for _, msg := range []string{"first", "second"} {
		require.NoError(r.OnEnvelope(context.Background(), buildEnvelope(t, path, msg)))
	}
	require.Equal(path[1].Address, r.Diagnostics().LastDestination)

	close(tr.releaseCh)
	r.Wait()
	require.Len(tr.handOffs, 2)
	require.NoError(r.Diagnostics().LastError)

	// Halting abandons hand-offs still in flight.
	stuck := &blockingTransport{releaseCh: make(chan struct{})}
	r.tr = stuck
	require.NoError(r.OnEnvelope(context.Background(), buildEnvelope(t, path, "third")))
	r.Halt()
	require.Empty(stuck.handOffs)
	require.ErrorIs(r.Diagnostics().LastError, context.Canceled)
}

func TestConcurrentEnvelopes(t *testing.T) {
	require := require.New(t)

	relays, path, tr := newTestRelays(t, 1)
	const n = 32
	envelopes := make([][]byte, n)
	for i := range envelopes {
		envelopes[i] = buildEnvelope(t, path, fmt.Sprintf("message %d", i))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for _, raw := range envelopes {
		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			errCh <- relays[0].OnEnvelope(context.Background(), raw)
		}(raw)
	}
	wg.Wait()
	relays[0].Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(err)
	}
	require.Len(tr.handOffs, n)

	// The diagnostics hold one whole message, never a mix of two.
	d := relays[0].Diagnostics()
	for i, raw := range envelopes {
		if bytes.Equal(raw, d.LastReceivedEnvelope) {
			require.Equal(fmt.Sprintf("message %d", i), string(d.LastDecrypted))
			return
		}
	}
	require.Fail("last envelope not found")
}

func TestHandleMessage(t *testing.T) {
	relays, _, _ := newTestRelays(t, 1)
	err := relays[0].HandleMessage(context.Background(), []byte("hello"))
	require.True(t, errors.Is(err, transport.ErrNotAccepted))
}
