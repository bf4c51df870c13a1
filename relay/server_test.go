// server_test.go - Relay server tests.
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
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/transport/quic"
	"github.com/onionmix/onionmix/directory"
	"github.com/onionmix/onionmix/directory/client"
	dirConfig "github.com/onionmix/onionmix/directory/config"
	"github.com/onionmix/onionmix/relay/config"
)

func startDirectory(t *testing.T) (string, pki.Client) {
	cfg := &dirConfig.Config{
		Directory: &dirConfig.Directory{
			Addresses: []string{"127.0.0.1:0"},
			DataDir:   filepath.Join(t.TempDir(), "directory"),
		},
		Logging: &dirConfig.Logging{Disable: true},
	}
	require.NoError(t, cfg.FixupAndValidate())
	s, err := directory.New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	addr := "http://" + s.Addresses()[0]
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	c, err := client.New(&client.Config{LogBackend: logBackend, Address: addr})
	require.NoError(t, err)
	return addr, c
}

func newTestConfig(t *testing.T, id uint64, addr, dirAddr, dataDir string) *config.Config {
	cfg := &config.Config{
		Relay: &config.Relay{
			ID:        id,
			Address:   addr,
			DataDir:   dataDir,
			KeyScheme: "x25519",
		},
		Directory: &config.Directory{Address: dirAddr},
		Logging:   &config.Logging{Level: "DEBUG", Disable: true},
		Debug:     &config.Debug{ForwardTimeoutSec: 5, ReplayFilterLn2: 16},
	}
	require.NoError(t, cfg.FixupAndValidate())
	return cfg
}

type sink struct {
	ch chan string
}

func (s *sink) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	m := new(transport.MessageRequest)
	if err := json.NewDecoder(req.Body).Decode(m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := m.Bytes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.ch <- string(b)
	w.Write([]byte("success"))
}

func getResult(t *testing.T, url string) interface{} {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var r diagnosticResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return r.Result
}

func TestServer(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dirAddr, dir := startDirectory(t)
	dataDir := filepath.Join(t.TempDir(), "relay")
	s, err := New(newTestConfig(t, 1, "http://127.0.0.1:0", dirAddr, dataDir))
	require.NoError(err)

	desc := s.Descriptor()
	require.NotEqual("http://127.0.0.1:0", desc.Address)
	relays, err := dir.ListRelays(ctx)
	require.NoError(err)
	require.Equal([]*pki.RelayDescriptor{desc}, relays)

	resp, err := http.Get(desc.Address + transport.StatusPath)
	require.NoError(err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal("live", string(b))

	// Nothing received yet.
	require.Nil(getResult(t, desc.Address+lastEncryptedPath))
	require.Nil(getResult(t, desc.Address+lastDestinationPath))

	recipient := &sink{ch: make(chan string, 1)}
	srv := httptest.NewServer(recipient)
	defer srv.Close()

	e, err := onion.Build(relays, []byte("hello"), srv.URL)
	require.NoError(err)
	raw, err := e.MarshalBinary()
	require.NoError(err)
	require.NoError(transport.NewHTTP(5*time.Second).SendEnvelope(ctx, desc.Address, raw))
	require.Equal("hello", <-recipient.ch)

	require.Equal(base64.StdEncoding.EncodeToString(raw), getResult(t, desc.Address+lastEncryptedPath))
	require.Equal(base64.StdEncoding.EncodeToString([]byte("hello")), getResult(t, desc.Address+lastDecryptedPath))
	require.Equal(srv.URL, getResult(t, desc.Address+lastDestinationPath))

	// Replays and garbage are refused with a bare 400.
	err = transport.NewHTTP(5*time.Second).SendEnvelope(ctx, desc.Address, raw)
	var statusErr *transport.StatusError
	require.ErrorAs(err, &statusErr)
	require.Equal(http.StatusBadRequest, statusErr.Code)
	require.Equal(http.StatusText(http.StatusBadRequest), statusErr.Message)

	err = transport.NewHTTP(5*time.Second).SendEnvelope(ctx, desc.Address, []byte("garbage"))
	require.ErrorAs(err, &statusErr)
	require.Equal(http.StatusBadRequest, statusErr.Code)
	require.Equal(http.StatusText(http.StatusBadRequest), statusErr.Message)

	// A dead recipient is accepted, and the failure stays at the relay.
	e, err = onion.Build(relays, []byte("hello"), "http://127.0.0.1:1")
	require.NoError(err)
	raw, err = e.MarshalBinary()
	require.NoError(err)
	require.NoError(transport.NewHTTP(5*time.Second).SendEnvelope(ctx, desc.Address, raw))
	require.Eventually(func() bool {
		return errors.Is(s.Relay().Diagnostics().LastError, onion.ErrDelivery)
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = http.Post(desc.Address+lastEncryptedPath, "text/plain", nil)
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

	// Shutting down leaves the directory.
	s.Shutdown()
	s.Wait()
	relays, err = dir.ListRelays(ctx)
	require.NoError(err)
	require.Empty(relays)

	// The key survives a restart.
	s, err = New(newTestConfig(t, 1, "http://127.0.0.1:0", dirAddr, dataDir))
	require.NoError(err)
	defer s.Shutdown()
	require.True(desc.SameKey(s.Descriptor()))
}

func TestServerDuplicateID(t *testing.T) {
	require := require.New(t)

	dirAddr, _ := startDirectory(t)
	cfg := newTestConfig(t, 9, "http://127.0.0.1:0", dirAddr, filepath.Join(t.TempDir(), "a"))
	s, err := New(cfg)
	require.NoError(err)
	defer s.Shutdown()

	cfg = newTestConfig(t, 9, "http://127.0.0.1:0", dirAddr, filepath.Join(t.TempDir(), "b"))
	_, err = New(cfg)
	require.ErrorIs(err, pki.ErrDuplicateID)
}

func TestServerMoved(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dirAddr, dir := startDirectory(t)
	dataDir := filepath.Join(t.TempDir(), "relay")
	cfg := newTestConfig(t, 4, "http://127.0.0.1:0", dirAddr, dataDir)
	cfg.Debug.SkipUnregister = true
	s, err := New(cfg)
	require.NoError(err)
	s.Shutdown()
	s.Wait()

	// The registration outlives the relay, and the restarted relay takes
	// it over from its new address.
	relays, err := dir.ListRelays(ctx)
	require.NoError(err)
	require.Len(relays, 1)

	s, err = New(newTestConfig(t, 4, "http://127.0.0.1:0", dirAddr, dataDir))
	require.NoError(err)
	relays, err = dir.ListRelays(ctx)
	require.NoError(err)
	require.Equal([]*pki.RelayDescriptor{s.Descriptor()}, relays)

	s.Shutdown()
	s.Wait()
	relays, err = dir.ListRelays(ctx)
	require.NoError(err)
	require.Empty(relays)
}

func TestServerQUIC(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dirAddr, dir := startDirectory(t)
	var servers []*Server
	for i, addr := range []string{"quic://127.0.0.1:0", "http://127.0.0.1:0"} {
		s, err := New(newTestConfig(t, uint64(i+1), addr, dirAddr, filepath.Join(t.TempDir(), "relay")))
		require.NoError(err)
		defer s.Shutdown()
		servers = append(servers, s)
	}
	relays, err := dir.ListRelays(ctx)
	require.NoError(err)
	require.Len(relays, 2)
	require.Equal("quic", relays[0].Address[:4])

	recipient := &sink{ch: make(chan string, 1)}
	srv := httptest.NewServer(recipient)
	defer srv.Close()

	// quic relay -> http relay -> recipient.
	e, err := onion.Build(relays, []byte("over quic"), srv.URL)
	require.NoError(err)
	raw, err := e.MarshalBinary()
	require.NoError(err)

	tr := quic.New(5 * time.Second)
	defer tr.Close()
	require.NoError(tr.SendEnvelope(ctx, relays[0].Address, raw))
	require.Equal("over quic", <-recipient.ch)
	require.Equal(relays[1].Address, servers[0].Relay().Diagnostics().LastDestination)

	// Relays don't take messages.
	err = tr.Deliver(ctx, relays[0].Address, []byte("hi"))
	var statusErr *transport.StatusError
	require.ErrorAs(err, &statusErr)
	require.Equal(http.StatusNotFound, statusErr.Code)
}
