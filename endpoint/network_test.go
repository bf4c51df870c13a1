// network_test.go - End to end network tests.
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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/directory"
	dirConfig "github.com/onionmix/onionmix/directory/config"
	"github.com/onionmix/onionmix/endpoint/config"
	"github.com/onionmix/onionmix/relay"
	relayConfig "github.com/onionmix/onionmix/relay/config"
)

type testNetwork struct {
	dirAddr   string
	relays    []*relay.Server
	endpoints []*Server
	received  []chan string
}

func startDirectory(t *testing.T) string {
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
	return "http://" + s.Addresses()[0]
}

func startRelay(t *testing.T, id uint64, scheme, keyScheme, dirAddr string) *relay.Server {
	cfg := &relayConfig.Config{
		Relay: &relayConfig.Relay{
			ID:        id,
			Address:   scheme + "://127.0.0.1:0",
			DataDir:   filepath.Join(t.TempDir(), "relay"),
			KeyScheme: keyScheme,
		},
		Directory: &relayConfig.Directory{Address: dirAddr},
		Logging:   &relayConfig.Logging{Disable: true},
		Debug:     &relayConfig.Debug{ForwardTimeoutSec: 10},
	}
	require.NoError(t, cfg.FixupAndValidate())
	s, err := relay.New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func startEndpoint(t *testing.T, id uint64, scheme, dirAddr string, contacts []*config.Contact) (*Server, chan string) {
	cfg := &config.Config{
		Endpoint: &config.Endpoint{
			ID:        id,
			Address:   scheme + "://127.0.0.1:0",
			Addresses: []string{"127.0.0.1:0"},
			DataDir:   filepath.Join(t.TempDir(), "endpoint"),
		},
		Directory: &config.Directory{Address: dirAddr},
		Contacts:  contacts,
		Logging:   &config.Logging{Disable: true},
		Debug:     &config.Debug{RecordCircuits: true, SendTimeoutSec: 20},
	}
	require.NoError(t, cfg.FixupAndValidate())
	ch := make(chan string, 8)
	s, err := New(cfg, WithSink(func(m []byte) { ch <- string(m) }))
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s, ch
}

func startNetwork(t *testing.T, scheme string) *testNetwork {
	n := &testNetwork{dirAddr: startDirectory(t)}
	for i, keyScheme := range []string{"RSA-OAEP-2048", "x25519", "MLKEM768"} {
		n.relays = append(n.relays, startRelay(t, uint64(i+1), scheme, keyScheme, n.dirAddr))
	}

	// The second endpoint is the first one's contact 2.
	e1, ch1 := startEndpoint(t, 1, scheme, n.dirAddr, nil)
	e2, ch2 := startEndpoint(t, 2, scheme, n.dirAddr, []*config.Contact{{ID: 1, Address: e1.Address()}})
	e1.cfg.Contacts = []*config.Contact{{ID: 2, Address: e2.Address()}}

	n.endpoints = []*Server{e1, e2}
	n.received = []chan string{ch1, ch2}
	return n
}

func postJSON(t *testing.T, url string, v interface{}) (int, map[string]interface{}) {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	m := make(map[string]interface{})
	json.NewDecoder(resp.Body).Decode(&m)
	return resp.StatusCode, m
}

func getResult(t *testing.T, url string) interface{} {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var r resultResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return r.Result
}

func waitFor(t *testing.T, ch chan string) string {
	select {
	case m := <-ch:
		return m
	case <-time.After(30 * time.Second):
		require.FailNow(t, "timed out waiting for a message")
		return ""
	}
}

func testNetworkRoundTrip(t *testing.T, scheme string) {
	require := require.New(t)

	n := startNetwork(t, scheme)
	api1, api2 := n.endpoints[0].APIAddress(), n.endpoints[1].APIAddress()

	require.Nil(getResult(t, api1+lastSentPath))
	require.Nil(getResult(t, api2+lastReceivedPath))

	// By contact id.
	id := uint64(2)
	code, body := postJSON(t, api1+SendMessagePath, &SendMessageRequest{Message: "hello", DestinationUserID: &id})
	require.Equal(http.StatusOK, code, "%v", body)
	require.Equal(true, body["success"])
	require.Equal("hello", waitFor(t, n.received[1]))
	require.Equal("hello", getResult(t, api2+lastReceivedPath))
	require.Equal("hello", getResult(t, api1+lastSentPath))

	c, ok := getResult(t, api1+lastCircuitPath).([]interface{})
	require.True(ok)
	require.Len(c, 3)
	seen := make(map[float64]bool)
	for _, v := range c {
		seen[v.(float64)] = true
	}
	require.Len(seen, 3)

	// The last relay saw the plaintext, and where it went.
	var last *relay.Server
	for _, r := range n.relays {
		if float64(r.Descriptor().ID) == c[2].(float64) {
			last = r
		}
	}
	require.NotNil(last)
	d := last.Relay().Diagnostics()
	require.Equal("hello", string(d.LastDecrypted))
	require.Equal(n.endpoints[1].Address(), d.LastDestination)

	// By address, the other way round.
	code, body = postJSON(t, api2+SendMessagePath, &SendMessageRequest{Message: "hi back", Destination: n.endpoints[0].Address()})
	require.Equal(http.StatusOK, code, "%v", body)
	require.Equal("hi back", waitFor(t, n.received[0]))

	// Unknown contacts and malformed requests.
	unknown := uint64(9)
	code, _ = postJSON(t, api1+SendMessagePath, &SendMessageRequest{Message: "hello", DestinationUserID: &unknown})
	require.Equal(http.StatusNotFound, code)
	code, _ = postJSON(t, api1+SendMessagePath, map[string]string{"message": "hello"})
	require.Equal(http.StatusBadRequest, code)
	code, _ = postJSON(t, api1+SendMessagePath, &SendMessageRequest{Message: "hello", Destination: "not a url"})
	require.Equal(http.StatusBadRequest, code)

	// Arbitrary bytes arrive unaltered.
	raw := []byte{0xff, 0x00, 0xfe, 'h', 'i'}
	_, err := n.endpoints[0].Agent().Send(context.Background(), raw, n.endpoints[1].Address())
	require.NoError(err)
	require.Equal(string(raw), waitFor(t, n.received[1]))

	// A dead recipient does not fail the send.  Only the last relay learns
	// of the failure, and no relay learns anything past its own next hop.
	n.endpoints[1].Shutdown()
	n.endpoints[1].Wait()
	code, body = postJSON(t, api1+SendMessagePath, &SendMessageRequest{Message: "lost", DestinationUserID: &id})
	require.Equal(http.StatusOK, code, "%v", body)
	require.Equal("lost", getResult(t, api1+lastSentPath))

	c, ok = getResult(t, api1+lastCircuitPath).([]interface{})
	require.True(ok)
	var hops []*relay.Server
	for _, v := range c {
		for _, r := range n.relays {
			if float64(r.Descriptor().ID) == v.(float64) {
				hops = append(hops, r)
			}
		}
	}
	require.Len(hops, 3)
	require.Eventually(func() bool {
		return errors.Is(hops[2].Relay().Diagnostics().LastError, onion.ErrDelivery)
	}, 30*time.Second, 50*time.Millisecond)
	for i, r := range hops {
		err := r.Relay().Diagnostics().LastError
		if i < len(hops)-1 {
			require.NoError(err)
			continue
		}
		for _, other := range hops[:i] {
			require.NotContains(err.Error(), other.Descriptor().Address)
		}
	}

	// Too few relays left.
	n.relays[0].Shutdown()
	n.relays[0].Wait()
	code, body = postJSON(t, api1+SendMessagePath, &SendMessageRequest{Message: "hello", DestinationUserID: &id})
	require.Equal(http.StatusServiceUnavailable, code)
	require.Equal("Failed to send message", body["error"])
}

func TestNetworkHTTP(t *testing.T) {
	testNetworkRoundTrip(t, "http")
}

func TestNetworkQUIC(t *testing.T) {
	testNetworkRoundTrip(t, "quic")
}

func TestEndpointAPI(t *testing.T) {
	require := require.New(t)

	dirAddr := startDirectory(t)
	e, ch := startEndpoint(t, 1, "http", dirAddr, nil)
	api := e.APIAddress()

	resp, err := http.Get(api + "/status")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	code, _ := postJSON(t, api+"/message", map[string]string{"message": "direct"})
	require.Equal(http.StatusOK, code)
	require.Equal("direct", waitFor(t, ch))
	require.Equal("direct", getResult(t, api+lastReceivedPath))

	code, body := postJSON(t, api+"/message", map[string]string{"message": ""})
	require.Equal(http.StatusBadRequest, code)
	require.Equal("Invalid request", body["error"])

	code, _ = postJSON(t, api+"/message", map[string]string{"messageB64": "not base64!"})
	require.Equal(http.StatusBadRequest, code)
	code, _ = postJSON(t, api+"/message", map[string]string{"message": "a", "messageB64": "Yg=="})
	require.Equal(http.StatusBadRequest, code)
	code, _ = postJSON(t, api+"/message", map[string]string{"messageB64": "/wD+"})
	require.Equal(http.StatusOK, code)
	require.Equal(string([]byte{0xff, 0x00, 0xfe}), waitFor(t, ch))

	resp, err = http.Get(api + "/message")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(api + "/nope")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusNotFound, resp.StatusCode)

	// No relays registered.
	code, _ = postJSON(t, api+SendMessagePath, &SendMessageRequest{Message: "hello", Destination: "http://127.0.0.1:1"})
	require.Equal(http.StatusServiceUnavailable, code)
}
