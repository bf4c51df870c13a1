// client.go - Directory client.
// Copyright (C) 2017  Yawning Angel.
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

// Package client implements a client for the onionmix directory.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/onionmix/onionmix/core/log"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/directory/internal/api"
)

const defaultTimeout = 30 * time.Second

var _ pki.Client = (*Client)(nil)

// Config is a directory client configuration.
type Config struct {
	// LogBackend is the logging backend to use for client logging.
	LogBackend *log.Backend

	// Address is the directory's base URL, eg: http://127.0.0.1:8080.
	Address string

	// Timeout bounds each request, zero selects a sensible default.
	Timeout time.Duration
}

func (cfg *Config) validate() error {
	if cfg.LogBackend == nil {
		return fmt.Errorf("directory/client: LogBackend is mandatory")
	}
	if !strings.HasPrefix(cfg.Address, "http://") && !strings.HasPrefix(cfg.Address, "https://") {
		return fmt.Errorf("directory/client: Address '%v' is not an HTTP URL", cfg.Address)
	}
	return nil
}

// Client is a pki.Client backed by a remote directory.
type Client struct {
	cfg        *Config
	log        *logging.Logger
	httpClient *http.Client
	base       string
}

// Register registers the relay descriptor with the directory.
func (c *Client) Register(ctx context.Context, d *pki.RelayDescriptor) error {
	c.log.Debugf("Register(ctx, %d)", d.ID)

	err := c.post(ctx, api.RegisterPath, registerRequest(d, ""), nil)
	if err == nil {
		c.log.Debugf("Registered relay: %v", d)
	}
	return err
}

// Update moves a registered relay to the descriptor's address.
func (c *Client) Update(ctx context.Context, d *pki.RelayDescriptor, p pki.Prover) error {
	c.log.Debugf("Update(ctx, %d)", d.ID)

	proof, err := c.prove(ctx, d.ID, p)
	if err != nil {
		return err
	}
	if err = c.post(ctx, api.RegisterPath, registerRequest(d, proof), nil); err == nil {
		c.log.Debugf("Updated relay: %v", d)
	}
	return err
}

// Unregister removes the relay from the directory.
func (c *Client) Unregister(ctx context.Context, id uint64, p pki.Prover) error {
	c.log.Debugf("Unregister(ctx, %d)", id)

	proof, err := c.prove(ctx, id, p)
	if err != nil {
		return err
	}
	return c.post(ctx, api.UnregisterPath, &api.UnregisterRequest{NodeID: &id, Proof: proof}, nil)
}

// prove fetches a challenge for the relay and answers it with p.
func (c *Client) prove(ctx context.Context, id uint64, p pki.Prover) (string, error) {
	resp := new(api.ChallengeResponse)
	if err := c.post(ctx, api.ChallengePath, &api.ChallengeRequest{NodeID: &id}, resp); err != nil {
		return "", err
	}
	ch, err := base64.StdEncoding.DecodeString(resp.Challenge)
	if err != nil {
		return "", fmt.Errorf("directory/client: invalid challenge: %w", err)
	}
	proof, err := p.Prove(ch)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pki.ErrInvalidProof, err)
	}
	return base64.StdEncoding.EncodeToString(proof), nil
}

func registerRequest(d *pki.RelayDescriptor, proof string) *api.RegisterRequest {
	id := d.ID
	return &api.RegisterRequest{
		NodeID:    &id,
		PubKey:    base64.StdEncoding.EncodeToString(d.PublicKey),
		KeyScheme: d.KeyScheme,
		Address:   d.Address,
		Proof:     proof,
	}
}

// ListRelays returns every well formed relay registered with the directory,
// ordered by id.
func (c *Client) ListRelays(ctx context.Context) ([]*pki.RelayDescriptor, error) {
	c.log.Debug("ListRelays(ctx)")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+api.RegistryPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	reg := new(api.RegistryResponse)
	if err = json.NewDecoder(io.LimitReader(resp.Body, api.MaxRequestSize*64)).Decode(reg); err != nil {
		return nil, fmt.Errorf("directory/client: invalid registry: %w", err)
	}

	relays := make([]*pki.RelayDescriptor, 0, len(reg.Nodes))
	for _, n := range reg.Nodes {
		if n == nil {
			continue
		}
		d := &pki.RelayDescriptor{
			ID:        n.NodeID,
			KeyScheme: n.KeyScheme,
			Address:   n.Address,
		}
		if d.PublicKey, err = base64.StdEncoding.DecodeString(n.PubKey); err != nil {
			c.log.Warningf("Discarding relay %d: invalid public key encoding: %v", n.NodeID, err)
			continue
		}
		if err = pki.IsDescriptorWellFormed(d); err != nil {
			c.log.Warningf("Discarding relay %d: %v", n.NodeID, err)
			continue
		}
		relays = append(relays, d)
	}
	c.log.Debugf("Fetched %d relays.", len(relays))
	return relays, nil
}

// post sends v, and decodes the reply into out unless it is nil.
func (c *Client) post(ctx context.Context, path string, v, out interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(io.LimitReader(resp.Body, api.MaxRequestSize)).Decode(out); err != nil {
		return fmt.Errorf("directory/client: invalid reply: %w", err)
	}
	return nil
}

// responseError maps a failed directory response to an error, using the pki
// sentinels where one applies.
func responseError(resp *http.Response) error {
	msg := resp.Status
	e := new(api.ErrorResponse)
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(e); err == nil && e.Error != "" {
		msg = e.Error
	}
	var sentinel error
	switch resp.StatusCode {
	case http.StatusConflict:
		sentinel = pki.ErrDuplicateID
	case http.StatusNotFound:
		sentinel = pki.ErrNotFound
	case http.StatusForbidden:
		sentinel = pki.ErrInvalidProof
	default:
		return fmt.Errorf("directory/client: request failed: %d %v", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w (%v)", sentinel, msg)
}

// New constructs a new directory client instance.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("directory/client: cfg is mandatory")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		log:        cfg.LogBackend.GetLogger("directory/client"),
		httpClient: &http.Client{Timeout: timeout},
		base:       strings.TrimRight(cfg.Address, "/"),
	}
	return c, nil
}
