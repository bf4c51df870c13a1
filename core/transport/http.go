// http.go - HTTP transport.
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

package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const maxReplySize = 4096

// MessageRequest is the JSON body of a message delivery.  Messages that are
// not valid UTF-8 travel base64 encoded in MessageB64 instead of Message.
type MessageRequest struct {
	Message    string `json:"message"`
	MessageB64 string `json:"messageB64,omitempty"`
}

// NewMessageRequest returns the request carrying message unaltered.
func NewMessageRequest(message []byte) *MessageRequest {
	if utf8.Valid(message) {
		return &MessageRequest{Message: string(message)}
	}
	return &MessageRequest{MessageB64: base64.StdEncoding.EncodeToString(message)}
}

// Bytes returns the message carried by the request.
func (m *MessageRequest) Bytes() ([]byte, error) {
	if m.MessageB64 == "" {
		return []byte(m.Message), nil
	}
	if m.Message != "" {
		return nil, fmt.Errorf("%w: both message and messageB64 set", ErrInvalidRequest)
	}
	b, err := base64.StdEncoding.DecodeString(m.MessageB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return b, nil
}

// HTTP is the HTTP Transport.
type HTTP struct {
	client *http.Client
}

// NewHTTP returns a HTTP transport whose requests time out after timeout,
// or never if timeout is zero.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{
		client: &http.Client{Timeout: timeout},
	}
}

// SendEnvelope implements Transport.
func (t *HTTP) SendEnvelope(ctx context.Context, addr string, envelope []byte) error {
	return t.post(ctx, addr, EnvelopePath, EnvelopeContentType, envelope)
}

// Deliver implements Transport.
func (t *HTTP) Deliver(ctx context.Context, addr string, message []byte) error {
	body, err := json.Marshal(NewMessageRequest(message))
	if err != nil {
		return err
	}
	return t.post(ctx, addr, MessagePath, "application/json", body)
}

func (t *HTTP) post(ctx context.Context, addr, path, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if !IsSuccess(resp.StatusCode) {
		return &StatusError{
			Address: addr,
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(reply)),
		}
	}
	return nil
}
