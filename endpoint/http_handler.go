// http_handler.go - Endpoint HTTP API.
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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/onionmix/onionmix/circuit"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	// SendMessagePath is the route messages are sent through.
	SendMessagePath = "/sendMessage"

	lastReceivedPath = "/getLastReceivedMessage"
	lastSentPath     = "/getLastSentMessage"
	lastCircuitPath  = "/getLastCircuit"

	maxRequestSize = 1 << 20
)

// SendMessageRequest is the body of a send request.  The recipient is
// either a contact id or an endpoint address.
type SendMessageRequest struct {
	Message           string  `json:"message"`
	DestinationUserID *uint64 `json:"destinationUserId,omitempty"`
	Destination       string  `json:"destination,omitempty"`
}

// SendMessageResponse is the body of a successful send.
type SendMessageResponse struct {
	Success  bool      `json:"success"`
	Response *SendInfo `json:"response"`
}

// SendInfo describes how a message left the endpoint.
type SendInfo struct {
	FirstHop     string `json:"firstHop"`
	Length       int    `json:"length"`
	EnvelopeSize int    `json:"envelopeSize"`
}

type resultResponse struct {
	Result interface{} `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) logInvalidRequest(req *http.Request, err error) {
	if err != nil {
		s.log.Errorf("Peer %v: %v Invalid request: '%v' (%v)", req.RemoteAddr, req.Method, req.URL, err)
		return
	}
	s.log.Errorf("Peer %v: %v Invalid request: '%v'", req.RemoteAddr, req.Method, req.URL)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.log.Debugf("Peer %v: %v Request: '%v'", req.RemoteAddr, req.Method, req.URL)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	p := req.URL.Path
	switch p {
	case transport.MessagePath, SendMessagePath:
		if req.Method != http.MethodPost {
			s.logInvalidRequest(req, nil)
			http.Error(w, "invalid HTTP method for URL", http.StatusMethodNotAllowed)
			return
		}
		if p == transport.MessagePath {
			s.onMessage(w, req)
		} else {
			s.onSendMessage(w, req)
		}
		return
	}

	if req.Method != http.MethodGet {
		s.logInvalidRequest(req, nil)
		http.Error(w, "invalid HTTP method for URL", http.StatusMethodNotAllowed)
		return
	}
	var result interface{}
	switch p {
	case transport.StatusPath:
		w.Write([]byte("live"))
		return
	case lastReceivedPath:
		if m := s.agent.LastReceived(); m != nil {
			result = string(m)
		}
	case lastSentPath:
		if m := s.agent.LastSent(); m != nil {
			result = string(m)
		}
	case lastCircuitPath:
		if c := s.agent.LastCircuit(); c != nil {
			result = c
		}
	default:
		s.logInvalidRequest(req, nil)
		http.NotFound(w, req)
		return
	}
	writeJSON(w, http.StatusOK, &resultResponse{Result: result})
}

func (s *Server) onMessage(w http.ResponseWriter, req *http.Request) {
	m := new(transport.MessageRequest)
	if err := readJSON(w, req, m); err != nil {
		s.logInvalidRequest(req, err)
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "Invalid request"})
		return
	}
	b, err := m.Bytes()
	if err == nil {
		err = s.agent.Deliver(b)
	}
	if err != nil {
		s.logInvalidRequest(req, err)
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "Invalid request"})
		return
	}
	w.Write([]byte("success"))
}

func (s *Server) onSendMessage(w http.ResponseWriter, req *http.Request) {
	r := new(SendMessageRequest)
	if err := readJSON(w, req, r); err != nil || r.Message == "" || (r.DestinationUserID == nil && r.Destination == "") {
		s.logInvalidRequest(req, err)
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "Invalid request"})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), s.cfg.Debug.SendTimeout())
	defer cancel()

	var (
		res *circuit.SendResult
		err error
	)
	if r.DestinationUserID != nil {
		res, err = s.agent.SendTo(ctx, []byte(r.Message), *r.DestinationUserID)
	} else {
		dst, nErr := utils.NormalizeNodeAddress(r.Destination)
		if nErr != nil {
			s.logInvalidRequest(req, nErr)
			writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "Invalid request"})
			return
		}
		res, err = s.agent.Send(ctx, []byte(r.Message), dst)
	}

	switch {
	case err == nil:
		info := &SendInfo{
			FirstHop:     res.FirstHop,
			Length:       res.Length,
			EnvelopeSize: res.EnvelopeSize,
		}
		writeJSON(w, http.StatusOK, &SendMessageResponse{Success: true, Response: info})
	case errors.Is(err, ErrUnknownContact):
		s.logInvalidRequest(req, err)
		writeJSON(w, http.StatusNotFound, &errorResponse{Error: "Unknown destination"})
	default:
		s.log.Warningf("Peer %v: Failed to send message: %v", req.RemoteAddr, err)
		writeJSON(w, transport.StatusFor(err), &errorResponse{Error: "Failed to send message"})
	}
}

func readJSON(w http.ResponseWriter, req *http.Request, v interface{}) error {
	b, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
