// http_handler.go - Relay HTTP ingress.
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
	"encoding/json"
	"io"
	"net/http"

	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/transport"
)

const (
	lastEncryptedPath   = "/getLastReceivedEncryptedMessage"
	lastDecryptedPath   = "/getLastReceivedDecryptedMessage"
	lastDestinationPath = "/getLastMessageDestination"
)

type diagnosticResponse struct {
	Result interface{} `json:"result"`
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
	if p == transport.EnvelopePath {
		if req.Method != http.MethodPost {
			s.logInvalidRequest(req, nil)
			http.Error(w, "invalid HTTP method for URL", http.StatusMethodNotAllowed)
			return
		}
		s.onEnvelope(w, req)
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
	case lastEncryptedPath:
		result = s.relay.Diagnostics().LastReceivedEnvelope
	case lastDecryptedPath:
		result = s.relay.Diagnostics().LastDecrypted
	case lastDestinationPath:
		if dst := s.relay.Diagnostics().LastDestination; dst != "" {
			result = dst
		}
	default:
		s.logInvalidRequest(req, nil)
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&diagnosticResponse{Result: result})
}

func (s *Server) onEnvelope(w http.ResponseWriter, req *http.Request) {
	r := http.MaxBytesReader(w, req.Body, onion.MaxEnvelopeSize)
	b, err := io.ReadAll(r)
	if err != nil {
		s.logInvalidRequest(req, err)
		http.Error(w, "envelope too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err = s.relay.OnEnvelope(req.Context(), b); err != nil {
		s.log.Debugf("Peer %v: Envelope rejected: %v", req.RemoteAddr, err)
		code := transport.StatusFor(err)
		http.Error(w, http.StatusText(code), code)
		return
	}
	w.Write([]byte("success"))
}
