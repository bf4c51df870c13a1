// http_handler.go - Directory HTTP handler.
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

package directory

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/pki"
	"github.com/onionmix/onionmix/core/transport"
	"github.com/onionmix/onionmix/core/utils"
	"github.com/onionmix/onionmix/directory/internal/api"
)

func (s *Server) logInvalidRequest(req *http.Request, err error) {
	if err != nil {
		s.log.Errorf("Peer %v: %v Invalid request: '%v' (%v)", req.RemoteAddr, req.Method, req.URL, err)
		return
	}
	s.log.Errorf("Peer %v: %v Invalid request: '%v'", req.RemoteAddr, req.Method, req.URL)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.log.Debugf("Peer %v: %v Request: '%v'", req.RemoteAddr, req.Method, req.URL)
	setCacheControl(w) // Disable response caching by default.

	switch req.URL.Path {
	case transport.StatusPath:
		if !s.checkMethod(w, req, http.MethodGet) {
			return
		}
		w.Write([]byte("live"))
	case api.RegistryPath:
		if !s.checkMethod(w, req, http.MethodGet) {
			return
		}
		s.onGetRegistry(w, req)
	case api.RegisterPath:
		if !s.checkMethod(w, req, http.MethodPost) {
			return
		}
		s.onRegister(w, req)
	case api.UnregisterPath:
		if !s.checkMethod(w, req, http.MethodPost) {
			return
		}
		s.onUnregister(w, req)
	case api.ChallengePath:
		if !s.checkMethod(w, req, http.MethodPost) {
			return
		}
		s.onChallenge(w, req)
	default:
		s.logInvalidRequest(req, nil)
		http.NotFound(w, req)
	}
}

func (s *Server) checkMethod(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method != method {
		s.logInvalidRequest(req, nil)
		w.Header().Set("Allow", method)
		http.Error(w, "invalid HTTP method for URL", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) onGetRegistry(w http.ResponseWriter, req *http.Request) {
	relays := s.state.list()
	resp := &api.RegistryResponse{
		Nodes: make([]*api.Node, 0, len(relays)),
	}
	for _, d := range relays {
		resp.Nodes = append(resp.Nodes, &api.Node{
			NodeID:    d.ID,
			PubKey:    base64.StdEncoding.EncodeToString(d.PublicKey),
			KeyScheme: d.KeyScheme,
			Address:   d.Address,
		})
	}
	s.log.Debugf("Peer %v: Serving %d relays.", req.RemoteAddr, len(resp.Nodes))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) onRegister(w http.ResponseWriter, req *http.Request) {
	r := new(api.RegisterRequest)
	if err := readJSON(w, req, r); err != nil || r.NodeID == nil || r.PubKey == "" || r.Address == "" {
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	d, err := descriptorFromRequest(r)
	if err != nil {
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var proof []byte
	if r.Proof != "" {
		if proof, err = base64.StdEncoding.DecodeString(r.Proof); err != nil {
			s.logInvalidRequest(req, err)
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	switch err = s.state.register(d, proof); {
	case err == nil:
	case errors.Is(err, pki.ErrDuplicateID):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusConflict, "Node already registered")
		return
	case errors.Is(err, pki.ErrInvalidProof):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusForbidden, "Proof of key ownership failed")
		return
	case errors.Is(err, errPersistence):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusInternalServerError, "Failed to persist registration")
		return
	default:
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &api.SuccessResponse{Success: true})
}

func (s *Server) onUnregister(w http.ResponseWriter, req *http.Request) {
	r := new(api.UnregisterRequest)
	if err := readJSON(w, req, r); err != nil || r.NodeID == nil || r.Proof == "" {
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	proof, err := base64.StdEncoding.DecodeString(r.Proof)
	if err != nil {
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	switch err = s.state.unregister(*r.NodeID, proof); {
	case err == nil:
	case errors.Is(err, pki.ErrNotFound):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusNotFound, "Node not registered")
		return
	case errors.Is(err, pki.ErrInvalidProof):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusForbidden, "Proof of key ownership failed")
		return
	default:
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusInternalServerError, "Failed to persist unregistration")
		return
	}
	writeJSON(w, http.StatusOK, &api.SuccessResponse{Success: true})
}

func (s *Server) onChallenge(w http.ResponseWriter, req *http.Request) {
	r := new(api.ChallengeRequest)
	if err := readJSON(w, req, r); err != nil || r.NodeID == nil {
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	ch, err := s.state.newChallenge(*r.NodeID)
	switch {
	case err == nil:
	case errors.Is(err, pki.ErrNotFound):
		s.logInvalidRequest(req, err)
		writeError(w, http.StatusNotFound, "Node not registered")
		return
	default:
		s.log.Errorf("Failed to issue challenge for relay %d: %v", *r.NodeID, err)
		writeError(w, http.StatusInternalServerError, "Failed to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, &api.ChallengeResponse{Challenge: base64.StdEncoding.EncodeToString(ch)})
}

func descriptorFromRequest(r *api.RegisterRequest) (*pki.RelayDescriptor, error) {
	name := r.KeyScheme
	if name == "" {
		name = pke.DefaultSchemeName
	}
	scheme := pke.ByName(name)
	if scheme == nil {
		return nil, fmt.Errorf("Unknown key scheme '%v'", name)
	}
	pk, err := pke.PublicKeyFromBase64(r.PubKey, scheme)
	if err != nil {
		return nil, fmt.Errorf("Invalid public key: %v", err)
	}
	addr, err := utils.NormalizeNodeAddress(r.Address)
	if err != nil {
		return nil, fmt.Errorf("Invalid address: %v", err)
	}
	return pki.NewRelayDescriptor(*r.NodeID, pk, addr), nil
}

func readJSON(w http.ResponseWriter, req *http.Request, v interface{}) error {
	r := http.MaxBytesReader(w, req.Body, api.MaxRequestSize)
	b, err := io.ReadAll(r)
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

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &api.ErrorResponse{Error: msg})
}

func setCacheControl(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}
