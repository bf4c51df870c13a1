// api.go - Directory HTTP API.
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

// Package api defines the directory HTTP API shared by the server and the
// client.
package api

const (
	// RegisterPath is the route relays register on.
	RegisterPath = "/registerNode"

	// UnregisterPath is the route relays unregister on.
	UnregisterPath = "/unregisterNode"

	// RegistryPath is the route the relay list is served on.
	RegistryPath = "/getNodeRegistry"

	// ChallengePath is the route relays fetch ownership challenges on.
	ChallengePath = "/challengeNode"

	// MaxRequestSize bounds request bodies.  Some post quantum KEM public
	// keys are large.
	MaxRequestSize = 2 << 20
)

// Node is a registered relay.
type Node struct {
	NodeID    uint64 `json:"nodeId"`
	PubKey    string `json:"pubKey"`
	KeyScheme string `json:"keyScheme"`
	Address   string `json:"address"`
}

// RegisterRequest is the body of a registration.  KeyScheme may be omitted
// for the default scheme.
type RegisterRequest struct {
	NodeID    *uint64 `json:"nodeId"`
	PubKey    string  `json:"pubKey"`
	KeyScheme string  `json:"keyScheme,omitempty"`
	Address   string  `json:"address"`

	// Proof answers a challenge, and is only needed to change the address
	// of a registered relay.
	Proof string `json:"proof,omitempty"`
}

// UnregisterRequest is the body of an unregistration.
type UnregisterRequest struct {
	NodeID *uint64 `json:"nodeId"`
	Proof  string  `json:"proof"`
}

// ChallengeRequest is the body of a challenge request.
type ChallengeRequest struct {
	NodeID *uint64 `json:"nodeId"`
}

// ChallengeResponse carries a nonce sealed to the relay's registered key.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// RegistryResponse is the relay list.
type RegistryResponse struct {
	Nodes []*Node `json:"nodes"`
}

// SuccessResponse is the body of a successful mutation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
