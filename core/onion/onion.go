// onion.go - Layered envelope construction and peeling.
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

// Package onion implements the layered envelope format: Build wraps a
// message in one encrypted layer per relay of a circuit, and Peel removes
// exactly one layer with a relay's private key.
package onion

import (
	"fmt"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/crypto/symmetric"
	"github.com/onionmix/onionmix/core/pki"
)

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	cipher symmetric.Cipher
}

// WithCipher sets the symmetric cipher used for every layer.
func WithCipher(c symmetric.Cipher) BuildOption {
	return func(o *buildOptions) {
		o.cipher = c
	}
}

// ValidatePath checks that a circuit is usable, and returns each hop's
// deserialized public key.
func ValidatePath(path []*pki.RelayDescriptor) ([]pke.PublicKey, error) {
	if len(path) == 0 {
		return nil, &MalformedPathError{Hop: -1, Reason: "empty path"}
	}
	if len(path) > MaxPathLength {
		return nil, &MalformedPathError{Hop: -1, Reason: fmt.Sprintf("%d hops exceeds the maximum of %d", len(path), MaxPathLength)}
	}
	keys := make([]pke.PublicKey, 0, len(path))
	seen := make(map[uint64]int)
	for i, d := range path {
		if d == nil {
			return nil, &MalformedPathError{Hop: i, Reason: "nil relay"}
		}
		if j, ok := seen[d.ID]; ok {
			return nil, &MalformedPathError{Hop: i, Reason: fmt.Sprintf("relay %d already used at hop %d", d.ID, j)}
		}
		seen[d.ID] = i
		if err := pki.IsDescriptorWellFormed(d); err != nil {
			return nil, &MalformedPathError{Hop: i, Reason: err.Error()}
		}
		pk, err := d.Key()
		if err != nil {
			return nil, &MalformedPathError{Hop: i, Reason: err.Error()}
		}
		keys = append(keys, pk)
	}
	return keys, nil
}

// Build returns the outermost envelope that carries message to destination
// through path.  Layers are built from the last hop outward; each hop's
// layer names only the address of the hop after it.
func Build(path []*pki.RelayDescriptor, message []byte, destination string, opts ...BuildOption) (*Envelope, error) {
	o := &buildOptions{cipher: symmetric.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if destination == "" {
		return nil, &MalformedPathError{Hop: -1, Reason: "empty destination"}
	}
	keys, err := ValidatePath(path)
	if err != nil {
		return nil, err
	}

	body, err := ccbor.Marshal(&Terminal{Payload: message, Destination: destination})
	if err != nil {
		return nil, err
	}
	kind, nextHop := KindTerminal, destination

	var env *Envelope
	for i := len(path) - 1; i >= 0; i-- {
		if env, err = seal(o.cipher, keys[i], &layerPlaintext{
			NextHop: nextHop,
			Kind:    kind,
			Body:    body,
		}); err != nil {
			return nil, fmt.Errorf("onion: failed to seal hop %d: %w", i, err)
		}
		if i == 0 {
			break
		}
		if body, err = env.MarshalBinary(); err != nil {
			return nil, err
		}
		kind, nextHop = KindInterior, path[i].Address
	}
	return env, nil
}

func seal(c symmetric.Cipher, pk pke.PublicKey, l *layerPlaintext) (*Envelope, error) {
	key, err := c.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer clear(key)

	pt, err := ccbor.Marshal(l)
	if err != nil {
		return nil, err
	}
	iv, ct, err := c.Encrypt(key, pt)
	if err != nil {
		return nil, err
	}

	keyBlob := make([]byte, 0, 1+len(key))
	keyBlob = append(keyBlob, c.ID())
	keyBlob = append(keyBlob, key...)
	defer clear(keyBlob)
	encKey, err := pk.Scheme().Encrypt(pk, keyBlob)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version:          EnvelopeVersion,
		EncryptedKey:     encKey,
		IV:               iv,
		EncryptedPayload: ct,
	}, nil
}

// Peel removes one layer from the envelope with the relay's private key.
// It is a pure function of the envelope and the key.
func Peel(e *Envelope, sk pke.PrivateKey) (*Layer, error) {
	if e == nil {
		return nil, &FrameError{Reason: "nil envelope"}
	}
	if e.Version != EnvelopeVersion {
		return nil, &FrameError{Reason: fmt.Sprintf("unsupported envelope version %d", e.Version)}
	}

	keyBlob, err := sk.Scheme().Decrypt(sk, e.EncryptedKey)
	if err != nil {
		return nil, &DecryptionError{Stage: "key", Err: err}
	}
	defer clear(keyBlob)
	if len(keyBlob) != 1+symmetric.KeySize {
		return nil, &DecryptionError{Stage: "key", Err: fmt.Errorf("unexpected key length %d", len(keyBlob))}
	}
	c, err := symmetric.ByID(keyBlob[0])
	if err != nil {
		return nil, &DecryptionError{Stage: "key", Err: err}
	}
	pt, err := c.Decrypt(keyBlob[1:], e.IV, e.EncryptedPayload)
	if err != nil {
		return nil, &DecryptionError{Stage: "payload", Err: err}
	}

	lp := new(layerPlaintext)
	if err = dcbor.Unmarshal(pt, lp); err != nil {
		return nil, &FrameError{Reason: "undecodable layer", Err: err}
	}
	if lp.NextHop == "" {
		return nil, &FrameError{Reason: "layer has no next hop"}
	}

	l := &Layer{
		NextHop: lp.NextHop,
		Kind:    lp.Kind,
		Payload: lp.Body,
	}
	switch lp.Kind {
	case KindInterior:
		if l.Interior, err = UnmarshalEnvelope(lp.Body); err != nil {
			return nil, &FrameError{Reason: "interior layer does not hold an envelope", Err: err}
		}
	case KindTerminal:
		t := new(Terminal)
		if err = dcbor.Unmarshal(lp.Body, t); err != nil {
			return nil, &FrameError{Reason: "terminal layer does not hold a terminal record", Err: err}
		}
		if t.Destination != lp.NextHop {
			return nil, &FrameError{Reason: "terminal destination does not match next hop"}
		}
		l.Terminal = t
	default:
		return nil, &FrameError{Reason: fmt.Sprintf("unknown layer kind %v", lp.Kind)}
	}
	return l, nil
}
