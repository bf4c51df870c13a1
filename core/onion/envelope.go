// envelope.go - Onion envelope s11n.
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

package onion

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// EnvelopeVersion is the current envelope format version.
	EnvelopeVersion = 0

	// MaxEnvelopeSize is the largest serialized envelope accepted.
	MaxEnvelopeSize = 4 << 20

	// MaxPathLength is the largest number of hops in a circuit.
	MaxPathLength = 16
)

var (
	ccbor cbor.EncMode
	dcbor cbor.DecMode
)

// Kind is the type of a decrypted layer.
type Kind uint8

const (
	// KindInterior is a layer that carries the envelope for the next relay.
	KindInterior Kind = 1

	// KindTerminal is the last layer, carrying the message itself.
	KindTerminal Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindInterior:
		return "interior"
	case KindTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("[unknown kind: %d]", uint8(k))
	}
}

// Envelope is the wire object handed from hop to hop.
type Envelope struct {
	// Version is the envelope format version.
	Version uint8

	// EncryptedKey is the cipher id and layer key, encrypted to the
	// relay's public key.
	EncryptedKey []byte

	// IV is the initialization vector of EncryptedPayload.
	IV []byte

	// EncryptedPayload is the layer plaintext sealed with the layer key.
	EncryptedPayload []byte
}

type envelope Envelope

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	return ccbor.Marshal((*envelope)(e))
}

// UnmarshalEnvelope deserializes a wire envelope, returning a FrameError
// on malformed input.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	if len(b) > MaxEnvelopeSize {
		return nil, &FrameError{Reason: fmt.Sprintf("envelope exceeds %d bytes", MaxEnvelopeSize)}
	}
	e := new(Envelope)
	if err := dcbor.Unmarshal(b, (*envelope)(e)); err != nil {
		return nil, &FrameError{Reason: "undecodable envelope", Err: err}
	}
	if e.Version != EnvelopeVersion {
		return nil, &FrameError{Reason: fmt.Sprintf("unsupported envelope version %d", e.Version)}
	}
	if len(e.EncryptedKey) == 0 || len(e.EncryptedPayload) == 0 {
		return nil, &FrameError{Reason: "envelope is missing fields"}
	}
	return e, nil
}

// Terminal is the innermost record, read only by the last relay.
type Terminal struct {
	Payload     []byte
	Destination string
}

// layerPlaintext is what a single layer decrypts to.
type layerPlaintext struct {
	NextHop string
	Kind    Kind
	Body    []byte
}

// Layer is the result of peeling one envelope.
type Layer struct {
	// NextHop is the address the relay must hand the layer content to.
	NextHop string

	// Kind is the kind of layer.
	Kind Kind

	// Payload is the decrypted layer body: a serialized Envelope for
	// interior layers, a serialized Terminal otherwise.
	Payload []byte

	// Interior is the envelope for the next relay, set iff Kind is
	// KindInterior.
	Interior *Envelope

	// Terminal is the final record, set iff Kind is KindTerminal.
	Terminal *Terminal
}

func init() {
	var err error
	ccbor, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dcbor, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}
