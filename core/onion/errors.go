// errors.go - Onion routing errors.
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
	"errors"
	"fmt"
)

var (
	// ErrMalformedPath is matched by every MalformedPathError.
	ErrMalformedPath = errors.New("onion: malformed path")

	// ErrInsufficientRelays is matched by every InsufficientRelaysError.
	ErrInsufficientRelays = errors.New("onion: insufficient relays")

	// ErrDecryption is matched by every DecryptionError.
	ErrDecryption = errors.New("onion: decryption failed")

	// ErrFrame is matched by every FrameError.
	ErrFrame = errors.New("onion: invalid frame")

	// ErrDelivery is matched by every DeliveryError.
	ErrDelivery = errors.New("onion: delivery failed")
)

// MalformedPathError is the error returned when a circuit can not be used
// to build an envelope.  Hop is the offending position, or -1.
type MalformedPathError struct {
	Hop    int
	Reason string
}

func (e *MalformedPathError) Error() string {
	if e.Hop < 0 {
		return fmt.Sprintf("onion: malformed path: %s", e.Reason)
	}
	return fmt.Sprintf("onion: malformed path: hop %d: %s", e.Hop, e.Reason)
}

func (e *MalformedPathError) Is(target error) bool {
	return target == ErrMalformedPath
}

// InsufficientRelaysError is the error returned when the directory knows
// fewer relays than a circuit needs.
type InsufficientRelaysError struct {
	Available int
	Requested int
}

func (e *InsufficientRelaysError) Error() string {
	return fmt.Sprintf("onion: insufficient relays: %d available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientRelaysError) Is(target error) bool {
	return target == ErrInsufficientRelays
}

// DecryptionError is the error returned when a layer can not be decrypted,
// either because the key does not match or the ciphertext is corrupt.
type DecryptionError struct {
	// Stage is "key" or "payload".
	Stage string
	Err   error
}

func (e *DecryptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("onion: failed to decrypt %s", e.Stage)
	}
	return fmt.Sprintf("onion: failed to decrypt %s: %v", e.Stage, e.Err)
}

func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// FrameError is the error returned when a decrypted layer, or the wire
// envelope itself, is structurally invalid.
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return "onion: invalid frame: " + e.Reason
	}
	return fmt.Sprintf("onion: invalid frame: %s: %v", e.Reason, e.Err)
}

func (e *FrameError) Is(target error) bool {
	return target == ErrFrame
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// DeliveryError is the error returned when the next hop or the final
// recipient at Address could not be reached or refused the message.
type DeliveryError struct {
	Address string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("onion: delivery to '%s' failed: %v", e.Address, e.Err)
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
