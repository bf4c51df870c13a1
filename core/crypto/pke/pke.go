// pke.go - Relay public key encryption.
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

// Package pke provides the public key encryption schemes used to wrap the
// per-layer symmetric keys of an onion to the key of each relay.
package pke

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/katzenpost/hpqc/kem/schemes"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrDecrypt is the error returned when a ciphertext can not be
	// decrypted by the given private key.
	ErrDecrypt = errors.New("pke: decryption failed")

	// ErrKeyMismatch is the error returned when a key is used with a
	// scheme other than the one that created it.
	ErrKeyMismatch = errors.New("pke: key does not belong to scheme")
)

// PublicKey is a relay public key.
type PublicKey interface {
	// Scheme returns the scheme of the key.
	Scheme() Scheme

	// Bytes returns the binary serialization of the key.
	Bytes() []byte

	// Equal returns true iff the two keys are equal.
	Equal(PublicKey) bool
}

// PrivateKey is a relay private key.
type PrivateKey interface {
	// Scheme returns the scheme of the key.
	Scheme() Scheme

	// Bytes returns the binary serialization of the key.
	Bytes() []byte

	// Public returns the public key for this private key.
	Public() PublicKey
}

// Scheme is a public key encryption scheme.
type Scheme interface {
	// Name returns the name of the scheme.
	Name() string

	// GenerateKeyPair creates a new key pair.
	GenerateKeyPair() (PublicKey, PrivateKey, error)

	// Encrypt encrypts plaintext to the public key.
	Encrypt(pk PublicKey, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the private key, returning
	// ErrDecrypt on any failure.
	Decrypt(sk PrivateKey, ciphertext []byte) ([]byte, error)

	// UnmarshalPublicKey deserializes a public key.
	UnmarshalPublicKey([]byte) (PublicKey, error)

	// UnmarshalPrivateKey deserializes a private key.
	UnmarshalPrivateKey([]byte) (PrivateKey, error)
}

// DefaultSchemeName is the name of the default scheme.
const DefaultSchemeName = RSAOAEP2048

// Default returns the default scheme.
func Default() Scheme {
	return rsaScheme
}

// ByName returns the scheme with the given name, or nil.  Besides
// RSA-OAEP-2048 every KEM known to hpqc is supported.
func ByName(name string) Scheme {
	if strings.EqualFold(name, RSAOAEP2048) {
		return rsaScheme
	}
	k := schemes.ByName(name)
	if k == nil {
		return nil
	}
	return FromKEM(k)
}

// PublicKeyToBase64 returns the interchange form of a public key.
func PublicKeyToBase64(pk PublicKey) string {
	return base64.StdEncoding.EncodeToString(pk.Bytes())
}

// PublicKeyFromBase64 parses the interchange form of a public key.
func PublicKeyFromBase64(s string, scheme Scheme) (PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pke: invalid base64 public key: %w", err)
	}
	return scheme.UnmarshalPublicKey(b)
}

// PrivateKeyToBase64 returns the interchange form of a private key.
func PrivateKeyToBase64(sk PrivateKey) string {
	return base64.StdEncoding.EncodeToString(sk.Bytes())
}

// PrivateKeyFromBase64 parses the interchange form of a private key.
func PrivateKeyFromBase64(s string, scheme Scheme) (PrivateKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pke: invalid base64 private key: %w", err)
	}
	return scheme.UnmarshalPrivateKey(b)
}

// Fingerprint returns a short printable digest of a public key, for logs.
func Fingerprint(pk PublicKey) string {
	h := blake2b.Sum256(pk.Bytes())
	return hex.EncodeToString(h[:8])
}
