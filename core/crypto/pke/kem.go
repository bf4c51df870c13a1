// kem.go - KEM based hybrid scheme.
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

package pke

import (
	"crypto/sha256"
	"io"

	"github.com/katzenpost/chacha20poly1305"
	"github.com/katzenpost/hpqc/kem"
	"golang.org/x/crypto/hkdf"
)

const kemInfoPrefix = "onionmix-kem-wrap-v0:"

// kemScheme wraps plaintext to a KEM public key: the encapsulated shared
// secret is expanded with HKDF-SHA256 into a single use ChaCha20-Poly1305
// key, and the ciphertext is the KEM ciphertext followed by the sealed box.
type kemScheme struct {
	k kem.Scheme
}

type kemPublicKey struct {
	s *kemScheme
	k kem.PublicKey
}

func (k *kemPublicKey) Scheme() Scheme {
	return k.s
}

func (k *kemPublicKey) Bytes() []byte {
	b, err := k.k.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

func (k *kemPublicKey) Equal(other PublicKey) bool {
	o, ok := other.(*kemPublicKey)
	if !ok {
		return false
	}
	return k.k.Equal(o.k)
}

type kemPrivateKey struct {
	s *kemScheme
	k kem.PrivateKey
}

func (k *kemPrivateKey) Scheme() Scheme {
	return k.s
}

func (k *kemPrivateKey) Bytes() []byte {
	b, err := k.k.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

func (k *kemPrivateKey) Public() PublicKey {
	return &kemPublicKey{s: k.s, k: k.k.Public()}
}

// FromKEM returns a Scheme backed by the given KEM.
func FromKEM(k kem.Scheme) Scheme {
	return &kemScheme{k: k}
}

func (s *kemScheme) Name() string {
	return s.k.Name()
}

func (s *kemScheme) GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pk, sk, err := s.k.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	return &kemPublicKey{s: s, k: pk}, &kemPrivateKey{s: s, k: sk}, nil
}

func (s *kemScheme) aead(ss, ct []byte) (*chacha20poly1305.ChaCha20Poly1305, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, ss, nil, []byte(kemInfoPrefix+s.k.Name()))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}

func (s *kemScheme) Encrypt(pk PublicKey, plaintext []byte) ([]byte, error) {
	k, ok := pk.(*kemPublicKey)
	if !ok || k.s.Name() != s.Name() {
		return nil, ErrKeyMismatch
	}
	ct, ss, err := s.k.Encapsulate(k.k)
	if err != nil {
		return nil, err
	}
	a, err := s.aead(ss, ct)
	if err != nil {
		return nil, err
	}

	// The key is only ever used once, so the all zero nonce is fine.
	var nonce [chacha20poly1305.NonceSize]byte
	out := make([]byte, 0, len(ct)+len(plaintext)+a.Overhead())
	out = append(out, ct...)
	return a.Seal(out, nonce[:], plaintext, ct), nil
}

func (s *kemScheme) Decrypt(sk PrivateKey, ciphertext []byte) ([]byte, error) {
	k, ok := sk.(*kemPrivateKey)
	if !ok || k.s.Name() != s.Name() {
		return nil, ErrKeyMismatch
	}
	ctLen := s.k.CiphertextSize()
	if len(ciphertext) < ctLen {
		return nil, ErrDecrypt
	}
	ct, box := ciphertext[:ctLen], ciphertext[ctLen:]
	ss, err := s.k.Decapsulate(k.k, ct)
	if err != nil {
		return nil, ErrDecrypt
	}
	a, err := s.aead(ss, ct)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := a.Open(nil, nonce[:], box, ct)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func (s *kemScheme) UnmarshalPublicKey(b []byte) (PublicKey, error) {
	pk, err := s.k.UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, err
	}
	return &kemPublicKey{s: s, k: pk}, nil
}

func (s *kemScheme) UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	sk, err := s.k.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, err
	}
	return &kemPrivateKey{s: s, k: sk}, nil
}
