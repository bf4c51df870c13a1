// rsa.go - RSA-OAEP scheme.
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
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"errors"

	"github.com/katzenpost/hpqc/rand"
)

// RSAOAEP2048 is the name of the RSA-OAEP scheme with 2048 bit keys and
// SHA-256.
const RSAOAEP2048 = "RSA-OAEP-2048"

const rsaBits = 2048

var rsaScheme = &rsaOAEP{}

type rsaOAEP struct{}

type rsaPublicKey struct {
	k   *rsa.PublicKey
	der []byte
}

func (k *rsaPublicKey) Scheme() Scheme {
	return rsaScheme
}

// Bytes returns the DER encoded SubjectPublicKeyInfo.
func (k *rsaPublicKey) Bytes() []byte {
	return append([]byte{}, k.der...)
}

func (k *rsaPublicKey) Equal(other PublicKey) bool {
	o, ok := other.(*rsaPublicKey)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(k.der, o.der) == 1
}

type rsaPrivateKey struct {
	k   *rsa.PrivateKey
	der []byte
	pub *rsaPublicKey
}

func (k *rsaPrivateKey) Scheme() Scheme {
	return rsaScheme
}

// Bytes returns the DER encoded PKCS #8 private key.
func (k *rsaPrivateKey) Bytes() []byte {
	return append([]byte{}, k.der...)
}

func (k *rsaPrivateKey) Public() PublicKey {
	return k.pub
}

func (s *rsaOAEP) Name() string {
	return RSAOAEP2048
}

func (s *rsaOAEP) GenerateKeyPair() (PublicKey, PrivateKey, error) {
	k, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, nil, err
	}
	sk, err := newRSAPrivateKey(k)
	if err != nil {
		return nil, nil, err
	}
	return sk.pub, sk, nil
}

func (s *rsaOAEP) Encrypt(pk PublicKey, plaintext []byte) ([]byte, error) {
	k, ok := pk.(*rsaPublicKey)
	if !ok {
		return nil, ErrKeyMismatch
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, k.k, plaintext, nil)
}

func (s *rsaOAEP) Decrypt(sk PrivateKey, ciphertext []byte) ([]byte, error) {
	k, ok := sk.(*rsaPrivateKey)
	if !ok {
		return nil, ErrKeyMismatch
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.k, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func (s *rsaOAEP) UnmarshalPublicKey(b []byte) (PublicKey, error) {
	raw, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, err
	}
	k, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("pke: public key is not an RSA key")
	}
	if k.N.BitLen() != rsaBits {
		return nil, errors.New("pke: RSA public key has the wrong size")
	}
	return &rsaPublicKey{k: k, der: append([]byte{}, b...)}, nil
}

func (s *rsaOAEP) UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	raw, err := x509.ParsePKCS8PrivateKey(b)
	if err != nil {
		return nil, err
	}
	k, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("pke: private key is not an RSA key")
	}
	if k.N.BitLen() != rsaBits {
		return nil, errors.New("pke: RSA private key has the wrong size")
	}
	return newRSAPrivateKey(k)
}

func newRSAPrivateKey(k *rsa.PrivateKey) (*rsaPrivateKey, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&k.PublicKey)
	if err != nil {
		return nil, err
	}
	return &rsaPrivateKey{
		k:   k,
		der: der,
		pub: &rsaPublicKey{k: &k.PublicKey, der: pubDER},
	}, nil
}
