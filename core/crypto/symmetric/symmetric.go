// symmetric.go - Per-layer symmetric ciphers.
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

// Package symmetric provides the authenticated symmetric ciphers used to
// seal each onion layer.  Every Encrypt call draws a fresh random IV.
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"strings"

	kpchacha "github.com/katzenpost/chacha20poly1305"
	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// AES256GCM is the name of the AES-256-GCM cipher, the default.
	AES256GCM = "AES-256-GCM"

	// ChaCha20Poly1305 is the name of the ChaCha20-Poly1305 cipher.
	ChaCha20Poly1305 = "ChaCha20-Poly1305"

	// XChaCha20Poly1305 is the name of the XChaCha20-Poly1305 cipher.
	XChaCha20Poly1305 = "XChaCha20-Poly1305"

	// KeySize is the key size in bytes shared by every cipher.
	KeySize = 32
)

var (
	// ErrDecrypt is the error returned when a ciphertext fails to
	// authenticate under the given key and IV.
	ErrDecrypt = errors.New("symmetric: message authentication failed")

	// ErrInvalidKey is the error returned for keys of the wrong size.
	ErrInvalidKey = errors.New("symmetric: invalid key size")

	// ErrInvalidIV is the error returned for IVs of the wrong size.
	ErrInvalidIV = errors.New("symmetric: invalid IV size")
)

// Cipher is an authenticated symmetric cipher.
type Cipher interface {
	// Name returns the cipher name.
	Name() string

	// ID returns the wire identifier of the cipher.
	ID() byte

	// IVSize returns the IV (nonce) size in bytes.
	IVSize() int

	// GenerateKey returns a fresh random key.
	GenerateKey() ([]byte, error)

	// Encrypt seals plaintext under key with a fresh random IV.
	Encrypt(key, plaintext []byte) (iv, ciphertext []byte, err error)

	// Decrypt opens ciphertext, failing closed with ErrDecrypt.
	Decrypt(key, iv, ciphertext []byte) ([]byte, error)
}

type aeadCipher struct {
	name    string
	id      byte
	ivSize  int
	newAEAD func(key []byte) (cipher.AEAD, error)
}

func (c *aeadCipher) Name() string {
	return c.name
}

func (c *aeadCipher) ID() byte {
	return c.id
}

func (c *aeadCipher) IVSize() int {
	return c.ivSize
}

func (c *aeadCipher) String() string {
	return c.name
}

func (c *aeadCipher) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (c *aeadCipher) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return c.newAEAD(key)
}

func (c *aeadCipher) Encrypt(key, plaintext []byte) ([]byte, []byte, error) {
	a, err := c.aead(key)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, c.ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}
	return iv, a.Seal(nil, iv, plaintext, c.ad()), nil
}

func (c *aeadCipher) Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	a, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != c.ivSize {
		return nil, ErrInvalidIV
	}
	plaintext, err := a.Open(nil, iv, ciphertext, c.ad())
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// ad binds the ciphertext to the cipher it was produced with.
func (c *aeadCipher) ad() []byte {
	return []byte{c.id}
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(b)
}

func newChaCha20Poly1305(key []byte) (cipher.AEAD, error) {
	return kpchacha.New(key)
}

var allCiphers = []Cipher{
	&aeadCipher{
		name:    AES256GCM,
		id:      1,
		ivSize:  12,
		newAEAD: newAESGCM,
	},
	&aeadCipher{
		name:    ChaCha20Poly1305,
		id:      2,
		ivSize:  kpchacha.NonceSize,
		newAEAD: newChaCha20Poly1305,
	},
	&aeadCipher{
		name:    XChaCha20Poly1305,
		id:      3,
		ivSize:  chacha20poly1305.NonceSizeX,
		newAEAD: chacha20poly1305.NewX,
	},
}

// Default returns the default cipher, AES-256-GCM.
func Default() Cipher {
	return allCiphers[0]
}

// ByName returns the cipher with the given (case insensitive) name, or nil.
func ByName(name string) Cipher {
	for _, c := range allCiphers {
		if strings.EqualFold(c.Name(), name) {
			return c
		}
	}
	return nil
}

// ByID returns the cipher with the given wire identifier.
func ByID(id byte) (Cipher, error) {
	for _, c := range allCiphers {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("symmetric: unknown cipher id %d", id)
}

// All returns every supported cipher.
func All() []Cipher {
	return append([]Cipher{}, allCiphers...)
}
