// key.go - Relay key and replay filter.
// Copyright (C) 2017  Yawning Angel.
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
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/katzenpost/hpqc/rand"
	"github.com/yawning/bloom"
	"golang.org/x/crypto/blake2b"

	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/onion"
	"github.com/onionmix/onionmix/core/utils"
)

const (
	// TagLength is the replay tag length in bytes.
	TagLength = blake2b.Size256

	privateKeyFile = "relay.private.pem"
	publicKeyFile  = "relay.public.pem"

	replayFalsePositiveRate = 0.001
)

// Key is a relay's long term keypair, with an optional replay filter.
type Key struct {
	sync.Mutex

	sk pke.PrivateKey
	pk pke.PublicKey

	f      *bloom.Filter
	fLn2   int
	resets int
}

// PublicKey returns the public component of the key.
func (k *Key) PublicKey() pke.PublicKey {
	return k.pk
}

// PrivateKey returns the private component of the key.
func (k *Key) PrivateKey() pke.PrivateKey {
	return k.sk
}

// ReplayTag returns the replay tag of an envelope.  Every layer is sealed
// under a fresh random key, so the encrypted key is unique per layer.
func ReplayTag(e *onion.Envelope) []byte {
	h := blake2b.Sum256(e.EncryptedKey)
	return h[:]
}

// IsReplay marks a given replay tag as seen, and returns true iff the tag has
// been seen previously (Test and Set).  It always returns false if the
// replay filter is disabled.
func (k *Key) IsReplay(rawTag []byte) bool {
	if k.f == nil {
		return false
	}

	// Treat all pathologically malformed tags as replays.
	if len(rawTag) != TagLength {
		return true
	}

	k.Lock()
	defer k.Unlock()

	// A saturated filter has a much higher false positive rate, so start
	// over with an empty one.
	if k.f.Entries() >= k.f.MaxEntries() {
		f, err := bloom.New(rand.Reader, k.fLn2, replayFalsePositiveRate)
		if err != nil {
			// Only fails on invalid parameters, which were already used once.
			panic("BUG: relay: failed to reset replay filter: " + err.Error())
		}
		k.f = f
		k.resets++
	}
	return k.f.TestAndSet(rawTag)
}

// EnableReplayFilter enables the replay filter with a 2^mLn2 bit filter.
func (k *Key) EnableReplayFilter(mLn2 int) error {
	f, err := bloom.New(rand.Reader, mLn2, replayFalsePositiveRate)
	if err != nil {
		return err
	}
	k.Lock()
	defer k.Unlock()
	k.f = f
	k.fLn2 = mLn2
	return nil
}

// NewKey generates a new ephemeral key for the scheme.
func NewKey(scheme pke.Scheme) (*Key, error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Key{sk: sk, pk: pk}, nil
}

// LoadKey loads the key for the scheme from the data directory, or
// generates and saves a new one if neither key file exists.
func LoadKey(dataDir string, scheme pke.Scheme) (*Key, error) {
	privFile := filepath.Join(dataDir, privateKeyFile)
	pubFile := filepath.Join(dataDir, publicKeyFile)

	switch {
	case utils.BothExists(privFile, pubFile):
		sk, err := pke.PrivateKeyFromFile(privFile, scheme)
		if err != nil {
			return nil, err
		}
		pk, err := pke.PublicKeyFromFile(pubFile, scheme)
		if err != nil {
			return nil, err
		}
		if !sk.Public().Equal(pk) {
			return nil, fmt.Errorf("relay: public key '%v' does not match the private key", pubFile)
		}
		return &Key{sk: sk, pk: pk}, nil
	case utils.BothNotExists(privFile, pubFile):
		k, err := NewKey(scheme)
		if err != nil {
			return nil, err
		}
		if err = pke.PrivateKeyToFile(privFile, k.sk); err != nil {
			return nil, err
		}
		if err = pke.PublicKeyToFile(pubFile, k.pk); err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, errors.New("relay: only one of the key files exists")
	}
}
