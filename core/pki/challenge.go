// challenge.go - Key ownership challenges.
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


package pki

import (
	"bytes"
	"errors"
	"io"

	"github.com/katzenpost/hpqc/rand"

	"github.com/onionmix/onionmix/core/crypto/pke"
)

const (
	// ChallengeNonceSize is the size of a challenge nonce in bytes.
	ChallengeNonceSize = 32

	challengeContext = "onionmix/directory/challenge/v0\x00"
)

var errNotAChallenge = errors.New("pki: ciphertext is not a directory challenge")

// Prover answers ownership challenges sealed to a relay's public key.
type Prover interface {
	// Prove opens a challenge and returns the nonce sealed in it.
	Prove(challenge []byte) ([]byte, error)
}

type keyProver struct {
	sk pke.PrivateKey
}

// Prove implements Prover.  Only ciphertexts carrying the challenge
// context are opened, so the prover can't be used to decrypt anything
// else sealed to the key.
func (p *keyProver) Prove(challenge []byte) ([]byte, error) {
	b, err := p.sk.Scheme().Decrypt(p.sk, challenge)
	if err != nil {
		return nil, err
	}
	if len(b) != len(challengeContext)+ChallengeNonceSize || !bytes.HasPrefix(b, []byte(challengeContext)) {
		return nil, errNotAChallenge
	}
	return b[len(challengeContext):], nil
}

// NewProver returns a Prover that opens challenges with sk.
func NewProver(sk pke.PrivateKey) Prover {
	return &keyProver{sk: sk}
}

// SealChallenge returns a fresh nonce, and the challenge sealing it to pk.
func SealChallenge(pk pke.PublicKey) (nonce, challenge []byte, err error) {
	nonce = make([]byte, ChallengeNonceSize)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	pt := make([]byte, 0, len(challengeContext)+ChallengeNonceSize)
	pt = append(pt, challengeContext...)
	pt = append(pt, nonce...)
	if challenge, err = pk.Scheme().Encrypt(pk, pt); err != nil {
		return nil, nil, err
	}
	return nonce, challenge, nil
}
