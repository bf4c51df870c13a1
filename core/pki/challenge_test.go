// challenge_test.go - Key ownership challenge tests.
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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onionmix/onionmix/core/crypto/pke"
)

func TestChallenge(t *testing.T) {
	for _, name := range []string{pke.DefaultSchemeName, "x25519"} {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			scheme := pke.ByName(name)
			pk, sk, err := scheme.GenerateKeyPair()
			require.NoError(err)

			nonce, ch, err := SealChallenge(pk)
			require.NoError(err)
			require.Len(nonce, ChallengeNonceSize)
			proof, err := NewProver(sk).Prove(ch)
			require.NoError(err)
			require.Equal(nonce, proof)

			nonce2, _, err := SealChallenge(pk)
			require.NoError(err)
			require.NotEqual(nonce, nonce2)

			// Another key can't answer.
			_, otherSk, err := scheme.GenerateKeyPair()
			require.NoError(err)
			_, err = NewProver(otherSk).Prove(ch)
			require.Error(err)

			// Other ciphertexts sealed to the key are not opened.
			ct, err := scheme.Encrypt(pk, []byte("layer key material"))
			require.NoError(err)
			_, err = NewProver(sk).Prove(ct)
			require.ErrorIs(err, errNotAChallenge)
		})
	}
}
