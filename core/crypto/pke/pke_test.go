// pke_test.go - Public key encryption tests.
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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchemes(t *testing.T) []Scheme {
	var s []Scheme
	for _, name := range []string{RSAOAEP2048, "X25519", "MLKEM768"} {
		scheme := ByName(name)
		require.NotNil(t, scheme, name)
		s = append(s, scheme)
	}
	return s
}

func TestEncryptDecrypt(t *testing.T) {
	msg := []byte("\x01 thirty two bytes of layer key!")

	for _, s := range testSchemes(t) {
		t.Run(s.Name(), func(t *testing.T) {
			require := require.New(t)

			pk, sk, err := s.GenerateKeyPair()
			require.NoError(err)
			require.True(pk.Equal(sk.Public()))

			ct, err := s.Encrypt(pk, msg)
			require.NoError(err)
			pt, err := s.Decrypt(sk, ct)
			require.NoError(err)
			require.Equal(msg, pt)

			_, otherSk, err := s.GenerateKeyPair()
			require.NoError(err)
			_, err = s.Decrypt(otherSk, ct)
			require.ErrorIs(err, ErrDecrypt)

			ct[len(ct)-1] ^= 0xff
			_, err = s.Decrypt(sk, ct)
			require.ErrorIs(err, ErrDecrypt)

			_, err = s.Decrypt(sk, ct[:4])
			require.ErrorIs(err, ErrDecrypt)
		})
	}
}

func TestKeySerialization(t *testing.T) {
	for _, s := range testSchemes(t) {
		t.Run(s.Name(), func(t *testing.T) {
			require := require.New(t)

			pk, sk, err := s.GenerateKeyPair()
			require.NoError(err)

			pk2, err := PublicKeyFromBase64(PublicKeyToBase64(pk), s)
			require.NoError(err)
			require.True(pk.Equal(pk2))
			require.Equal(Fingerprint(pk), Fingerprint(pk2))

			sk2, err := PrivateKeyFromBase64(PrivateKeyToBase64(sk), s)
			require.NoError(err)
			require.True(pk.Equal(sk2.Public()))

			dir := t.TempDir()
			pubFile := filepath.Join(dir, "key.public.pem")
			privFile := filepath.Join(dir, "key.private.pem")
			require.NoError(PublicKeyToFile(pubFile, pk))
			require.NoError(PrivateKeyToFile(privFile, sk))

			pk3, err := PublicKeyFromFile(pubFile, s)
			require.NoError(err)
			require.True(pk.Equal(pk3))
			sk3, err := PrivateKeyFromFile(privFile, s)
			require.NoError(err)

			ct, err := s.Encrypt(pk3, []byte("hello"))
			require.NoError(err)
			pt, err := s.Decrypt(sk3, ct)
			require.NoError(err)
			require.Equal("hello", string(pt))
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	require := require.New(t)

	s := Default()
	require.Equal(DefaultSchemeName, s.Name())

	_, err := PublicKeyFromBase64("not base64!", s)
	require.Error(err)
	_, err = s.UnmarshalPublicKey([]byte("garbage"))
	require.Error(err)
	_, err = PrivateKeyFromPEM([]byte("garbage"), s)
	require.Error(err)

	// Keys of one scheme are refused by another.
	x := ByName("X25519")
	pk, _, err := x.GenerateKeyPair()
	require.NoError(err)
	_, err = s.Encrypt(pk, []byte("hello"))
	require.ErrorIs(err, ErrKeyMismatch)
	rsaPk, _, err := s.GenerateKeyPair()
	require.NoError(err)
	require.False(rsaPk.Equal(pk))

	require.Nil(ByName("no-such-scheme"))
}
