// pem.go - PEM key serialization.
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
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	kempem "github.com/katzenpost/hpqc/kem/pem"
)

const (
	rsaPublicPEMType  = "PUBLIC KEY"
	rsaPrivatePEMType = "PRIVATE KEY"
)

// PublicKeyToPEM returns the PEM encoding of a public key.
func PublicKeyToPEM(pk PublicKey) []byte {
	if k, ok := pk.(*kemPublicKey); ok {
		return kempem.ToPublicPEMBytes(k.k)
	}
	return pem.EncodeToMemory(&pem.Block{Type: rsaPublicPEMType, Bytes: pk.Bytes()})
}

// PrivateKeyToPEM returns the PEM encoding of a private key.
func PrivateKeyToPEM(sk PrivateKey) []byte {
	if k, ok := sk.(*kemPrivateKey); ok {
		return kempem.ToPrivatePEMBytes(k.k)
	}
	return pem.EncodeToMemory(&pem.Block{Type: rsaPrivatePEMType, Bytes: sk.Bytes()})
}

// PublicKeyFromPEM parses a PEM encoded public key.
func PublicKeyFromPEM(b []byte, scheme Scheme) (PublicKey, error) {
	if s, ok := scheme.(*kemScheme); ok {
		pk, err := kempem.FromPublicPEMBytes(b, s.k)
		if err != nil {
			return nil, err
		}
		return &kemPublicKey{s: s, k: pk}, nil
	}
	blk, err := decodePEM(b, rsaPublicPEMType)
	if err != nil {
		return nil, err
	}
	return scheme.UnmarshalPublicKey(blk.Bytes)
}

// PrivateKeyFromPEM parses a PEM encoded private key.
func PrivateKeyFromPEM(b []byte, scheme Scheme) (PrivateKey, error) {
	if s, ok := scheme.(*kemScheme); ok {
		sk, err := kempem.FromPrivatePEMBytes(b, s.k)
		if err != nil {
			return nil, err
		}
		return &kemPrivateKey{s: s, k: sk}, nil
	}
	blk, err := decodePEM(b, rsaPrivatePEMType)
	if err != nil {
		return nil, err
	}
	return scheme.UnmarshalPrivateKey(blk.Bytes)
}

func decodePEM(b []byte, blkType string) (*pem.Block, error) {
	blk, _ := pem.Decode(b)
	if blk == nil {
		return nil, errors.New("pke: failed to decode PEM block")
	}
	if blk.Type != blkType {
		return nil, fmt.Errorf("pke: unexpected PEM block type '%v'", blk.Type)
	}
	return blk, nil
}

// PublicKeyToFile writes the PEM encoded public key to the file f.
func PublicKeyToFile(f string, pk PublicKey) error {
	return writeFile(f, PublicKeyToPEM(pk))
}

// PrivateKeyToFile writes the PEM encoded private key to the file f.
func PrivateKeyToFile(f string, sk PrivateKey) error {
	return writeFile(f, PrivateKeyToPEM(sk))
}

// PublicKeyFromFile reads a PEM encoded public key from the file f.
func PublicKeyFromFile(f string, scheme Scheme) (PublicKey, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return PublicKeyFromPEM(b, scheme)
}

// PrivateKeyFromFile reads a PEM encoded private key from the file f.
func PrivateKeyFromFile(f string, scheme Scheme) (PrivateKey, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromPEM(b, scheme)
}

func writeFile(f string, b []byte) error {
	out, err := os.OpenFile(f, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err = out.Write(b); err != nil {
		out.Close()
		return err
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
