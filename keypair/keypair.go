// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keypair provides the ed25519 signing identity used for hotkeys and
// coldkeys
package keypair

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/edwards25519"
	"github.com/blinklabs-io/gotensor/ledger"
)

const (
	SeedSize      = ed25519.SeedSize
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
)

var (
	ErrInvalidSeed      = errors.New("invalid seed")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrSmallOrderKey    = errors.New("public key is a small order point")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer is the signing identity consumed by the dispatcher, the endpoint
// server and extrinsic submission
type Signer interface {
	// Sign returns the signature of msg
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the raw 32-byte public key
	PublicKey() []byte
	// Address returns the SS58 form of the public key
	Address() string
}

// Keypair is an ed25519 Signer
type Keypair struct {
	privateKey ed25519.PrivateKey
	address    string
}

// NewFromSeed derives a keypair from a 32-byte seed
func NewFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf(
			"%w: seed must be %d bytes, got %d",
			ErrInvalidSeed,
			SeedSize,
			len(seed),
		)
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	address, err := ledger.SS58Encode(privateKey.Public().(ed25519.PublicKey), ledger.SS58Format)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		privateKey: privateKey,
		address:    address,
	}, nil
}

// NewFromHexSeed derives a keypair from a hex seed with an optional 0x prefix
func NewFromHexSeed(seedHex string) (*Keypair, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeed, err)
	}
	return NewFromSeed(seed)
}

// Generate creates a keypair from a seed read from r. A nil reader uses
// crypto/rand
func Generate(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return NewFromSeed(seed)
}

func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.privateKey, msg), nil
}

func (k *Keypair) PublicKey() []byte {
	return append([]byte{}, k.privateKey.Public().(ed25519.PublicKey)...)
}

func (k *Keypair) Address() string {
	return k.address
}

// Seed returns the seed the keypair was derived from
func (k *Keypair) Seed() []byte {
	return k.privateKey.Seed()
}

// ValidatePublicKey checks that a public key is a canonical-length encoding
// of a curve point outside of the small order subgroup
func ValidatePublicKey(publicKey []byte) error {
	if len(publicKey) != PublicKeySize {
		return fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidPublicKey,
			PublicKeySize,
			len(publicKey),
		)
	}
	point := &edwards25519.Point{}
	if _, err := point.SetBytes(publicKey); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}
	isSmallOrder := (&edwards25519.Point{}).MultByCofactor(point).
		Equal(edwards25519.NewIdentityPoint()) == 1
	if isSmallOrder {
		return ErrSmallOrderKey
	}
	return nil
}

// Verify checks a signature by the raw public key
func Verify(publicKey []byte, msg []byte, sig []byte) error {
	if err := ValidatePublicKey(publicKey); err != nil {
		return err
	}
	if len(sig) != SignatureSize {
		return fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidSignature,
			SignatureSize,
			len(sig),
		)
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyAddress checks a signature by the key behind an SS58 address
func VerifyAddress(address string, msg []byte, sig []byte) error {
	id, err := ledger.AccountIDFromSS58(address)
	if err != nil {
		return err
	}
	return Verify(id[:], msg, sig)
}
