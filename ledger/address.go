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

package ledger

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/gotensor/scale"
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// SS58Format is the address format used by the network
	SS58Format uint16 = 42

	AccountIDSize = 32

	ss58ChecksumSize = 2
	ss58MaxFormat    = 16383
)

var ss58Prefix = []byte("SS58PRE")

var (
	ErrInvalidAddress   = errors.New("invalid SS58 address")
	ErrInvalidChecksum  = errors.New("invalid SS58 checksum")
	ErrInvalidAccountID = errors.New("account id must be 32 bytes")
)

// AccountID is the raw public key identifying an account on the ledger
type AccountID [AccountIDSize]byte

// NewAccountID returns an AccountID from raw public key bytes
func NewAccountID(pub []byte) (AccountID, error) {
	var ret AccountID
	if len(pub) != AccountIDSize {
		return ret, ErrInvalidAccountID
	}
	copy(ret[:], pub)
	return ret, nil
}

// AccountIDFromSS58 parses an SS58 address into an AccountID. Hex strings
// with an optional 0x prefix are accepted as well
func AccountIDFromSS58(addr string) (AccountID, error) {
	if strings.HasPrefix(addr, "0x") {
		raw, err := hex.DecodeString(addr[2:])
		if err != nil {
			return AccountID{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
		}
		return NewAccountID(raw)
	}
	pub, _, err := SS58Decode(addr)
	if err != nil {
		return AccountID{}, err
	}
	return NewAccountID(pub)
}

// MustAccountIDFromSS58 is AccountIDFromSS58 for known-good constants
func MustAccountIDFromSS58(addr string) AccountID {
	ret, err := AccountIDFromSS58(addr)
	if err != nil {
		panic(err)
	}
	return ret
}

// SS58 returns the address form of the account
func (a AccountID) SS58() string {
	ret, _ := SS58Encode(a[:], SS58Format)
	return ret
}

func (a AccountID) String() string {
	return a.SS58()
}

func (a AccountID) MarshalSCALE(enc *scale.Encoder) error {
	enc.WriteFixed(a[:])
	return nil
}

// SS58Encode renders a public key as an SS58 address with the given format
func SS58Encode(pub []byte, format uint16) (string, error) {
	if format > ss58MaxFormat {
		return "", fmt.Errorf("%w: format %d out of range", ErrInvalidAddress, format)
	}
	var prefix []byte
	if format < 64 {
		prefix = []byte{byte(format)}
	} else {
		prefix = []byte{
			byte((format&0b0000_0000_1111_1100)>>2) | 0b0100_0000,
			byte(format>>8) | byte((format&0b0000_0000_0000_0011)<<6),
		}
	}
	body := append(append([]byte{}, prefix...), pub...)
	sum := ss58Checksum(body)
	return base58.Encode(append(body, sum[:ss58ChecksumSize]...)), nil
}

// SS58Decode parses an SS58 address and returns the public key and format
func SS58Decode(addr string) ([]byte, uint16, error) {
	raw := base58.Decode(addr)
	if len(raw) < 1+AccountIDSize+ss58ChecksumSize {
		return nil, 0, ErrInvalidAddress
	}
	var format uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		format = uint16(raw[0])
	case raw[0] < 128:
		prefixLen = 2
		lower := (raw[0]&0b0011_1111)<<2 | raw[1]>>6
		upper := raw[1] & 0b0011_1111
		format = uint16(lower) | uint16(upper)<<8
	default:
		return nil, 0, ErrInvalidAddress
	}
	if len(raw) != prefixLen+AccountIDSize+ss58ChecksumSize {
		return nil, 0, ErrInvalidAddress
	}
	body := raw[:prefixLen+AccountIDSize]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:ss58ChecksumSize], raw[len(body):]) {
		return nil, 0, ErrInvalidChecksum
	}
	pub := make([]byte, AccountIDSize)
	copy(pub, body[prefixLen:])
	return pub, format, nil
}

func ss58Checksum(body []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Prefix...), body...))
}
