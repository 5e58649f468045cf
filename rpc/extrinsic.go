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

package rpc

import (
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/scale"
	"golang.org/x/crypto/blake2b"
)

const (
	extrinsicVersion   = 4
	extrinsicSignedBit = 0x80

	// signing payloads longer than this are hashed before signing
	maxUnhashedPayloadSize = 256

	multiAddressID        = 0x00
	multiSignatureEd25519 = 0x00
	immortalEra           = 0x00
)

// CallIndex is the (pallet, call) index pair identifying a call
type CallIndex [2]byte

var callIndices = map[string]CallIndex{
	"SubtensorModule.set_weights":      {7, 0},
	"SubtensorModule.add_stake":        {7, 2},
	"SubtensorModule.remove_stake":     {7, 3},
	"SubtensorModule.serve_axon":       {7, 4},
	"SubtensorModule.serve_prometheus": {7, 5},
	"SubtensorModule.register":         {7, 6},
	"SubtensorModule.burned_register":  {7, 7},
	"Balances.transfer_allow_death":    {5, 0},
	"Balances.transfer_keep_alive":     {5, 3},
}

// LookupCallIndex returns the index of a call
func LookupCallIndex(module string, function string) (CallIndex, error) {
	idx, ok := callIndices[module+"."+function]
	if !ok {
		return CallIndex{}, fmt.Errorf("%w: %s.%s", ErrUnknownCall, module, function)
	}
	return idx, nil
}

// Call is a runtime call. Args are values accepted by scale.Marshal, encoded
// in order after the call index
type Call struct {
	Module   string
	Function string
	Index    CallIndex
	Args     []any
}

// NewCall builds a call, resolving its index
func NewCall(module string, function string, args ...any) (Call, error) {
	idx, err := LookupCallIndex(module, function)
	if err != nil {
		return Call{}, err
	}
	return Call{
		Module:   module,
		Function: function,
		Index:    idx,
		Args:     args,
	}, nil
}

func (c Call) String() string {
	return c.Module + "." + c.Function
}

// Encode returns the call data
func (c Call) Encode() ([]byte, error) {
	args, err := scale.MarshalAll(c.Args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c, err)
	}
	return append([]byte{c.Index[0], c.Index[1]}, args...), nil
}

// MultiAddress is the account id form of a destination address
type MultiAddress ledger.AccountID

func (m MultiAddress) MarshalSCALE(enc *scale.Encoder) error {
	enc.WriteU8(multiAddressID)
	enc.WriteFixed(m[:])
	return nil
}

// SigningContext holds the chain state an extrinsic signature commits to
type SigningContext struct {
	Nonce              uint64
	Tip                uint64
	SpecVersion        uint32
	TransactionVersion uint32
	GenesisHash        [32]byte
}

func (s SigningContext) extra() []byte {
	enc := scale.NewEncoder()
	enc.WriteU8(immortalEra)
	enc.WriteCompact(s.Nonce)
	enc.WriteCompact(s.Tip)
	return enc.Bytes()
}

func (s SigningContext) additional() []byte {
	enc := scale.NewEncoder()
	enc.WriteU32(s.SpecVersion)
	enc.WriteU32(s.TransactionVersion)
	enc.WriteFixed(s.GenesisHash[:])
	// immortal extrinsics commit to the genesis hash as their era block
	enc.WriteFixed(s.GenesisHash[:])
	return enc.Bytes()
}

// SigningPayload returns the bytes signed for a call
func SigningPayload(callData []byte, sc SigningContext) []byte {
	payload := append(append(append([]byte{}, callData...), sc.extra()...), sc.additional()...)
	if len(payload) > maxUnhashedPayloadSize {
		sum := blake2b.Sum256(payload)
		return sum[:]
	}
	return payload
}

// BuildSignedExtrinsic encodes and signs a call as a length-prefixed v4
// extrinsic
func BuildSignedExtrinsic(call Call, signer keypair.Signer, sc SigningContext) ([]byte, error) {
	callData, err := call.Encode()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(SigningPayload(callData, sc))
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call, err)
	}
	if len(sig) != keypair.SignatureSize {
		return nil, fmt.Errorf("sign %s: unexpected signature size %d", call, len(sig))
	}
	signerID, err := ledger.NewAccountID(signer.PublicKey())
	if err != nil {
		return nil, err
	}
	body := scale.NewEncoder()
	body.WriteU8(extrinsicSignedBit | extrinsicVersion)
	if err := body.Encode(MultiAddress(signerID)); err != nil {
		return nil, err
	}
	body.WriteU8(multiSignatureEd25519)
	body.WriteFixed(sig)
	body.WriteFixed(sc.extra())
	body.WriteFixed(callData)
	enc := scale.NewEncoder()
	enc.WriteByteSlice(body.Bytes())
	return enc.Bytes(), nil
}

// ExtrinsicHash returns the 0x-prefixed blake2b-256 hash of an encoded
// extrinsic
func ExtrinsicHash(ext []byte) string {
	sum := blake2b.Sum256(ext)
	return "0x" + hex.EncodeToString(sum[:])
}
