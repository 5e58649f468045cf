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

package rpc_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
	"github.com/blinklabs-io/gotensor/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallEncode(t *testing.T) {
	call, err := rpc.Transfer(test.BobAddress, ledger.Balance(1000), false)
	require.NoError(t, err)
	assert.Equal(t, "Balances.transfer_allow_death", call.String())
	data, err := call.Encode()
	require.NoError(t, err)
	assert.Equal(
		t,
		test.ConcatBytes(
			[]byte{0x05, 0x00},
			[]byte{0x00},
			test.DecodeHexString(test.BobPublicKey),
			test.DecodeHexString("a10f"),
		),
		data,
	)
	_, err = rpc.NewCall("SubtensorModule", "no_such_call")
	assert.ErrorIs(t, err, rpc.ErrUnknownCall)
}

func TestSetWeightsCallEncode(t *testing.T) {
	call, err := rpc.SetWeights(1, []uint16{0, 2}, []uint16{65535, 100}, 7)
	require.NoError(t, err)
	data, err := call.Encode()
	require.NoError(t, err)
	assert.Equal(
		t,
		test.DecodeHexString(`
			0700
			0100
			08 0000 0200
			08 ffff 6400
			0700000000000000`),
		data,
	)
	_, err = rpc.SetWeights(1, []uint16{0}, nil, 0)
	assert.ErrorIs(t, err, rpc.ErrInvalidWeights)
}

func TestBuildSignedExtrinsic(t *testing.T) {
	kp, err := keypair.NewFromSeed(bytes.Repeat([]byte{7}, keypair.SeedSize))
	require.NoError(t, err)
	call, err := rpc.AddStake(test.AliceAddress, ledger.Balance(5))
	require.NoError(t, err)
	sc := rpc.SigningContext{
		Nonce:              5,
		SpecVersion:        200,
		TransactionVersion: 1,
	}
	sc.GenesisHash[0] = 0xaa
	ext, err := rpc.BuildSignedExtrinsic(call, kp, sc)
	require.NoError(t, err)
	body, err := scale.NewDecoder(ext).ReadByteSlice()
	require.NoError(t, err)
	assert.Equal(t, byte(0x84), body[0])
	assert.Equal(t, byte(0x00), body[1])
	assert.Equal(t, kp.PublicKey(), body[2:34])
	assert.Equal(t, byte(0x00), body[34])
	sig := body[35:99]
	// immortal era, Compact(5) nonce, Compact(0) tip
	assert.Equal(t, []byte{0x00, 0x14, 0x00}, body[99:102])
	callData, err := call.Encode()
	require.NoError(t, err)
	assert.Equal(t, callData, body[102:])
	require.NoError(t, keypair.Verify(kp.PublicKey(), rpc.SigningPayload(callData, sc), sig))
	assert.Len(t, rpc.ExtrinsicHash(ext), 66)
}

func TestSigningPayloadHashedWhenLong(t *testing.T) {
	short := rpc.SigningPayload([]byte{1, 2, 3}, rpc.SigningContext{})
	// call, era, nonce, tip, spec version, tx version, genesis twice
	assert.Len(t, short, 3+3+4+4+64)
	long := rpc.SigningPayload(make([]byte, 300), rpc.SigningContext{})
	assert.Len(t, long, 32)
}
