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

package ledger_test

import (
	"math/big"
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSS58Vectors(t *testing.T) {
	testDefs := []struct {
		pubKey  string
		address string
	}{
		{pubKey: test.AlicePublicKey, address: test.AliceAddress},
		{pubKey: test.BobPublicKey, address: test.BobAddress},
	}
	for _, testDef := range testDefs {
		pub := test.DecodeHexString(testDef.pubKey)
		addr, err := ledger.SS58Encode(pub, ledger.SS58Format)
		require.NoError(t, err)
		assert.Equal(t, testDef.address, addr)
		decoded, format, err := ledger.SS58Decode(addr)
		require.NoError(t, err)
		assert.Equal(t, pub, decoded)
		assert.Equal(t, ledger.SS58Format, format)
	}
}

func TestSS58TwoBytePrefix(t *testing.T) {
	pub := test.DecodeHexString(test.AlicePublicKey)
	addr, err := ledger.SS58Encode(pub, 1234)
	require.NoError(t, err)
	decoded, format, err := ledger.SS58Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), format)
	assert.Equal(t, pub, decoded)
	_, err = ledger.SS58Encode(pub, 16384)
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestSS58Invalid(t *testing.T) {
	_, _, err := ledger.SS58Decode("")
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
	_, _, err = ledger.SS58Decode("5GrwvaEF")
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
	// flip one byte of the public key while keeping the checksum
	pub := test.DecodeHexString(test.AlicePublicKey)
	good, err := ledger.SS58Encode(pub, ledger.SS58Format)
	require.NoError(t, err)
	pub[0] ^= 0xff
	other, err := ledger.SS58Encode(pub, ledger.SS58Format)
	require.NoError(t, err)
	assert.NotEqual(t, good, other)
	_, err = ledger.AccountIDFromSS58("0xzz")
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestAccountID(t *testing.T) {
	id, err := ledger.AccountIDFromSS58(test.AliceAddress)
	require.NoError(t, err)
	assert.Equal(t, test.DecodeHexString(test.AlicePublicKey), id[:])
	assert.Equal(t, test.AliceAddress, id.String())
	hexID, err := ledger.AccountIDFromSS58("0x" + test.AlicePublicKey)
	require.NoError(t, err)
	assert.Equal(t, id, hexID)
	_, err = ledger.NewAccountID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ledger.ErrInvalidAccountID)
}

func TestIPConversion(t *testing.T) {
	testDefs := []struct {
		ip     string
		ipType uint8
		value  *big.Int
	}{
		{ip: "127.0.0.1", ipType: ledger.IPTypeV4, value: big.NewInt(0x7f000001)},
		{ip: "255.255.255.255", ipType: ledger.IPTypeV4, value: big.NewInt(0xffffffff)},
		{ip: "::1", ipType: ledger.IPTypeV6, value: big.NewInt(1)},
	}
	for _, testDef := range testDefs {
		v, ipType, err := ledger.IPToInt(testDef.ip)
		require.NoError(t, err)
		assert.Equal(t, 0, testDef.value.Cmp(v), "ip %s", testDef.ip)
		assert.Equal(t, testDef.ipType, ipType)
		assert.Equal(t, testDef.ip, ledger.IntToIP(v, ipType))
	}
	assert.Equal(t, ledger.ServingIPNone, ledger.IntToIP(big.NewInt(0), ledger.IPTypeV4))
	assert.Equal(t, ledger.ServingIPNone, ledger.IntToIP(nil, 0))
	_, _, err := ledger.IPToInt("not-an-ip")
	assert.Error(t, err)
}

func TestBalance(t *testing.T) {
	b := ledger.BalanceFromTao(1.25)
	assert.Equal(t, uint64(1_250_000_000), b.Rao())
	assert.InDelta(t, 1.25, b.Tao(), 1e-12)
	assert.Equal(t, "τ1.250000000", b.String())
	assert.Equal(t, ledger.Balance(0), ledger.BalanceFromTao(-3))
	assert.Equal(t, uint16(0), ledger.FloatToU16(-1))
	assert.Equal(t, uint16(65535), ledger.FloatToU16(2))
	for _, v := range []uint16{0, 1, 100, 32767, 65535} {
		assert.Equal(t, v, ledger.FloatToU16(ledger.U16ToFloat(v)))
	}
}
