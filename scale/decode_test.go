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

package scale_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"math/big"
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/scale"
	gsscale "github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var compactTestDefs = []struct {
	hex   string
	value uint64
}{
	{hex: "00", value: 0},
	{hex: "04", value: 1},
	{hex: "a8", value: 42},
	{hex: "fc", value: 63},
	{hex: "0101", value: 64},
	{hex: "fdff", value: 16383},
	{hex: "02000100", value: 16384},
	{hex: "feffffff", value: 1<<30 - 1},
	{hex: "0300000040", value: 1 << 30},
	{hex: "13ffffffffffffffff", value: math.MaxUint64},
}

func TestCompactDecode(t *testing.T) {
	for _, def := range compactTestDefs {
		dec := scale.NewDecoder(test.DecodeHexString(def.hex))
		v, err := dec.ReadCompact()
		require.NoError(t, err, def.hex)
		assert.Equal(t, def.value, v, def.hex)
		assert.True(t, dec.EOF(), def.hex)
	}
}

func TestCompactEncode(t *testing.T) {
	for _, def := range compactTestDefs {
		enc := scale.NewEncoder()
		enc.WriteCompact(def.value)
		assert.Equal(t, def.hex, hex.EncodeToString(enc.Bytes()), def.value)
	}
}

func TestCompactBigRoundTrip(t *testing.T) {
	v, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	require.True(t, ok)
	enc := scale.NewEncoder()
	require.NoError(t, enc.WriteCompactBig(v))
	dec := scale.NewDecoder(enc.Bytes())
	got, err := dec.ReadCompactBig()
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(got))
	// Too large for a uint64
	dec = scale.NewDecoder(enc.Bytes())
	_, err = dec.ReadCompact()
	assert.ErrorIs(t, err, scale.ErrCompactOverflow)
}

func TestFixedIntegers(t *testing.T) {
	dec := scale.NewDecoder(test.DecodeHexString("2a" + "3412" + "78563412" + "efcdab8967452301"))
	u8, err := dec.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x2a), u8)
	u16, err := dec.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)
	u32, err := dec.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), u32)
	u64, err := dec.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789abcdef), u64)
	assert.NoError(t, dec.Finish())
}

func TestU128(t *testing.T) {
	// 127.0.0.1 as an IPv4 address stored in a u128
	data := test.DecodeHexString("0100007f000000000000000000000000")
	dec := scale.NewDecoder(data)
	v, err := dec.ReadU128()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f000001), v.Uint64())
	enc := scale.NewEncoder()
	require.NoError(t, enc.WriteU128(v))
	assert.Equal(t, data, enc.Bytes())
}

func TestBoolAndOption(t *testing.T) {
	dec := scale.NewDecoder([]byte{0x01, 0x00, 0x02})
	b, err := dec.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	present, err := dec.ReadOption()
	require.NoError(t, err)
	assert.False(t, present)
	_, err = dec.ReadBool()
	assert.ErrorIs(t, err, scale.ErrInvalidBool)
}

func TestStringAndBytes(t *testing.T) {
	enc := scale.NewEncoder()
	enc.WriteString("gotensor")
	enc.WriteByteSlice([]byte{0xde, 0xad})
	dec := scale.NewDecoder(enc.Bytes())
	s, err := dec.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "gotensor", s)
	b, err := dec.ReadByteSlice()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, b)
	assert.NoError(t, dec.Finish())
}

func TestTruncatedInput(t *testing.T) {
	testDefs := []struct {
		name string
		data string
		read func(*scale.Decoder) error
	}{
		{
			name: "u32",
			data: "0102",
			read: func(d *scale.Decoder) error { _, err := d.ReadU32(); return err },
		},
		{
			name: "compact four byte mode",
			data: "0200",
			read: func(d *scale.Decoder) error { _, err := d.ReadCompact(); return err },
		},
		{
			name: "byte vector longer than input",
			data: "10aabb",
			read: func(d *scale.Decoder) error { _, err := d.ReadByteSlice(); return err },
		},
		{
			name: "empty",
			data: "",
			read: func(d *scale.Decoder) error { _, err := d.ReadU8(); return err },
		},
	}
	for _, def := range testDefs {
		t.Run(def.name, func(t *testing.T) {
			err := def.read(scale.NewDecoder(test.DecodeHexString(def.data)))
			require.Error(t, err)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			var decErr *scale.DecodeError
			assert.True(t, errors.As(err, &decErr))
		})
	}
}

func TestTrailingBytes(t *testing.T) {
	dec := scale.NewDecoder([]byte{0x04, 0x00})
	_, err := dec.ReadCompact()
	require.NoError(t, err)
	assert.ErrorIs(t, dec.Finish(), scale.ErrTrailingBytes)
}

func TestMarshal(t *testing.T) {
	testDefs := []struct {
		value any
		hex   string
	}{
		{value: uint16(1), hex: "0100"},
		{value: scale.Compact(64), hex: "0101"},
		{value: true, hex: "01"},
		{value: []uint16{1, 2}, hex: "0801000200"},
		{value: "ab", hex: "086162"},
		{value: [32]byte{1}, hex: "01" + "00000000000000000000000000000000000000000000000000000000000000"},
	}
	for _, def := range testDefs {
		data, err := scale.Marshal(def.value)
		require.NoError(t, err)
		assert.Equal(t, def.hex, hex.EncodeToString(data))
	}
	_, err := scale.Marshal(3.14)
	assert.ErrorIs(t, err, scale.ErrUnsupportedType)
}

func TestCompactWireCompatible(t *testing.T) {
	for _, def := range compactTestDefs {
		data := test.DecodeHexString(def.hex)
		v, err := gsscale.NewDecoder(bytes.NewReader(data)).DecodeUintCompact()
		require.NoError(t, err)
		assert.Equal(t, def.value, v.Uint64())
		var buf bytes.Buffer
		require.NoError(t, gsscale.NewEncoder(&buf).EncodeUintCompact(*new(big.Int).SetUint64(def.value)))
		enc := scale.NewEncoder()
		enc.WriteCompact(def.value)
		assert.Equal(t, buf.Bytes(), enc.Bytes(), def.value)
	}
}

func TestTruncatedCompactKeepsPosition(t *testing.T) {
	// big-integer mode announcing 8 bytes with only 2 present
	dec := scale.NewDecoder(test.DecodeHexString("13ffff"))
	_, err := dec.ReadCompactBig()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	var decodeErr *scale.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, 0, decodeErr.Offset)
	assert.Equal(t, 0, dec.Position())
	assert.Equal(t, 3, dec.Remaining())
}
