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

package cbor_test

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/gotensor/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arrayRecord struct {
	cbor.StructAsArray
	Block uint64
	Flags []bool
	Name  string
}

func TestEncodeDecodeVectors(t *testing.T) {
	testDefs := []struct {
		cborHex string
		object  any
		newDest func() any
	}{
		{
			cborHex: "83050102",
			object:  []uint64{5, 1, 2},
			newDest: func() any { return &[]uint64{} },
		},
		{
			cborHex: "8318c882f5f4636e6574",
			object:  arrayRecord{Block: 200, Flags: []bool{true, false}, Name: "net"},
			newDest: func() any { return &arrayRecord{} },
		},
		{
			cborHex: "a2616101616202",
			object:  map[string]int{"b": 2, "a": 1},
			newDest: func() any { return &map[string]int{} },
		},
	}
	for _, testDef := range testDefs {
		data, err := cbor.Encode(testDef.object)
		require.NoError(t, err)
		assert.Equal(t, testDef.cborHex, hex.EncodeToString(data))
		dest := testDef.newDest()
		n, err := cbor.Decode(data, dest)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
	}
}

func TestDecodeArrayRecord(t *testing.T) {
	data, err := hex.DecodeString("8318c882f5f4636e6574")
	require.NoError(t, err)
	var dest arrayRecord
	require.NoError(t, cbor.DecodeAll(data, &dest))
	assert.Equal(t, uint64(200), dest.Block)
	assert.Equal(t, []bool{true, false}, dest.Flags)
	assert.Equal(t, "net", dest.Name)
	err = cbor.DecodeAll(append(data, 0x00), &dest)
	assert.Error(t, err)
}

func TestFloatPrecision(t *testing.T) {
	v := []float64{1.0 / 3.0, 0}
	data, err := cbor.Encode(v)
	require.NoError(t, err)
	var dest []float64
	require.NoError(t, cbor.DecodeAll(data, &dest))
	assert.Equal(t, v, dest)
}

func TestListLength(t *testing.T) {
	data, err := cbor.Encode([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	n, err := cbor.ListLength(data)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = cbor.ListLength([]byte{0xa0})
	assert.Error(t, err)
}
