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

package scale

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	gsscale "github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

// compactMaxBits is the largest value the big-integer compact mode can
// carry: 63 + 4 bytes
const compactMaxBits = 67 * 8

// Encoder accumulates SCALE-encoded primitives into a buffer. Writes to
// the buffer cannot fail, so only range errors are reported
type Encoder struct {
	buf bytes.Buffer
	enc *gsscale.Encoder
}

func NewEncoder() *Encoder {
	e := &Encoder{}
	e.enc = gsscale.NewEncoder(&e.buf)
	return e
}

// Bytes returns the encoded data
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// WriteFixed appends raw bytes with no length prefix
func (e *Encoder) WriteFixed(b []byte) {
	_ = e.enc.Write(b)
}

func (e *Encoder) WriteU8(v uint8) {
	_ = e.enc.PushByte(v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.WriteFixed(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *Encoder) WriteU32(v uint32) {
	e.WriteFixed(binary.LittleEndian.AppendUint32(nil, v))
}

func (e *Encoder) WriteU64(v uint64) {
	e.WriteFixed(binary.LittleEndian.AppendUint64(nil, v))
}

// WriteU128 writes v as a 16-byte little-endian integer. Values that do not
// fit are an error
func (e *Encoder) WriteU128(v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return ErrNegativeValue
	}
	if v.BitLen() > 128 {
		return fmt.Errorf("value %s does not fit in u128", v)
	}
	e.WriteFixed(bigToLE(v, 16))
	return nil
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
		return
	}
	e.WriteU8(0)
}

// WriteOption writes an option discriminant. The caller writes the
// contained value afterwards when present is true
func (e *Encoder) WriteOption(present bool) {
	e.WriteBool(present)
}

// WriteCompact writes v in compact form. Every uint64 is in range
func (e *Encoder) WriteCompact(v uint64) {
	_ = e.enc.EncodeUintCompact(*new(big.Int).SetUint64(v))
}

// WriteCompactBig writes a compact integer of arbitrary size
func (e *Encoder) WriteCompactBig(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrNegativeValue
	}
	if v.BitLen() > compactMaxBits {
		return fmt.Errorf("value %s is too large for compact encoding", v)
	}
	return e.enc.EncodeUintCompact(*v)
}

// WriteByteSlice writes a length-prefixed Vec<u8>
func (e *Encoder) WriteByteSlice(b []byte) {
	e.WriteCompact(uint64(len(b)))
	e.WriteFixed(b)
}

func (e *Encoder) WriteString(s string) {
	e.WriteByteSlice([]byte(s))
}

func bigToLE(v *big.Int, size int) []byte {
	be := v.Bytes()
	ret := make([]byte, size)
	for i := 0; i < len(be) && i < size; i++ {
		ret[i] = be[len(be)-1-i]
	}
	return ret
}
