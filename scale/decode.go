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
	"io"
	"math/big"
	"unicode/utf8"

	gsscale "github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

// Decoder reads SCALE primitives sequentially from a byte slice while
// tracking the current offset. Reads are bounds checked before they reach
// the underlying stream decoder, so truncated input always surfaces as a
// *DecodeError wrapping io.ErrUnexpectedEOF
type Decoder struct {
	r    *bytes.Reader
	dec  *gsscale.Decoder
	size int
}

// NewDecoder returns a decoder positioned at the start of data
func NewDecoder(data []byte) *Decoder {
	r := bytes.NewReader(data)
	return &Decoder{
		r:    r,
		dec:  gsscale.NewDecoder(r),
		size: len(data),
	}
}

// Position returns the number of bytes consumed so far
func (d *Decoder) Position() int {
	return d.size - d.r.Len()
}

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int {
	return d.r.Len()
}

// EOF returns true if all input has been consumed
func (d *Decoder) EOF() bool {
	return d.r.Len() == 0
}

// Finish returns ErrTrailingBytes if any input remains unread
func (d *Decoder) Finish() error {
	if !d.EOF() {
		return &DecodeError{Offset: d.Position(), Type: "end of input", Err: ErrTrailingBytes}
	}
	return nil
}

func (d *Decoder) rewind(pos int) {
	_, _ = d.r.Seek(int64(pos), io.SeekStart)
}

func (d *Decoder) take(n int, typ string) ([]byte, error) {
	start := d.Position()
	if n < 0 || d.Remaining() < n {
		return nil, &DecodeError{Offset: start, Type: typ, Err: io.ErrUnexpectedEOF}
	}
	ret := make([]byte, n)
	if n == 0 {
		return ret, nil
	}
	if err := d.dec.Read(ret); err != nil {
		d.rewind(start)
		return nil, &DecodeError{Offset: start, Type: typ, Err: err}
	}
	return ret, nil
}

func (d *Decoder) readByte(typ string) (byte, error) {
	start := d.Position()
	if d.EOF() {
		return 0, &DecodeError{Offset: start, Type: typ, Err: io.ErrUnexpectedEOF}
	}
	b, err := d.dec.ReadOneByte()
	if err != nil {
		return 0, &DecodeError{Offset: start, Type: typ, Err: err}
	}
	return b, nil
}

// ReadFixed reads exactly n raw bytes. The returned slice is a copy
func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	return d.take(n, "fixed bytes")
}

func (d *Decoder) ReadU8() (uint8, error) {
	return d.readByte("u8")
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadU128 reads a 16-byte little-endian unsigned integer
func (d *Decoder) ReadU128() (*big.Int, error) {
	b, err := d.take(16, "u128")
	if err != nil {
		return nil, err
	}
	return leToBig(b), nil
}

// readFlag reads a single byte that must be 0 or 1
func (d *Decoder) readFlag(typ string, invalid error) (bool, error) {
	start := d.Position()
	b, err := d.readByte(typ)
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, &DecodeError{Offset: start, Type: typ, Err: invalid}
}

func (d *Decoder) ReadBool() (bool, error) {
	return d.readFlag("bool", ErrInvalidBool)
}

// ReadOption reads an option discriminant and reports whether a value follows
func (d *Decoder) ReadOption() (bool, error) {
	return d.readFlag("option", ErrInvalidOption)
}

// compactSize returns the encoded size of a compact integer from its first byte
func compactSize(first byte) int {
	switch first & 0x03 {
	case 0b00:
		return 1
	case 0b01:
		return 2
	case 0b10:
		return 4
	}
	return int(first>>2) + 5
}

// ReadCompactBig reads a compact integer of arbitrary size
func (d *Decoder) ReadCompactBig() (*big.Int, error) {
	start := d.Position()
	first, err := d.readByte("compact")
	if err != nil {
		return nil, err
	}
	d.rewind(start)
	if d.Remaining() < compactSize(first) {
		return nil, &DecodeError{Offset: start, Type: "compact", Err: io.ErrUnexpectedEOF}
	}
	v, err := d.dec.DecodeUintCompact()
	if err != nil {
		d.rewind(start)
		return nil, &DecodeError{Offset: start, Type: "compact", Err: err}
	}
	return v, nil
}

// ReadCompact reads a compact integer that must fit in a uint64
func (d *Decoder) ReadCompact() (uint64, error) {
	start := d.Position()
	v, err := d.ReadCompactBig()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, &DecodeError{Offset: start, Type: "compact", Err: ErrCompactOverflow}
	}
	return v.Uint64(), nil
}

// ReadLength reads a compact length prefix and checks it against the
// remaining input, assuming each element occupies at least minElemSize bytes
func (d *Decoder) ReadLength(minElemSize int) (int, error) {
	start := d.Position()
	n, err := d.ReadCompact()
	if err != nil {
		return 0, err
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if n > uint64(d.Remaining()/minElemSize) {
		d.rewind(start)
		return 0, &DecodeError{Offset: start, Type: "length prefix", Err: io.ErrUnexpectedEOF}
	}
	return int(n), nil
}

// ReadByteSlice reads a length-prefixed Vec<u8>
func (d *Decoder) ReadByteSlice() ([]byte, error) {
	n, err := d.ReadLength(1)
	if err != nil {
		return nil, err
	}
	return d.ReadFixed(n)
}

// ReadString reads a length-prefixed UTF-8 string
func (d *Decoder) ReadString() (string, error) {
	start := d.Position()
	b, err := d.ReadByteSlice()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &DecodeError{Offset: start, Type: "string", Err: ErrInvalidUTF8}
	}
	return string(b), nil
}

func leToBig(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}
