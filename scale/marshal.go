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
	"fmt"
	"math/big"
)

// Marshaler is implemented by types that know their own SCALE layout
type Marshaler interface {
	MarshalSCALE(*Encoder) error
}

// Compact wraps an unsigned integer so that Marshal writes it in compact form
type Compact uint64

// Marshal encodes a single value. It only covers the shapes needed for
// storage keys and call arguments: fixed-width unsigned integers, Compact,
// bool, string, byte slices and arrays, slices of those, and Marshaler
func Marshal(v any) ([]byte, error) {
	enc := NewEncoder()
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// MarshalAll concatenates the encodings of several values
func MarshalAll(values ...any) ([]byte, error) {
	enc := NewEncoder()
	for idx, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("value %d: %w", idx, err)
		}
	}
	return enc.Bytes(), nil
}

// Encode writes a single value, see Marshal for the supported types
func (e *Encoder) Encode(v any) error {
	switch val := v.(type) {
	case Marshaler:
		return val.MarshalSCALE(e)
	case uint8:
		e.WriteU8(val)
	case uint16:
		e.WriteU16(val)
	case uint32:
		e.WriteU32(val)
	case uint64:
		e.WriteU64(val)
	case Compact:
		e.WriteCompact(uint64(val))
	case *big.Int:
		return e.WriteU128(val)
	case bool:
		e.WriteBool(val)
	case string:
		e.WriteString(val)
	case []byte:
		e.WriteByteSlice(val)
	case [32]byte:
		e.WriteFixed(val[:])
	case []uint16:
		e.WriteCompact(uint64(len(val)))
		for _, item := range val {
			e.WriteU16(item)
		}
	case []uint64:
		e.WriteCompact(uint64(len(val)))
		for _, item := range val {
			e.WriteU64(item)
		}
	case []bool:
		e.WriteCompact(uint64(len(val)))
		for _, item := range val {
			e.WriteBool(item)
		}
	case []Compact:
		e.WriteCompact(uint64(len(val)))
		for _, item := range val {
			e.WriteCompact(uint64(item))
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}
