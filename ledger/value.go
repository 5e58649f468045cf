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
	"fmt"
	"math"
	"math/big"

	"github.com/blinklabs-io/gotensor/scale"
)

// Value is a node of a generically decoded tree. The concrete types are:
//
//   - uint64 for u8 through u64 and their compact forms
//   - *big.Int for u128 and Compact<u128>
//   - bool
//   - string for Str
//   - []byte for [u8; N]
//   - []Value for Vec, tuples and other fixed arrays
//   - nil for an absent Option, otherwise the inner value
//   - *Struct for named record types
type Value any

// Field is a named member of a decoded struct
type Field struct {
	Name  string
	Value Value
}

// Struct is a decoded named record type
type Struct struct {
	Name   string
	Fields []Field
}

// Get returns the value of the named field, or nil if it does not exist
func (s *Struct) Get(name string) Value {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

var intWidths = map[string]uint64{
	"u8":  math.MaxUint8,
	"u16": math.MaxUint16,
	"u32": math.MaxUint32,
	"u64": math.MaxUint64,
}

// DecodeValue decodes a single value of the given type string, requiring that
// all input is consumed
func DecodeValue(typeString string, data []byte) (Value, error) {
	expr := mustParseType(typeString)
	dec := scale.NewDecoder(data)
	ret, err := decodeExpr(dec, expr)
	if err != nil {
		return nil, err
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return ret, nil
}

// EncodeValue is the inverse of DecodeValue
func EncodeValue(typeString string, v Value) ([]byte, error) {
	expr := mustParseType(typeString)
	enc := scale.NewEncoder()
	if err := encodeExpr(enc, expr, v); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

func decodeExpr(dec *scale.Decoder, expr *typeExpr) (Value, error) {
	switch expr.kind {
	case exprPrimitive:
		return decodePrimitive(dec, expr.name)
	case exprCompact:
		start := dec.Position()
		if expr.name == "u128" {
			v, err := dec.ReadCompactBig()
			if err != nil {
				return nil, err
			}
			if v.BitLen() > 128 {
				return nil, &scale.DecodeError{Offset: start, Type: "Compact<u128>", Err: scale.ErrCompactOverflow}
			}
			return v, nil
		}
		v, err := dec.ReadCompact()
		if err != nil {
			return nil, err
		}
		if v > intWidths[expr.name] {
			return nil, &scale.DecodeError{Offset: start, Type: "Compact<" + expr.name + ">", Err: scale.ErrCompactOverflow}
		}
		return v, nil
	case exprVec:
		n, err := dec.ReadLength(1)
		if err != nil {
			return nil, err
		}
		ret := make([]Value, 0, n)
		for range n {
			item, err := decodeExpr(dec, expr.elems[0])
			if err != nil {
				return nil, err
			}
			ret = append(ret, item)
		}
		return ret, nil
	case exprOption:
		present, err := dec.ReadOption()
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, nil
		}
		return decodeExpr(dec, expr.elems[0])
	case exprTuple:
		ret := make([]Value, 0, len(expr.elems))
		for _, elem := range expr.elems {
			item, err := decodeExpr(dec, elem)
			if err != nil {
				return nil, err
			}
			ret = append(ret, item)
		}
		return ret, nil
	case exprArray:
		elem := expr.elems[0]
		if elem.kind == exprPrimitive && elem.name == "u8" {
			return dec.ReadFixed(expr.size)
		}
		ret := make([]Value, 0, expr.size)
		for range expr.size {
			item, err := decodeExpr(dec, elem)
			if err != nil {
				return nil, err
			}
			ret = append(ret, item)
		}
		return ret, nil
	case exprNamed:
		fields := typeRegistry[expr.name]
		ret := &Struct{Name: expr.name, Fields: make([]Field, 0, len(fields))}
		for _, field := range fields {
			v, err := decodeExpr(dec, mustParseType(field.Type))
			if err != nil {
				return nil, err
			}
			ret.Fields = append(ret.Fields, Field{Name: field.Name, Value: v})
		}
		return ret, nil
	}
	panic(fmt.Sprintf("ledger: unhandled type expression kind %d", expr.kind))
}

func decodePrimitive(dec *scale.Decoder, name string) (Value, error) {
	switch name {
	case "u8":
		v, err := dec.ReadU8()
		return uint64(v), err
	case "u16":
		v, err := dec.ReadU16()
		return uint64(v), err
	case "u32":
		v, err := dec.ReadU32()
		return uint64(v), err
	case "u64":
		return dec.ReadU64()
	case "u128":
		return dec.ReadU128()
	case "bool":
		return dec.ReadBool()
	case "Str":
		return dec.ReadString()
	}
	panic("ledger: unknown primitive " + name)
}

func encodeExpr(enc *scale.Encoder, expr *typeExpr, v Value) error {
	switch expr.kind {
	case exprPrimitive:
		return encodePrimitive(enc, expr.name, v)
	case exprCompact:
		if expr.name == "u128" {
			b, err := bigValue(v)
			if err != nil {
				return err
			}
			return enc.WriteCompactBig(b)
		}
		n, err := uintValue(v, expr.name)
		if err != nil {
			return err
		}
		enc.WriteCompact(n)
		return nil
	case exprVec:
		items, ok := v.([]Value)
		if !ok && v != nil {
			return fmt.Errorf("%w: expected []Value for Vec, got %T", scale.ErrUnsupportedType, v)
		}
		enc.WriteCompact(uint64(len(items)))
		for _, item := range items {
			if err := encodeExpr(enc, expr.elems[0], item); err != nil {
				return err
			}
		}
		return nil
	case exprOption:
		if v == nil {
			enc.WriteOption(false)
			return nil
		}
		enc.WriteOption(true)
		return encodeExpr(enc, expr.elems[0], v)
	case exprTuple:
		items, ok := v.([]Value)
		if !ok || len(items) != len(expr.elems) {
			return fmt.Errorf("%w: expected %d-tuple, got %T", scale.ErrUnsupportedType, len(expr.elems), v)
		}
		for idx, elem := range expr.elems {
			if err := encodeExpr(enc, elem, items[idx]); err != nil {
				return err
			}
		}
		return nil
	case exprArray:
		elem := expr.elems[0]
		if elem.kind == exprPrimitive && elem.name == "u8" {
			b, ok := v.([]byte)
			if !ok || len(b) != expr.size {
				return fmt.Errorf("%w: expected [u8; %d], got %T", scale.ErrUnsupportedType, expr.size, v)
			}
			enc.WriteFixed(b)
			return nil
		}
		items, ok := v.([]Value)
		if !ok || len(items) != expr.size {
			return fmt.Errorf("%w: expected array of %d, got %T", scale.ErrUnsupportedType, expr.size, v)
		}
		for _, item := range items {
			if err := encodeExpr(enc, elem, item); err != nil {
				return err
			}
		}
		return nil
	case exprNamed:
		s, ok := v.(*Struct)
		if !ok {
			return fmt.Errorf("%w: expected %s, got %T", scale.ErrUnsupportedType, expr.name, v)
		}
		for _, field := range typeRegistry[expr.name] {
			if err := encodeExpr(enc, mustParseType(field.Type), s.Get(field.Name)); err != nil {
				return fmt.Errorf("%s.%s: %w", expr.name, field.Name, err)
			}
		}
		return nil
	}
	panic(fmt.Sprintf("ledger: unhandled type expression kind %d", expr.kind))
}

func encodePrimitive(enc *scale.Encoder, name string, v Value) error {
	switch name {
	case "u8", "u16", "u32", "u64":
		n, err := uintValue(v, name)
		if err != nil {
			return err
		}
		switch name {
		case "u8":
			enc.WriteU8(uint8(n))
		case "u16":
			enc.WriteU16(uint16(n))
		case "u32":
			enc.WriteU32(uint32(n))
		default:
			enc.WriteU64(n)
		}
		return nil
	case "u128":
		b, err := bigValue(v)
		if err != nil {
			return err
		}
		return enc.WriteU128(b)
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: expected bool, got %T", scale.ErrUnsupportedType, v)
		}
		enc.WriteBool(b)
		return nil
	case "Str":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: expected string, got %T", scale.ErrUnsupportedType, v)
		}
		enc.WriteString(s)
		return nil
	}
	panic("ledger: unknown primitive " + name)
}

func uintValue(v Value, name string) (uint64, error) {
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("%w: expected uint64 for %s, got %T", scale.ErrUnsupportedType, name, v)
	}
	if n > intWidths[name] {
		return 0, fmt.Errorf("value %d out of range for %s", n, name)
	}
	return n, nil
}

func bigValue(v Value) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		return val, nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	}
	return nil, fmt.Errorf("%w: expected *big.Int, got %T", scale.ErrUnsupportedType, v)
}
