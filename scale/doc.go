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

// Package scale implements the primitive layer of the SCALE binary format
// used by the ledger for storage values and runtime API results.
//
// SCALE is positional: there are no field names or type tags on the wire,
// so a value can only be decoded when the reader already knows the
// sequence of types it expects. This package provides the building blocks
// for that (fixed-width little-endian integers, compact integers, booleans,
// length-prefixed byte vectors and strings, option flags); the record
// layouts themselves live in the ledger package.
//
// The byte-level work is delegated to the stream codec of
// github.com/centrifuge/go-substrate-rpc-client/v4/scale. This package adds
// bounds checking, offsets for error reporting and the typed helpers the
// record codec needs.
//
// # Compact integers
//
// Compact integers use the two low bits of the first byte as a mode:
//
//	0b00  single byte,  values < 2^6
//	0b01  two bytes,    values < 2^14
//	0b10  four bytes,   values < 2^30
//	0b11  big-integer,  (upper 6 bits + 4) bytes follow
//
// # Decoding
//
//	dec := scale.NewDecoder(data)
//	uid, err := dec.ReadCompact()
//	if err != nil {
//		return err
//	}
//
// Every read that runs past the end of the input returns a *DecodeError
// wrapping io.ErrUnexpectedEOF.
package scale
