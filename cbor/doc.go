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

// Package cbor provides the CBOR encoding used for persisted snapshots.
//
// It wraps github.com/fxamacker/cbor/v2 with fixed encoder and decoder
// modes. Encoding is deterministic, so encoding the same value twice
// produces the same bytes.
//
// Embed StructAsArray to encode a struct as a CBOR array instead of a map:
//
//	type record struct {
//		cbor.StructAsArray
//		Block uint64
//		Stake []uint64
//	}
package cbor
