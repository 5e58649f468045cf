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

// Package ledger provides the record types returned by the ledger's runtime
// APIs along with a registry-driven codec for them.
//
// Records are decoded in two steps. The raw bytes are first decoded into a
// generic Value tree following the field lists in the type registry, and the
// tree is then converted into a typed record. The conversion applies the
// ledger's presentation rules: account ids become SS58 addresses, u16
// fractions become floats in [0, 1], and endpoint records pick up the hotkey
// and coldkey of the participant that owns them.
//
//	participants, err := ledger.DecodeParticipantsLite(data)
//
// Encode inverts Decode, so a decoded record can be encoded back into the
// same bytes.
package ledger
