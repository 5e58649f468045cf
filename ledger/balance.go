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
)

// RaoPerTao is the number of base units in one token
const RaoPerTao = 1_000_000_000

// Balance is an amount in rao, the ledger's fixed-denomination base unit
type Balance uint64

// BalanceFromTao converts a token amount into rao, rounding to the nearest unit
func BalanceFromTao(tao float64) Balance {
	if tao <= 0 {
		return 0
	}
	return Balance(math.Round(tao * RaoPerTao))
}

// Rao returns the raw amount
func (b Balance) Rao() uint64 {
	return uint64(b)
}

// Tao returns the amount in whole tokens
func (b Balance) Tao() float64 {
	return float64(b) / RaoPerTao
}

func (b Balance) String() string {
	return fmt.Sprintf("τ%d.%09d", uint64(b)/RaoPerTao, uint64(b)%RaoPerTao)
}

// U16Max is the denominator of u16-normalized fractions
const U16Max = math.MaxUint16

// U16ToFloat converts a u16-normalized fraction into the range [0, 1]
func U16ToFloat(v uint16) float64 {
	return float64(v) / U16Max
}

// FloatToU16 converts a fraction in [0, 1] to its u16-normalized form,
// clamping values outside of the range
func FloatToU16(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return U16Max
	}
	return uint16(math.Round(v * U16Max))
}
