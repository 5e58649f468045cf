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
	"math/big"
	"net"
)

const (
	IPTypeV4 = 4
	IPTypeV6 = 6
)

var maxIPv4 = big.NewInt(0xffffffff)

// IntToIP renders an on-chain u128 address. Unless ipType says IPv6, values
// that fit in 32 bits are IPv4
func IntToIP(v *big.Int, ipType uint8) string {
	if v == nil || v.Sign() == 0 {
		return ServingIPNone
	}
	if ipType != IPTypeV6 && v.Cmp(maxIPv4) <= 0 {
		b := v.FillBytes(make([]byte, 4))
		return net.IP(b).String()
	}
	b := v.FillBytes(make([]byte, 16))
	return net.IP(b).String()
}

// IPToInt converts a textual IPv4 or IPv6 address into its u128 form and
// returns the matching ip type
func IPToInt(ip string) (*big.Int, uint8, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, 0, fmt.Errorf("invalid IP address: %q", ip)
	}
	if v4 := parsed.To4(); v4 != nil {
		return new(big.Int).SetBytes(v4), IPTypeV4, nil
	}
	return new(big.Int).SetBytes(parsed.To16()), IPTypeV6, nil
}

// ipValue is IPToInt for encoding a stored record, where the record's own ip
// type decides whether an IPv4-mapped address is kept in its 16-byte form
func ipValue(ip string, ipType uint8) (*big.Int, error) {
	if ip == "" || ip == ServingIPNone {
		return new(big.Int), nil
	}
	ret, parsedType, err := IPToInt(ip)
	if err != nil {
		return nil, err
	}
	if ipType == IPTypeV6 && parsedType == IPTypeV4 {
		return new(big.Int).SetBytes(net.ParseIP(ip).To16()), nil
	}
	return ret, nil
}
