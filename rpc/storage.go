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

package rpc

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gotensor/scale"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Hasher is the function applied to a storage map key parameter
type Hasher uint8

const (
	HasherIdentity Hasher = iota
	HasherTwox64Concat
	HasherBlake2_128Concat
)

// prefixLen returns the number of hash bytes preceding the raw parameter
func (h Hasher) prefixLen() int {
	switch h {
	case HasherTwox64Concat:
		return 8
	case HasherBlake2_128Concat:
		return 16
	}
	return 0
}

// Hash applies the hasher to an encoded key parameter
func (h Hasher) Hash(data []byte) []byte {
	switch h {
	case HasherTwox64Concat:
		return append(twox64(data), data...)
	case HasherBlake2_128Concat:
		return append(blake2_128(data), data...)
	}
	return append([]byte{}, data...)
}

// StorageKeyDef describes one key parameter of a storage map
type StorageKeyDef struct {
	Hasher Hasher
	Type   string
}

// StorageEntry describes the layout of a storage item. Value and key types
// are type strings understood by ledger.DecodeValue. Default is the encoded
// value of an unset item, or nil if unset items have no value
type StorageEntry struct {
	Module  string
	Item    string
	Keys    []StorageKeyDef
	Value   string
	Default []byte
}

var (
	netuidKey  = StorageKeyDef{Hasher: HasherIdentity, Type: "u16"}
	uidKey     = StorageKeyDef{Hasher: HasherIdentity, Type: "u16"}
	accountKey = StorageKeyDef{Hasher: HasherBlake2_128Concat, Type: "AccountId"}
	emptyVec   = []byte{0x00}
	zeroU16    = []byte{0x00, 0x00}
	zeroU64    = make([]byte, 8)
)

var storageLayout = map[string]StorageEntry{}

func init() {
	for _, entry := range []StorageEntry{
		{Module: "System", Item: "Account", Keys: []StorageKeyDef{accountKey}, Value: "AccountInfo"},
		{Module: "SubtensorModule", Item: "TotalNetworks", Value: "u16", Default: zeroU16},
		{Module: "SubtensorModule", Item: "NetworksAdded", Keys: []StorageKeyDef{netuidKey}, Value: "bool", Default: []byte{0x00}},
		{Module: "SubtensorModule", Item: "SubnetworkN", Keys: []StorageKeyDef{netuidKey}, Value: "u16", Default: zeroU16},
		{Module: "SubtensorModule", Item: "Tempo", Keys: []StorageKeyDef{netuidKey}, Value: "u16", Default: zeroU16},
		{Module: "SubtensorModule", Item: "Keys", Keys: []StorageKeyDef{netuidKey, uidKey}, Value: "AccountId"},
		{Module: "SubtensorModule", Item: "Uids", Keys: []StorageKeyDef{netuidKey, accountKey}, Value: "u16"},
		{Module: "SubtensorModule", Item: "Owner", Keys: []StorageKeyDef{accountKey}, Value: "AccountId"},
		{Module: "SubtensorModule", Item: "TotalHotkeyStake", Keys: []StorageKeyDef{{Hasher: HasherIdentity, Type: "AccountId"}}, Value: "u64", Default: zeroU64},
		{Module: "SubtensorModule", Item: "Stake", Keys: []StorageKeyDef{accountKey, {Hasher: HasherIdentity, Type: "AccountId"}}, Value: "u64", Default: zeroU64},
		{Module: "SubtensorModule", Item: "Active", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<bool>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Rank", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Trust", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "ValidatorTrust", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Consensus", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Incentive", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Dividends", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "PruningScores", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u16>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Emission", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u64>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "LastUpdate", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<u64>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "ValidatorPermit", Keys: []StorageKeyDef{netuidKey}, Value: "Vec<bool>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Weights", Keys: []StorageKeyDef{netuidKey, uidKey}, Value: "Vec<(u16, u16)>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Bonds", Keys: []StorageKeyDef{netuidKey, uidKey}, Value: "Vec<(u16, u16)>", Default: emptyVec},
		{Module: "SubtensorModule", Item: "Axons", Keys: []StorageKeyDef{netuidKey, accountKey}, Value: "AxonInfo"},
		{Module: "SubtensorModule", Item: "Prometheus", Keys: []StorageKeyDef{netuidKey, accountKey}, Value: "PrometheusInfo"},
		{Module: "SubtensorModule", Item: "Burn", Keys: []StorageKeyDef{netuidKey}, Value: "u64", Default: zeroU64},
		{Module: "SubtensorModule", Item: "SubnetOwner", Keys: []StorageKeyDef{netuidKey}, Value: "AccountId"},
		{Module: "SubtensorModule", Item: "Delegates", Keys: []StorageKeyDef{accountKey}, Value: "u16"},
	} {
		storageLayout[entry.Module+"."+entry.Item] = entry
	}
}

// LookupStorage returns the layout of a storage item
func LookupStorage(module string, item string) (StorageEntry, error) {
	entry, ok := storageLayout[module+"."+item]
	if !ok {
		return StorageEntry{}, fmt.Errorf("%w: %s.%s", ErrUnknownStorage, module, item)
	}
	return entry, nil
}

// StorageKey builds the raw key for a storage item. Fewer parameters than the
// item has keys yields the prefix shared by all matching map entries
func StorageKey(module string, item string, params ...any) ([]byte, error) {
	entry, err := LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	if len(params) > len(entry.Keys) {
		return nil, fmt.Errorf(
			"%s.%s takes %d key parameters, got %d",
			module,
			item,
			len(entry.Keys),
			len(params),
		)
	}
	ret := append(twox128([]byte(module)), twox128([]byte(item))...)
	for idx, param := range params {
		encoded, err := scale.Marshal(param)
		if err != nil {
			return nil, fmt.Errorf("%s.%s key %d: %w", module, item, idx, err)
		}
		ret = append(ret, entry.Keys[idx].Hasher.Hash(encoded)...)
	}
	return ret, nil
}

// StorageKeyHex is StorageKey in 0x-prefixed hex form
func StorageKeyHex(module string, item string, params ...any) (string, error) {
	key, err := StorageKey(module, item, params...)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(key), nil
}

// SplitMapKey returns the encoded open key parameter of a full map key, given
// the length of the prefix built from the leading parameters. The open key
// must be the last key of the entry
func SplitMapKey(entry StorageEntry, fullKey []byte, prefixLen int) ([]byte, error) {
	if len(entry.Keys) == 0 {
		return nil, fmt.Errorf("%s.%s is not a map", entry.Module, entry.Item)
	}
	hasher := entry.Keys[len(entry.Keys)-1].Hasher
	start := prefixLen + hasher.prefixLen()
	if start > len(fullKey) {
		return nil, fmt.Errorf("storage key too short for %s.%s", entry.Module, entry.Item)
	}
	return append([]byte{}, fullKey[start:]...), nil
}

func twox64(data []byte) []byte {
	ret := make([]byte, 8)
	binary.LittleEndian.PutUint64(ret, xxhash.Sum64(data))
	return ret
}

func twox128(data []byte) []byte {
	ret := make([]byte, 16)
	for seed := range uint64(2) {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(ret[seed*8:], d.Sum64())
	}
	return ret
}

func blake2_128(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}
