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

package test_ledger

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
)

const (
	subtensor = "SubtensorModule"

	// DefaultExistentialDeposit is the value of Balances.ExistentialDeposit
	DefaultExistentialDeposit = 500
)

var (
	errNotRegistered     = errors.New("HotKeyNotRegisteredInSubNet")
	errAlreadyRegistered = errors.New("HotKeyAlreadyRegisteredInSubNet")
	errNoSubnet          = errors.New("SubNetworkDoesNotExist")
)

// statVectors lists the per-uid vector items with the value a new
// participant starts with
var statVectors = []struct {
	item    string
	initial ledger.Value
}{
	{"Active", true},
	{"Rank", uint64(0)},
	{"Trust", uint64(0)},
	{"ValidatorTrust", uint64(0)},
	{"Consensus", uint64(0)},
	{"Incentive", uint64(0)},
	{"Dividends", uint64(0)},
	{"PruningScores", uint64(0)},
	{"Emission", uint64(0)},
	{"LastUpdate", uint64(0)},
	{"ValidatorPermit", false},
}

type versionedValue struct {
	block uint64
	// nil marks a removed entry
	value []byte
}

// State is the world state behind a mock ledger. Every write is recorded
// with the block it happened at, and reads pinned to a block see the latest
// write at or before it
type State struct {
	mutex     sync.RWMutex
	block     uint64
	storage   map[string][]versionedValue
	constants map[string][]byte
	failures  map[string][]error
}

// NewState returns an empty state at block 0
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset clears all state and rewinds to block 0
func (s *State) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.block = 0
	s.storage = make(map[string][]versionedValue)
	s.failures = make(map[string][]error)
	deposit := make([]byte, 8)
	binary.LittleEndian.PutUint64(deposit, DefaultExistentialDeposit)
	s.constants = map[string][]byte{
		"Balances.ExistentialDeposit": deposit,
	}
}

// Block returns the current block number
func (s *State) Block() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.block
}

// AdvanceBlocks moves the chain forward and returns the new block number
func (s *State) AdvanceBlocks(count uint64) uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.block += count
	return s.block
}

// FailNext makes the next count calls to the named backend method fail with
// err
func (s *State) FailNext(method string, count int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for range count {
		s.failures[method] = append(s.failures[method], err)
	}
}

func (s *State) takeFailure(method string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	pending := s.failures[method]
	if len(pending) == 0 {
		return nil
	}
	s.failures[method] = pending[1:]
	return pending[0]
}

// SetConstant sets the raw value of a runtime constant
func (s *State) SetConstant(module string, name string, value []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.constants[module+"."+name] = value
}

func (s *State) constant(module string, name string) ([]byte, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ret, ok := s.constants[module+"."+name]
	return ret, ok
}

// SetStorage writes a raw storage value at the current block. A nil value
// removes the entry
func (s *State) SetStorage(module string, item string, params []any, value []byte) error {
	key, err := storageKey(module, item, params...)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.put(key, s.block, value)
	return nil
}

// SetStorageValue encodes and writes a storage value at the current block
func (s *State) SetStorageValue(module string, item string, params []any, v ledger.Value) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeValue(s.block, v, module, item, params...)
}

func storageKey(module string, item string, params ...any) (string, error) {
	key, err := rpc.StorageKey(module, item, params...)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func (s *State) put(key string, block uint64, value []byte) {
	history := s.storage[key]
	if n := len(history); n > 0 && history[n-1].block == block {
		history[n-1].value = value
		return
	}
	s.storage[key] = append(history, versionedValue{block: block, value: value})
}

func (s *State) get(key string, block uint64) []byte {
	history := s.storage[key]
	for idx := len(history) - 1; idx >= 0; idx-- {
		if history[idx].block <= block {
			return history[idx].value
		}
	}
	return nil
}

func (s *State) readRaw(block uint64, module string, item string, params ...any) ([]byte, error) {
	key, err := storageKey(module, item, params...)
	if err != nil {
		return nil, err
	}
	return s.get(key, block), nil
}

// readValue decodes a storage value as of block, falling back to the item's
// default
func (s *State) readValue(block uint64, module string, item string, params ...any) (ledger.Value, error) {
	entry, err := rpc.LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	raw, err := s.readRaw(block, module, item, params...)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = entry.Default
	}
	if raw == nil {
		return nil, nil
	}
	return ledger.DecodeValue(entry.Value, raw)
}

func (s *State) readUint(block uint64, module string, item string, params ...any) (uint64, error) {
	v, err := s.readValue(block, module, item, params...)
	if err != nil {
		return 0, err
	}
	n, _ := v.(uint64)
	return n, nil
}

func (s *State) readAccount(block uint64, module string, item string, params ...any) (*ledger.AccountID, error) {
	v, err := s.readValue(block, module, item, params...)
	if err != nil || v == nil {
		return nil, err
	}
	raw, _ := v.([]byte)
	id, err := ledger.NewAccountID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *State) writeValue(block uint64, v ledger.Value, module string, item string, params ...any) error {
	entry, err := rpc.LookupStorage(module, item)
	if err != nil {
		return err
	}
	key, err := storageKey(module, item, params...)
	if err != nil {
		return err
	}
	if v == nil {
		s.put(key, block, nil)
		return nil
	}
	data, err := ledger.EncodeValue(entry.Value, v)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", module, item, err)
	}
	s.put(key, block, data)
	return nil
}

// mapEntries returns the live entries of a storage map as of block, ordered
// by key
func (s *State) mapEntries(block uint64, module string, item string, params ...any) ([]rpc.MapEntry, error) {
	entry, err := rpc.LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	prefix, err := rpc.StorageKey(module, item, params...)
	if err != nil {
		return nil, err
	}
	prefixHex := hex.EncodeToString(prefix)
	var keys []string
	for key := range s.storage {
		if strings.HasPrefix(key, prefixHex) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	var ret []rpc.MapEntry
	for _, key := range keys {
		value := s.get(key, block)
		if value == nil {
			continue
		}
		fullKey, err := hex.DecodeString(key)
		if err != nil {
			return nil, err
		}
		mapKey, err := rpc.SplitMapKey(entry, fullKey, len(prefix))
		if err != nil {
			return nil, err
		}
		ret = append(ret, rpc.MapEntry{Key: mapKey, Value: append([]byte{}, value...)})
	}
	return ret, nil
}

// setVectorElem sets one element of a per-uid vector, growing it as needed
func (s *State) setVectorElem(block uint64, item string, netuid uint16, idx uint16, v ledger.Value, fill ledger.Value) error {
	current, err := s.readValue(block, subtensor, item, netuid)
	if err != nil {
		return err
	}
	items, _ := current.([]ledger.Value)
	items = append([]ledger.Value{}, items...)
	for len(items) <= int(idx) {
		items = append(items, fill)
	}
	items[idx] = v
	return s.writeValue(block, items, subtensor, item, netuid)
}

func zeroOf(v ledger.Value) ledger.Value {
	if _, ok := v.(bool); ok {
		return false
	}
	return uint64(0)
}

func vectorElem(v ledger.Value, idx uint16) ledger.Value {
	items, _ := v.([]ledger.Value)
	if int(idx) >= len(items) {
		return nil
	}
	return items[idx]
}

func accountInfoValue(free uint64) ledger.Value {
	return &ledger.Struct{Name: "AccountInfo", Fields: []ledger.Field{
		{Name: "nonce", Value: uint64(0)},
		{Name: "consumers", Value: uint64(0)},
		{Name: "providers", Value: uint64(1)},
		{Name: "sufficients", Value: uint64(0)},
		{Name: "data", Value: &ledger.Struct{Name: "AccountData", Fields: []ledger.Field{
			{Name: "free", Value: free},
			{Name: "reserved", Value: uint64(0)},
			{Name: "frozen", Value: uint64(0)},
			{Name: "flags", Value: new(big.Int)},
		}}},
	}}
}

func (s *State) freeBalance(block uint64, account ledger.AccountID) (uint64, error) {
	v, err := s.readValue(block, "System", "Account", account)
	if err != nil || v == nil {
		return 0, err
	}
	info, _ := v.(*ledger.Struct)
	data, _ := info.Get("data").(*ledger.Struct)
	if data == nil {
		return 0, nil
	}
	free, _ := data.Get("free").(uint64)
	return free, nil
}

func (s *State) setFreeBalance(block uint64, account ledger.AccountID, free uint64) error {
	return s.writeValue(block, accountInfoValue(free), "System", "Account", account)
}

// SetBalance sets the free balance of an account
func (s *State) SetBalance(account ledger.AccountID, free ledger.Balance) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.setFreeBalance(s.block, account, free.Rao())
}

// CreateSubnet adds a subnetwork
func (s *State) CreateSubnet(netuid uint16, owner ledger.AccountID, tempo uint16, burn ledger.Balance) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	block := s.block
	added, err := s.readValue(block, subtensor, "NetworksAdded", netuid)
	if err != nil {
		return err
	}
	if exists, _ := added.(bool); !exists {
		total, err := s.readUint(block, subtensor, "TotalNetworks")
		if err != nil {
			return err
		}
		if err := s.writeValue(block, total+1, subtensor, "TotalNetworks"); err != nil {
			return err
		}
	}
	writes := []struct {
		item string
		v    ledger.Value
	}{
		{"NetworksAdded", true},
		{"Tempo", uint64(tempo)},
		{"Burn", burn.Rao()},
		{"SubnetOwner", owner[:]},
	}
	for _, w := range writes {
		if err := s.writeValue(block, w.v, subtensor, w.item, netuid); err != nil {
			return err
		}
	}
	return nil
}

// RegisterParticipant registers a hotkey on a subnetwork and returns its uid
func (s *State) RegisterParticipant(netuid uint16, hotkey ledger.AccountID, coldkey ledger.AccountID) (uint16, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.register(s.block, netuid, hotkey, coldkey)
}

func (s *State) subnetExists(block uint64, netuid uint16) (bool, error) {
	v, err := s.readValue(block, subtensor, "NetworksAdded", netuid)
	if err != nil {
		return false, err
	}
	exists, _ := v.(bool)
	return exists, nil
}

func (s *State) uidFor(block uint64, netuid uint16, hotkey ledger.AccountID) (uint16, bool, error) {
	v, err := s.readValue(block, subtensor, "Uids", netuid, hotkey)
	if err != nil || v == nil {
		return 0, false, err
	}
	uid, _ := v.(uint64)
	return uint16(uid), true, nil
}

func (s *State) register(block uint64, netuid uint16, hotkey ledger.AccountID, coldkey ledger.AccountID) (uint16, error) {
	exists, err := s.subnetExists(block, netuid)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errNoSubnet
	}
	if _, registered, err := s.uidFor(block, netuid, hotkey); err != nil {
		return 0, err
	} else if registered {
		return 0, errAlreadyRegistered
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return 0, err
	}
	uid := uint16(n)
	if err := s.writeValue(block, hotkey[:], subtensor, "Keys", netuid, uid); err != nil {
		return 0, err
	}
	if err := s.writeValue(block, uint64(uid), subtensor, "Uids", netuid, hotkey); err != nil {
		return 0, err
	}
	owner, err := s.readAccount(block, subtensor, "Owner", hotkey)
	if err != nil {
		return 0, err
	}
	if owner == nil {
		if err := s.writeValue(block, coldkey[:], subtensor, "Owner", hotkey); err != nil {
			return 0, err
		}
	}
	if err := s.writeValue(block, n+1, subtensor, "SubnetworkN", netuid); err != nil {
		return 0, err
	}
	for _, vec := range statVectors {
		initial := vec.initial
		if vec.item == "LastUpdate" {
			initial = block
		}
		if err := s.setVectorElem(block, vec.item, netuid, uid, initial, zeroOf(vec.initial)); err != nil {
			return 0, err
		}
	}
	return uid, nil
}

// ParticipantStats holds the per-uid values computed by consensus. Fractions
// are in their raw u16 form
type ParticipantStats struct {
	Active          bool
	Rank            uint16
	Trust           uint16
	ValidatorTrust  uint16
	Consensus       uint16
	Incentive       uint16
	Dividends       uint16
	PruningScore    uint16
	Emission        uint64
	LastUpdate      uint64
	ValidatorPermit bool
}

// SetParticipantStats overwrites the consensus values of a uid
func (s *State) SetParticipantStats(netuid uint16, uid uint16, stats ParticipantStats) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	values := map[string]ledger.Value{
		"Active":          stats.Active,
		"Rank":            uint64(stats.Rank),
		"Trust":           uint64(stats.Trust),
		"ValidatorTrust":  uint64(stats.ValidatorTrust),
		"Consensus":       uint64(stats.Consensus),
		"Incentive":       uint64(stats.Incentive),
		"Dividends":       uint64(stats.Dividends),
		"PruningScores":   uint64(stats.PruningScore),
		"Emission":        stats.Emission,
		"LastUpdate":      stats.LastUpdate,
		"ValidatorPermit": stats.ValidatorPermit,
	}
	for _, vec := range statVectors {
		if err := s.setVectorElem(s.block, vec.item, netuid, uid, values[vec.item], zeroOf(vec.initial)); err != nil {
			return err
		}
	}
	return nil
}

func axonValue(block uint64, info ledger.EndpointInfo) (ledger.Value, error) {
	ip := new(big.Int)
	if info.IP != "" && info.IP != ledger.ServingIPNone {
		var err error
		ip, _, err = ledger.IPToInt(info.IP)
		if err != nil {
			return nil, err
		}
	}
	return &ledger.Struct{Name: "AxonInfo", Fields: []ledger.Field{
		{Name: "block", Value: block},
		{Name: "version", Value: uint64(info.Version)},
		{Name: "ip", Value: ip},
		{Name: "port", Value: uint64(info.Port)},
		{Name: "ip_type", Value: uint64(info.IPType)},
		{Name: "protocol", Value: uint64(info.Protocol)},
		{Name: "placeholder1", Value: uint64(info.Placeholder1)},
		{Name: "placeholder2", Value: uint64(info.Placeholder2)},
	}}, nil
}

// SetEndpoint announces the serving endpoint of a hotkey
func (s *State) SetEndpoint(netuid uint16, hotkey ledger.AccountID, info ledger.EndpointInfo) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	v, err := axonValue(s.block, info)
	if err != nil {
		return err
	}
	return s.writeValue(s.block, v, subtensor, "Axons", netuid, hotkey)
}

func weightRowValue(row []ledger.WeightPair) ledger.Value {
	ret := make([]ledger.Value, 0, len(row))
	for _, pair := range row {
		ret = append(ret, []ledger.Value{uint64(pair.UID), uint64(pair.Value)})
	}
	return ret
}

// SetWeights sets the weight row of a uid
func (s *State) SetWeights(netuid uint16, uid uint16, row []ledger.WeightPair) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeValue(s.block, weightRowValue(row), subtensor, "Weights", netuid, uid)
}

// SetBonds sets the bond row of a uid
func (s *State) SetBonds(netuid uint16, uid uint16, row []ledger.WeightPair) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeValue(s.block, weightRowValue(row), subtensor, "Bonds", netuid, uid)
}

// SetStake sets the stake a coldkey holds on a hotkey
func (s *State) SetStake(hotkey ledger.AccountID, coldkey ledger.AccountID, amount ledger.Balance) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	current, err := s.readUint(s.block, subtensor, "Stake", hotkey, coldkey)
	if err != nil {
		return err
	}
	return s.adjustStake(s.block, hotkey, coldkey, int64(amount.Rao())-int64(current))
}

func (s *State) adjustStake(block uint64, hotkey ledger.AccountID, coldkey ledger.AccountID, delta int64) error {
	current, err := s.readUint(block, subtensor, "Stake", hotkey, coldkey)
	if err != nil {
		return err
	}
	total, err := s.readUint(block, subtensor, "TotalHotkeyStake", hotkey)
	if err != nil {
		return err
	}
	if err := s.writeValue(block, uint64(int64(current)+delta), subtensor, "Stake", hotkey, coldkey); err != nil {
		return err
	}
	return s.writeValue(block, uint64(int64(total)+delta), subtensor, "TotalHotkeyStake", hotkey)
}

// SetDelegate marks a hotkey as a delegate with the given take
func (s *State) SetDelegate(hotkey ledger.AccountID, take uint16) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeValue(s.block, uint64(take), subtensor, "Delegates", hotkey)
}

type stakeEntry struct {
	hotkey  ledger.AccountID
	coldkey ledger.AccountID
	amount  uint64
}

// stakeEntries returns every non-zero stake as of block. Stake keys are the
// item prefix, the blake2_128 hash and raw hotkey, then the raw coldkey
func (s *State) stakeEntries(block uint64) ([]stakeEntry, error) {
	prefix, err := rpc.StorageKey(subtensor, "Stake")
	if err != nil {
		return nil, err
	}
	prefixHex := hex.EncodeToString(prefix)
	var keys []string
	for key := range s.storage {
		if strings.HasPrefix(key, prefixHex) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	var ret []stakeEntry
	for _, key := range keys {
		value := s.get(key, block)
		if len(value) != 8 {
			continue
		}
		amount := binary.LittleEndian.Uint64(value)
		if amount == 0 {
			continue
		}
		raw, err := hex.DecodeString(key)
		if err != nil {
			return nil, err
		}
		rest := raw[len(prefix)+16:]
		if len(rest) != 2*ledger.AccountIDSize {
			continue
		}
		entry := stakeEntry{amount: amount}
		copy(entry.hotkey[:], rest[:ledger.AccountIDSize])
		copy(entry.coldkey[:], rest[ledger.AccountIDSize:])
		ret = append(ret, entry)
	}
	return ret, nil
}
