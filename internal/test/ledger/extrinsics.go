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
	"errors"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
	"github.com/blinklabs-io/gotensor/scale"
)

var (
	errNotEnoughBalance     = errors.New("NotEnoughBalance")
	errHotkeyNotExists      = errors.New("HotKeyAccountNotExists")
	errNotEnoughStake       = errors.New("NotEnoughStakeToWithdraw")
	errWeightSizeMismatch   = errors.New("WeightVecNotEqualSize")
	errInvalidUID           = errors.New("UidVecContainInvalidOne")
	errExistentialDeposit   = errors.New("ExistentialDeposit")
	errMalformedCall        = errors.New("malformed call arguments")
)

func callArg[T any](call rpc.Call, idx int) (T, error) {
	var zero T
	if idx >= len(call.Args) {
		return zero, fmt.Errorf("%w: %s missing argument %d", errMalformedCall, call, idx)
	}
	ret, ok := call.Args[idx].(T)
	if !ok {
		return zero, fmt.Errorf(
			"%w: %s argument %d is %T, expected %T",
			errMalformedCall,
			call,
			idx,
			call.Args[idx],
			zero,
		)
	}
	return ret, nil
}

// apply executes a call signed by signer. All writes land in the next block,
// which becomes current only when the call succeeds
func (s *State) apply(call rpc.Call, signer ledger.AccountID) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	block := s.block + 1
	var err error
	switch call.String() {
	case "SubtensorModule.burned_register":
		err = s.applyBurnedRegister(block, call, signer)
	case "SubtensorModule.serve_axon":
		err = s.applyServeAxon(block, call, signer)
	case "SubtensorModule.set_weights":
		err = s.applySetWeights(block, call, signer)
	case "SubtensorModule.add_stake":
		err = s.applyStake(block, call, signer, true)
	case "SubtensorModule.remove_stake":
		err = s.applyStake(block, call, signer, false)
	case "Balances.transfer_allow_death":
		err = s.applyTransfer(block, call, signer, false)
	case "Balances.transfer_keep_alive":
		err = s.applyTransfer(block, call, signer, true)
	default:
		err = fmt.Errorf("%w: %s", rpc.ErrUnknownCall, call)
	}
	if err != nil {
		s.rollback(block)
		return 0, err
	}
	s.block = block
	return block, nil
}

// rollback discards every write made at block
func (s *State) rollback(block uint64) {
	for key, history := range s.storage {
		n := len(history)
		if n > 0 && history[n-1].block == block {
			if n == 1 {
				delete(s.storage, key)
				continue
			}
			s.storage[key] = history[:n-1]
		}
	}
}

func (s *State) applyBurnedRegister(block uint64, call rpc.Call, coldkey ledger.AccountID) error {
	netuid, err := callArg[uint16](call, 0)
	if err != nil {
		return err
	}
	hotkey, err := callArg[ledger.AccountID](call, 1)
	if err != nil {
		return err
	}
	exists, err := s.subnetExists(block, netuid)
	if err != nil {
		return err
	}
	if !exists {
		return errNoSubnet
	}
	if _, registered, err := s.uidFor(block, netuid, hotkey); err != nil {
		return err
	} else if registered {
		return errAlreadyRegistered
	}
	burn, err := s.readUint(block, subtensor, "Burn", netuid)
	if err != nil {
		return err
	}
	free, err := s.freeBalance(block, coldkey)
	if err != nil {
		return err
	}
	if free < burn {
		return errNotEnoughBalance
	}
	if err := s.setFreeBalance(block, coldkey, free-burn); err != nil {
		return err
	}
	_, err = s.register(block, netuid, hotkey, coldkey)
	return err
}

func (s *State) applyServeAxon(block uint64, call rpc.Call, hotkey ledger.AccountID) error {
	netuid, err := callArg[uint16](call, 0)
	if err != nil {
		return err
	}
	version, err := callArg[uint32](call, 1)
	if err != nil {
		return err
	}
	ip, err := callArg[*big.Int](call, 2)
	if err != nil {
		return err
	}
	port, err := callArg[uint16](call, 3)
	if err != nil {
		return err
	}
	ipType, err := callArg[uint8](call, 4)
	if err != nil {
		return err
	}
	protocol, err := callArg[uint8](call, 5)
	if err != nil {
		return err
	}
	if _, registered, err := s.uidFor(block, netuid, hotkey); err != nil {
		return err
	} else if !registered {
		return errNotRegistered
	}
	return s.writeValue(
		block,
		&ledger.Struct{Name: "AxonInfo", Fields: []ledger.Field{
			{Name: "block", Value: block},
			{Name: "version", Value: uint64(version)},
			{Name: "ip", Value: ip},
			{Name: "port", Value: uint64(port)},
			{Name: "ip_type", Value: uint64(ipType)},
			{Name: "protocol", Value: uint64(protocol)},
			{Name: "placeholder1", Value: uint64(0)},
			{Name: "placeholder2", Value: uint64(0)},
		}},
		subtensor,
		"Axons",
		netuid,
		hotkey,
	)
}

func (s *State) applySetWeights(block uint64, call rpc.Call, hotkey ledger.AccountID) error {
	netuid, err := callArg[uint16](call, 0)
	if err != nil {
		return err
	}
	uids, err := callArg[[]uint16](call, 1)
	if err != nil {
		return err
	}
	weights, err := callArg[[]uint16](call, 2)
	if err != nil {
		return err
	}
	uid, registered, err := s.uidFor(block, netuid, hotkey)
	if err != nil {
		return err
	}
	if !registered {
		return errNotRegistered
	}
	if len(uids) != len(weights) {
		return errWeightSizeMismatch
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return err
	}
	row := make([]ledger.WeightPair, 0, len(uids))
	for idx, target := range uids {
		if uint64(target) >= n {
			return errInvalidUID
		}
		row = append(row, ledger.WeightPair{UID: target, Value: weights[idx]})
	}
	if err := s.writeValue(block, weightRowValue(row), subtensor, "Weights", netuid, uid); err != nil {
		return err
	}
	return s.setVectorElem(block, "LastUpdate", netuid, uid, block, uint64(0))
}

func (s *State) applyStake(block uint64, call rpc.Call, coldkey ledger.AccountID, add bool) error {
	hotkey, err := callArg[ledger.AccountID](call, 0)
	if err != nil {
		return err
	}
	amount, err := callArg[uint64](call, 1)
	if err != nil {
		return err
	}
	owner, err := s.readAccount(block, subtensor, "Owner", hotkey)
	if err != nil {
		return err
	}
	if owner == nil {
		return errHotkeyNotExists
	}
	free, err := s.freeBalance(block, coldkey)
	if err != nil {
		return err
	}
	if add {
		if free < amount {
			return errNotEnoughBalance
		}
		if err := s.setFreeBalance(block, coldkey, free-amount); err != nil {
			return err
		}
		return s.adjustStake(block, hotkey, coldkey, int64(amount))
	}
	staked, err := s.readUint(block, subtensor, "Stake", hotkey, coldkey)
	if err != nil {
		return err
	}
	if staked < amount {
		return errNotEnoughStake
	}
	if err := s.setFreeBalance(block, coldkey, free+amount); err != nil {
		return err
	}
	return s.adjustStake(block, hotkey, coldkey, -int64(amount))
}

func (s *State) applyTransfer(block uint64, call rpc.Call, source ledger.AccountID, keepAlive bool) error {
	dest, err := callArg[rpc.MultiAddress](call, 0)
	if err != nil {
		return err
	}
	value, err := callArg[scale.Compact](call, 1)
	if err != nil {
		return err
	}
	amount := uint64(value)
	free, err := s.freeBalance(block, source)
	if err != nil {
		return err
	}
	if free < amount {
		return errNotEnoughBalance
	}
	if keepAlive && free-amount < DefaultExistentialDeposit {
		return errExistentialDeposit
	}
	if err := s.setFreeBalance(block, source, free-amount); err != nil {
		return err
	}
	destFree, err := s.freeBalance(block, ledger.AccountID(dest))
	if err != nil {
		return err
	}
	return s.setFreeBalance(block, ledger.AccountID(dest), destFree+amount)
}
