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

package test_ledger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	test_ledger "github.com/blinklabs-io/gotensor/internal/test/ledger"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
	"github.com/blinklabs-io/gotensor/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, b byte) *keypair.Keypair {
	t.Helper()
	kp, err := keypair.NewFromSeed(bytes.Repeat([]byte{b}, keypair.SeedSize))
	require.NoError(t, err)
	return kp
}

func accountOf(t *testing.T, kp *keypair.Keypair) ledger.AccountID {
	t.Helper()
	id, err := ledger.NewAccountID(kp.PublicKey())
	require.NoError(t, err)
	return id
}

func TestVersionedReads(t *testing.T) {
	state := test_ledger.NewState()
	l := test_ledger.New(state)
	ctx := context.Background()
	require.NoError(t, state.SetStorageValue("SubtensorModule", "Tempo", []any{uint16(1)}, uint64(10)))
	state.AdvanceBlocks(2)
	require.NoError(t, state.SetStorageValue("SubtensorModule", "Tempo", []any{uint16(1)}, uint64(20)))
	testDefs := []struct {
		hash  string
		tempo uint64
	}{
		{hash: test_ledger.BlockHash(0), tempo: 10},
		{hash: test_ledger.BlockHash(1), tempo: 10},
		{hash: test_ledger.BlockHash(2), tempo: 20},
		{hash: "", tempo: 20},
	}
	for _, testDef := range testDefs {
		raw, err := l.QueryStorage(ctx, "SubtensorModule", "Tempo", []any{uint16(1)}, testDef.hash)
		require.NoError(t, err)
		v, err := ledger.DecodeValue("u16", raw)
		require.NoError(t, err)
		assert.Equal(t, testDef.tempo, v, "block hash %q", testDef.hash)
	}
	_, err := l.QueryStorage(ctx, "SubtensorModule", "Tempo", []any{uint16(1)}, test_ledger.BlockHash(3))
	assert.Error(t, err)
	// absent entries read as nil
	raw, err := l.QueryStorage(ctx, "SubtensorModule", "Tempo", []any{uint16(9)}, "")
	require.NoError(t, err)
	assert.Nil(t, raw)
	state.Reset()
	assert.Equal(t, uint64(0), state.Block())
	raw, err = l.QueryStorage(ctx, "SubtensorModule", "Tempo", []any{uint16(1)}, "")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestRegisterAndQuery(t *testing.T) {
	state := test_ledger.NewState()
	l := test_ledger.New(state)
	ctx := context.Background()
	coldkey := testKey(t, 1)
	hotkey := testKey(t, 2)
	require.NoError(t, state.CreateSubnet(3, accountOf(t, coldkey), 99, ledger.Balance(1000)))
	require.NoError(t, state.SetBalance(accountOf(t, coldkey), ledger.Balance(5000)))
	call, err := rpc.BurnedRegister(3, hotkey.Address())
	require.NoError(t, err)
	receipt, err := l.SubmitExtrinsic(ctx, call, coldkey, rpc.WaitInclusion)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(1), receipt.BlockNumber)
	assert.Equal(t, test_ledger.BlockHash(1), receipt.BlockHash)
	assert.Equal(t, uint64(1), state.Block())
	params, err := scale.Marshal(uint16(3))
	require.NoError(t, err)
	data, err := l.QueryRuntimeAPI(ctx, "NeuronInfoRuntimeApi", "get_neurons_lite", params, "")
	require.NoError(t, err)
	participants, err := ledger.DecodeParticipantsLite(data)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, hotkey.Address(), participants[0].Hotkey)
	assert.Equal(t, coldkey.Address(), participants[0].Coldkey)
	assert.True(t, participants[0].Active)
	assert.Equal(t, uint64(1), participants[0].LastUpdate)
	// the participant did not exist before the registering block
	data, err = l.QueryRuntimeAPI(ctx, "NeuronInfoRuntimeApi", "get_neurons_lite", params, test_ledger.BlockHash(0))
	require.NoError(t, err)
	participants, err = ledger.DecodeParticipantsLite(data)
	require.NoError(t, err)
	assert.Empty(t, participants)
	// registering again fails and leaves the block untouched
	_, err = l.SubmitExtrinsic(ctx, call, coldkey, rpc.WaitInclusion)
	assert.True(t, rpc.IsAlreadyRegistered(err))
	assert.Equal(t, uint64(1), state.Block())
	raw, err := l.QueryStorage(ctx, "System", "Account", []any{accountOf(t, coldkey)}, "")
	require.NoError(t, err)
	account, err := ledger.DecodeValue("AccountInfo", raw)
	require.NoError(t, err)
	free := account.(*ledger.Struct).Get("data").(*ledger.Struct).Get("free")
	assert.Equal(t, uint64(4000), free)
}

func TestRegisterErrors(t *testing.T) {
	state := test_ledger.NewState()
	l := test_ledger.New(state)
	ctx := context.Background()
	coldkey := testKey(t, 1)
	call, err := rpc.BurnedRegister(5, testKey(t, 2).Address())
	require.NoError(t, err)
	_, err = l.SubmitExtrinsic(ctx, call, coldkey, rpc.WaitNone)
	var extErr *rpc.ExtrinsicError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "SubNetworkDoesNotExist", extErr.Message)
	require.NoError(t, state.CreateSubnet(5, accountOf(t, coldkey), 10, ledger.Balance(1000)))
	_, err = l.SubmitExtrinsic(ctx, call, coldkey, rpc.WaitNone)
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "NotEnoughBalance", extErr.Message)
	assert.Equal(t, uint64(0), state.Block())
}

func TestStakeAndDelegates(t *testing.T) {
	state := test_ledger.NewState()
	l := test_ledger.New(state)
	ctx := context.Background()
	coldkey := testKey(t, 1)
	hotkey := testKey(t, 2)
	require.NoError(t, state.CreateSubnet(1, accountOf(t, coldkey), 10, 0))
	_, err := state.RegisterParticipant(1, accountOf(t, hotkey), accountOf(t, coldkey))
	require.NoError(t, err)
	require.NoError(t, state.SetDelegate(accountOf(t, hotkey), 11796))
	require.NoError(t, state.SetBalance(accountOf(t, coldkey), ledger.Balance(10_000)))
	call, err := rpc.AddStake(hotkey.Address(), ledger.Balance(2500))
	require.NoError(t, err)
	_, err = l.SubmitExtrinsic(ctx, call, coldkey, rpc.WaitFinalization)
	require.NoError(t, err)
	params, err := scale.Marshal(accountOf(t, coldkey))
	require.NoError(t, err)
	data, err := l.QueryRuntimeAPI(ctx, "StakeInfoRuntimeApi", "get_stake_info_for_coldkey", params, "")
	require.NoError(t, err)
	infos, err := ledger.DecodeStakeInfos(data)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, hotkey.Address(), infos[0].Hotkey)
	assert.Equal(t, ledger.Balance(2500), infos[0].Stake)
	data, err = l.QueryRuntimeAPI(ctx, "DelegateInfoRuntimeApi", "get_delegates", nil, "")
	require.NoError(t, err)
	delegates, err := ledger.DecodeDelegates(data)
	require.NoError(t, err)
	require.Len(t, delegates, 1)
	assert.Equal(t, ledger.Balance(2500), delegates[0].TotalStake)
	assert.Equal(t, []uint16{1}, delegates[0].Registrations)
	assert.Equal(t, coldkey.Address(), delegates[0].Owner)
	remove, err := rpc.RemoveStake(hotkey.Address(), ledger.Balance(3000))
	require.NoError(t, err)
	_, err = l.SubmitExtrinsic(ctx, remove, coldkey, rpc.WaitNone)
	assert.Error(t, err)
}

func TestFailNextAndClose(t *testing.T) {
	state := test_ledger.NewState()
	l := test_ledger.New(state)
	ctx := context.Background()
	injected := errors.New("connection reset")
	state.FailNext(test_ledger.MethodGetCurrentBlock, 2, injected)
	for range 2 {
		_, err := l.GetCurrentBlock(ctx)
		assert.ErrorIs(t, err, injected)
	}
	_, err := l.GetCurrentBlock(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, l.CallCount(test_ledger.MethodGetCurrentBlock))
	deposit, err := l.QueryConstant(ctx, "Balances", "ExistentialDeposit", "")
	require.NoError(t, err)
	assert.Equal(t, test.DecodeHexString("f401000000000000"), deposit)
	require.NoError(t, l.Close())
	assert.True(t, l.Closed())
	_, err = l.GetCurrentBlock(ctx)
	assert.ErrorIs(t, err, rpc.ErrClosed)
}
