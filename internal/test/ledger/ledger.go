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

// Package test_ledger provides a deterministic in-memory chain that
// implements rpc.Backend, for use by tests throughout the module
package test_ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
)

// Compile-time check that Ledger implements rpc.Backend
var _ rpc.Backend = (*Ledger)(nil)

// Backend method names, usable with State.FailNext and Ledger.CallCount
const (
	MethodQueryStorage    = "QueryStorage"
	MethodQueryMap        = "QueryMap"
	MethodQueryConstant   = "QueryConstant"
	MethodQueryRuntimeAPI = "QueryRuntimeAPI"
	MethodSubmitExtrinsic = "SubmitExtrinsic"
	MethodGetBlockHash    = "GetBlockHash"
	MethodGetCurrentBlock = "GetCurrentBlock"
)

// BlockHash returns the hash the mock ledger reports for a block number
func BlockHash(block uint64) string {
	return fmt.Sprintf("0x%064x", block)
}

// Ledger serves a State through the rpc.Backend interface. Tests should
// construct it with New and populate the state with the State helpers
type Ledger struct {
	state      *State
	closed     atomic.Bool
	callsMutex sync.Mutex
	calls      map[string]int
}

// New returns a mock ledger backed by state. A nil state starts empty
func New(state *State) *Ledger {
	if state == nil {
		state = NewState()
	}
	return &Ledger{
		state: state,
		calls: make(map[string]int),
	}
}

// State returns the underlying state
func (l *Ledger) State() *State {
	return l.state
}

// CallCount returns how many times a backend method has been invoked
func (l *Ledger) CallCount(method string) int {
	l.callsMutex.Lock()
	defer l.callsMutex.Unlock()
	return l.calls[method]
}

// Closed reports whether Close has been called
func (l *Ledger) Closed() bool {
	return l.closed.Load()
}

func (l *Ledger) begin(ctx context.Context, method string) error {
	if l.closed.Load() {
		return rpc.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.callsMutex.Lock()
	l.calls[method]++
	l.callsMutex.Unlock()
	return l.state.takeFailure(method)
}

// resolveBlock maps a block hash to a block number. An empty hash selects
// the current block
func (l *Ledger) resolveBlock(blockHash string) (uint64, error) {
	current := l.state.Block()
	if blockHash == "" {
		return current, nil
	}
	block, err := strconv.ParseUint(strings.TrimPrefix(blockHash, "0x"), 16, 64)
	if err != nil || block > current {
		return 0, &rpc.RPCError{Code: -32000, Message: "unknown block " + blockHash}
	}
	return block, nil
}

func (l *Ledger) QueryStorage(
	ctx context.Context,
	module string,
	item string,
	params []any,
	blockHash string,
) ([]byte, error) {
	if err := l.begin(ctx, MethodQueryStorage); err != nil {
		return nil, err
	}
	block, err := l.resolveBlock(blockHash)
	if err != nil {
		return nil, err
	}
	l.state.mutex.RLock()
	defer l.state.mutex.RUnlock()
	raw, err := l.state.readRaw(block, module, item, params...)
	if err != nil || raw == nil {
		return nil, err
	}
	return append([]byte{}, raw...), nil
}

func (l *Ledger) QueryMap(
	ctx context.Context,
	module string,
	item string,
	params []any,
	blockHash string,
) ([]rpc.MapEntry, error) {
	if err := l.begin(ctx, MethodQueryMap); err != nil {
		return nil, err
	}
	block, err := l.resolveBlock(blockHash)
	if err != nil {
		return nil, err
	}
	entry, err := rpc.LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	if len(params) != len(entry.Keys)-1 {
		return nil, fmt.Errorf(
			"%s.%s map query needs %d params, got %d",
			module,
			item,
			len(entry.Keys)-1,
			len(params),
		)
	}
	l.state.mutex.RLock()
	defer l.state.mutex.RUnlock()
	return l.state.mapEntries(block, module, item, params...)
}

func (l *Ledger) QueryConstant(
	ctx context.Context,
	module string,
	name string,
	_ string,
) ([]byte, error) {
	if err := l.begin(ctx, MethodQueryConstant); err != nil {
		return nil, err
	}
	ret, ok := l.state.constant(module, name)
	if !ok {
		return nil, fmt.Errorf("%w: constant %s.%s", rpc.ErrUnknownStorage, module, name)
	}
	return append([]byte{}, ret...), nil
}

func (l *Ledger) QueryRuntimeAPI(
	ctx context.Context,
	api string,
	method string,
	params []byte,
	blockHash string,
) ([]byte, error) {
	if err := l.begin(ctx, MethodQueryRuntimeAPI); err != nil {
		return nil, err
	}
	block, err := l.resolveBlock(blockHash)
	if err != nil {
		return nil, err
	}
	handler, ok := runtimeHandlers[api+"_"+method]
	if !ok {
		return nil, &rpc.RPCError{Code: -32000, Message: "unknown runtime api " + api + "_" + method}
	}
	l.state.mutex.RLock()
	defer l.state.mutex.RUnlock()
	return handler(l.state, block, params)
}

func (l *Ledger) SubmitExtrinsic(
	ctx context.Context,
	call rpc.Call,
	signer keypair.Signer,
	wait rpc.WaitMode,
) (*rpc.ExtrinsicReceipt, error) {
	if err := l.begin(ctx, MethodSubmitExtrinsic); err != nil {
		return nil, err
	}
	account, err := ledger.NewAccountID(signer.PublicKey())
	if err != nil {
		return nil, err
	}
	callData, err := call.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := signer.Sign(callData); err != nil {
		return nil, err
	}
	block, err := l.state.apply(call, account)
	if err != nil {
		return nil, &rpc.ExtrinsicError{Message: err.Error()}
	}
	receipt := &rpc.ExtrinsicReceipt{
		Success: true,
		Hash:    extrinsicHash(callData, account, block),
	}
	if wait != rpc.WaitNone {
		receipt.BlockNumber = block
		receipt.BlockHash = BlockHash(block)
	}
	return receipt, nil
}

func extrinsicHash(callData []byte, account ledger.AccountID, block uint64) string {
	data := append([]byte{}, callData...)
	data = append(data, account[:]...)
	data = binary.LittleEndian.AppendUint64(data, block)
	return rpc.ExtrinsicHash(data)
}

func (l *Ledger) GetBlockHash(ctx context.Context, block uint64) (string, error) {
	if err := l.begin(ctx, MethodGetBlockHash); err != nil {
		return "", err
	}
	if block > l.state.Block() {
		return "", &rpc.RPCError{Code: -32000, Message: fmt.Sprintf("block %d not found", block)}
	}
	return BlockHash(block), nil
}

func (l *Ledger) GetCurrentBlock(ctx context.Context) (uint64, error) {
	if err := l.begin(ctx, MethodGetCurrentBlock); err != nil {
		return 0, err
	}
	return l.state.Block(), nil
}

func (l *Ledger) Close() error {
	l.closed.Store(true)
	return nil
}
