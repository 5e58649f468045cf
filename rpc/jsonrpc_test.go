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

package rpc_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNodeHandler func(params []json.RawMessage) (any, *rpc.RPCError)

// fakeNode is a JSON-RPC server with canned method handlers
type fakeNode struct {
	mutex    sync.Mutex
	handlers map[string]fakeNodeHandler
	calls    map[string]int
	status   int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		handlers: make(map[string]fakeNodeHandler),
		calls:    make(map[string]int),
	}
}

func (n *fakeNode) handle(method string, handler fakeNodeHandler) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.handlers[method] = handler
}

func (n *fakeNode) callCount(method string) int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mutex.Lock()
	n.calls[req.Method]++
	handler, ok := n.handlers[req.Method]
	status := n.status
	n.mutex.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &rpc.RPCError{Code: -32601, Message: "Method not found"}
	} else if result, rpcErr := handler(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func fixed(result any) fakeNodeHandler {
	return func([]json.RawMessage) (any, *rpc.RPCError) {
		return result, nil
	}
}

func newFakeBackend(t *testing.T, node *fakeNode) *rpc.HTTPBackend {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)
	backend := rpc.NewHTTPBackend(
		server.URL,
		rpc.WithPollInterval(time.Millisecond),
		rpc.WithSubmitWait(5*time.Second),
	)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestHTTPBackendURL(t *testing.T) {
	testDefs := []struct {
		endpoint string
		expected string
	}{
		{endpoint: "ws://127.0.0.1:9944", expected: "http://127.0.0.1:9944"},
		{endpoint: "wss://entrypoint-finney.opentensor.ai:443", expected: "https://entrypoint-finney.opentensor.ai:443"},
		{endpoint: "http://localhost:9933", expected: "http://localhost:9933"},
	}
	for _, testDef := range testDefs {
		assert.Equal(t, testDef.expected, rpc.NewHTTPBackend(testDef.endpoint).URL())
	}
}

func TestHTTPBackendQueries(t *testing.T) {
	node := newFakeNode()
	tempoKey, err := rpc.StorageKeyHex("SubtensorModule", "Tempo", uint16(1))
	require.NoError(t, err)
	node.handle("state_getStorage", func(params []json.RawMessage) (any, *rpc.RPCError) {
		var key string
		_ = json.Unmarshal(params[0], &key)
		if key == tempoKey {
			return "0x6801", nil
		}
		return nil, nil
	})
	node.handle("chain_getHeader", fixed(map[string]string{"number": "0x1a"}))
	node.handle("chain_getBlockHash", fixed("0x"+hex.EncodeToString(make([]byte, 32))))
	node.handle("state_call", func(params []json.RawMessage) (any, *rpc.RPCError) {
		var method string
		_ = json.Unmarshal(params[0], &method)
		if method != "NeuronInfoRuntimeApi_get_neurons_lite" {
			return nil, &rpc.RPCError{Code: -32000, Message: "unexpected " + method}
		}
		return "0x00", nil
	})
	client := rpc.NewClient(newFakeBackend(t, node))
	ctx := context.Background()
	tempo, err := client.Tempo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(360), tempo)
	// unset items fall back to their default
	n, err := client.SubnetworkN(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), n)
	block, err := client.CurrentBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(26), block)
	participants, err := client.At(20).ParticipantsLite(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, participants)
	assert.Empty(t, participants)
	_, err = client.ExistentialDeposit(ctx)
	assert.ErrorIs(t, err, rpc.ErrUnsupported)
}

func TestHTTPBackendQueryMap(t *testing.T) {
	node := newFakeNode()
	prefix, err := rpc.StorageKeyHex("SubtensorModule", "Weights", uint16(1))
	require.NoError(t, err)
	rows := map[string]string{
		prefix + "0000": "0x04" + "0100" + "ffff",
		prefix + "0300": "0x00",
	}
	node.handle("state_getKeysPaged", func([]json.RawMessage) (any, *rpc.RPCError) {
		return []string{prefix + "0000", prefix + "0300"}, nil
	})
	node.handle("state_queryStorageAt", func(params []json.RawMessage) (any, *rpc.RPCError) {
		var keys []string
		_ = json.Unmarshal(params[0], &keys)
		var changes [][2]string
		for _, key := range keys {
			changes = append(changes, [2]string{key, rows[key]})
		}
		return []map[string]any{{"block": "0x00", "changes": changes}}, nil
	})
	client := rpc.NewClient(newFakeBackend(t, node))
	weights, err := client.Weights(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(
		t,
		map[uint16][]ledger.WeightPair{
			0: {{UID: 1, Value: 65535}},
			3: {},
		},
		weights,
	)
}

func TestHTTPBackendErrors(t *testing.T) {
	node := newFakeNode()
	node.handle("chain_getHeader", fixed(map[string]string{"number": "0x01"}))
	backend := newFakeBackend(t, node)
	client := rpc.NewClient(backend, rpc.WithRetry(time.Millisecond, 1.0, 2))
	ctx := context.Background()
	// method errors are returned as is and not retried
	_, err := client.Tempo(ctx, 1)
	var rpcErr *rpc.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, 1, node.callCount("state_getStorage"))
	// server errors are transport errors and are retried
	node.mutex.Lock()
	node.status = http.StatusServiceUnavailable
	node.mutex.Unlock()
	_, err = client.CurrentBlock(ctx)
	var transportErr *rpc.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "chain_getHeader", transportErr.Method)
	assert.Equal(t, 2, node.callCount("chain_getHeader"))
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())
	_, err = backend.GetCurrentBlock(ctx)
	assert.ErrorIs(t, err, rpc.ErrClosed)
}

func TestHTTPBackendSubmitExtrinsic(t *testing.T) {
	node := newFakeNode()
	genesis := "0x" + hex.EncodeToString(make([]byte, 32))
	var submitted string
	var mutex sync.Mutex
	node.handle("chain_getBlockHash", func(params []json.RawMessage) (any, *rpc.RPCError) {
		var block uint64
		_ = json.Unmarshal(params[0], &block)
		if block == 0 {
			return genesis, nil
		}
		return fmt.Sprintf("0x%064x", block), nil
	})
	node.handle("state_getRuntimeVersion", fixed(map[string]any{"specVersion": 201, "transactionVersion": 1}))
	node.handle("system_accountNextIndex", fixed(4))
	node.handle("chain_getHeader", fixed(map[string]string{"number": "0x10"}))
	node.handle("author_submitExtrinsic", func(params []json.RawMessage) (any, *rpc.RPCError) {
		mutex.Lock()
		defer mutex.Unlock()
		_ = json.Unmarshal(params[0], &submitted)
		return "0xabcd", nil
	})
	node.handle("chain_getBlock", func([]json.RawMessage) (any, *rpc.RPCError) {
		mutex.Lock()
		defer mutex.Unlock()
		return map[string]any{"block": map[string]any{"extrinsics": []string{submitted}}}, nil
	})
	node.handle("chain_getFinalizedHead", fixed(fmt.Sprintf("0x%064x", 16)))
	client := rpc.NewClient(newFakeBackend(t, node))
	call, err := rpc.AddStake(newTestKey(t, 2).Address(), ledger.Balance(10))
	require.NoError(t, err)
	receipt, err := client.SubmitExtrinsic(context.Background(), call, newTestKey(t, 1), rpc.WaitFinalization)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xabcd", receipt.Hash)
	assert.Equal(t, uint64(16), receipt.BlockNumber)
	assert.Equal(t, fmt.Sprintf("0x%064x", 16), receipt.BlockHash)
	// the genesis hash is fetched once
	_, err = client.SubmitExtrinsic(context.Background(), call, newTestKey(t, 1), rpc.WaitNone)
	require.NoError(t, err)
	node.handle("author_submitExtrinsic", func([]json.RawMessage) (any, *rpc.RPCError) {
		return nil, &rpc.RPCError{Code: 1010, Message: "Invalid Transaction", Data: "HotKeyAlreadyRegisteredInSubNet"}
	})
	_, err = client.SubmitExtrinsic(context.Background(), call, newTestKey(t, 1), rpc.WaitNone)
	assert.True(t, rpc.IsAlreadyRegistered(err))
}
