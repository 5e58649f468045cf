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
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gotensor/keypair"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultSubmitWait   = 2 * time.Minute

	keysPageSize     = 1000
	queryBatchSize   = 200
	maxResponseBytes = 64 << 20
)

// HTTPBackend is a Backend speaking JSON-RPC 2.0 over a single keep-alive
// HTTP transport
type HTTPBackend struct {
	url          string
	httpClient   *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
	submitWait   time.Duration
	requestID    atomic.Uint64
	closed       atomic.Bool

	genesisMutex sync.Mutex
	genesisHash  [32]byte
	haveGenesis  bool
}

// HTTPBackendOptionFunc represents a function used to modify the HTTP backend
type HTTPBackendOptionFunc func(*HTTPBackend)

// WithHTTPClient specifies the HTTP client to use
func WithHTTPClient(client *http.Client) HTTPBackendOptionFunc {
	return func(b *HTTPBackend) {
		b.httpClient = client
	}
}

// WithBackendLogger specifies the logger
func WithBackendLogger(logger *zap.Logger) HTTPBackendOptionFunc {
	return func(b *HTTPBackend) {
		b.logger = logger
	}
}

// WithPollInterval specifies how often block state is polled while waiting
// for an extrinsic
func WithPollInterval(interval time.Duration) HTTPBackendOptionFunc {
	return func(b *HTTPBackend) {
		b.pollInterval = interval
	}
}

// WithSubmitWait specifies how long to wait for inclusion or finalization
// when the context carries no deadline
func WithSubmitWait(wait time.Duration) HTTPBackendOptionFunc {
	return func(b *HTTPBackend) {
		b.submitWait = wait
	}
}

// NewHTTPBackend returns a backend for the given endpoint. WebSocket URLs are
// mapped onto their HTTP equivalent
func NewHTTPBackend(endpoint string, options ...HTTPBackendOptionFunc) *HTTPBackend {
	b := &HTTPBackend{
		url:          httpURL(endpoint),
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		submitWait:   DefaultSubmitWait,
	}
	for _, option := range options {
		option(b)
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return b
}

func httpURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		return "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		return "http://" + strings.TrimPrefix(endpoint, "ws://")
	}
	return endpoint
}

// URL returns the HTTP endpoint of the backend
func (b *HTTPBackend) URL() string {
	return b.url
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// call performs a single JSON-RPC request and decodes the result into result
func (b *HTTPBackend) call(ctx context.Context, method string, params []any, result any) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if params == nil {
		params = []any{}
	}
	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      b.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return &TransportError{Method: method, Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP status %d", method, resp.StatusCode)
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// withBlock appends the block hash parameter when one is given
func withBlock(params []any, blockHash string) []any {
	if blockHash == "" {
		return params
	}
	return append(params, blockHash)
}

func decodeHexResult(method string, s *string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	ret, err := hex.DecodeString(strings.TrimPrefix(*s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return ret, nil
}

func (b *HTTPBackend) QueryStorage(ctx context.Context, module string, item string, params []any, blockHash string) ([]byte, error) {
	key, err := StorageKeyHex(module, item, params...)
	if err != nil {
		return nil, err
	}
	var result *string
	if err := b.call(ctx, "state_getStorage", withBlock([]any{key}, blockHash), &result); err != nil {
		return nil, err
	}
	return decodeHexResult("state_getStorage", result)
}

func (b *HTTPBackend) QueryMap(ctx context.Context, module string, item string, params []any, blockHash string) ([]MapEntry, error) {
	entry, err := LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	prefix, err := StorageKey(module, item, params...)
	if err != nil {
		return nil, err
	}
	prefixHex := "0x" + hex.EncodeToString(prefix)
	var keys []string
	startKey := prefixHex
	for {
		var page []string
		err := b.call(
			ctx,
			"state_getKeysPaged",
			withBlock([]any{prefixHex, keysPageSize, startKey}, blockHash),
			&page,
		)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if len(page) < keysPageSize {
			break
		}
		startKey = page[len(page)-1]
	}
	ret := make([]MapEntry, 0, len(keys))
	for start := 0; start < len(keys); start += queryBatchSize {
		batch := keys[start:min(start+queryBatchSize, len(keys))]
		var changeSets []struct {
			Block   string       `json:"block"`
			Changes [][2]*string `json:"changes"`
		}
		err := b.call(ctx, "state_queryStorageAt", withBlock([]any{batch}, blockHash), &changeSets)
		if err != nil {
			return nil, err
		}
		for _, changeSet := range changeSets {
			for _, change := range changeSet.Changes {
				if change[0] == nil || change[1] == nil {
					continue
				}
				fullKey, err := decodeHexResult("state_queryStorageAt", change[0])
				if err != nil {
					return nil, err
				}
				value, err := decodeHexResult("state_queryStorageAt", change[1])
				if err != nil {
					return nil, err
				}
				key, err := SplitMapKey(entry, fullKey, len(prefix))
				if err != nil {
					return nil, err
				}
				ret = append(ret, MapEntry{Key: key, Value: value})
			}
		}
	}
	return ret, nil
}

// QueryConstant is not supported, as constants are only reachable through
// the runtime metadata
func (b *HTTPBackend) QueryConstant(ctx context.Context, module string, name string, blockHash string) ([]byte, error) {
	return nil, fmt.Errorf("%w: constant %s.%s", ErrUnsupported, module, name)
}

func (b *HTTPBackend) QueryRuntimeAPI(ctx context.Context, api string, method string, params []byte, blockHash string) ([]byte, error) {
	var result *string
	err := b.call(
		ctx,
		"state_call",
		withBlock([]any{api + "_" + method, "0x" + hex.EncodeToString(params)}, blockHash),
		&result,
	)
	if err != nil {
		return nil, err
	}
	return decodeHexResult("state_call", result)
}

func (b *HTTPBackend) GetBlockHash(ctx context.Context, block uint64) (string, error) {
	var result *string
	if err := b.call(ctx, "chain_getBlockHash", []any{block}, &result); err != nil {
		return "", err
	}
	if result == nil {
		return "", fmt.Errorf("no block with number %d", block)
	}
	return *result, nil
}

type blockHeader struct {
	Number     string `json:"number"`
	ParentHash string `json:"parentHash"`
}

func (h blockHeader) blockNumber() (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(h.Number, "0x"), 16, 64)
}

func (b *HTTPBackend) header(ctx context.Context, blockHash string) (uint64, error) {
	var header blockHeader
	if err := b.call(ctx, "chain_getHeader", withBlock(nil, blockHash), &header); err != nil {
		return 0, err
	}
	ret, err := header.blockNumber()
	if err != nil {
		return 0, fmt.Errorf("decode block number %q: %w", header.Number, err)
	}
	return ret, nil
}

func (b *HTTPBackend) GetCurrentBlock(ctx context.Context) (uint64, error) {
	return b.header(ctx, "")
}

func (b *HTTPBackend) genesis(ctx context.Context) ([32]byte, error) {
	b.genesisMutex.Lock()
	defer b.genesisMutex.Unlock()
	if b.haveGenesis {
		return b.genesisHash, nil
	}
	hash, err := b.GetBlockHash(ctx, 0)
	if err != nil {
		return [32]byte{}, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(hash, "0x"))
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("invalid genesis hash %q", hash)
	}
	copy(b.genesisHash[:], raw)
	b.haveGenesis = true
	return b.genesisHash, nil
}

func (b *HTTPBackend) signingContext(ctx context.Context, signer keypair.Signer) (SigningContext, error) {
	var ret SigningContext
	genesis, err := b.genesis(ctx)
	if err != nil {
		return ret, err
	}
	ret.GenesisHash = genesis
	var version struct {
		SpecVersion        uint32 `json:"specVersion"`
		TransactionVersion uint32 `json:"transactionVersion"`
	}
	if err := b.call(ctx, "state_getRuntimeVersion", nil, &version); err != nil {
		return ret, err
	}
	ret.SpecVersion = version.SpecVersion
	ret.TransactionVersion = version.TransactionVersion
	if err := b.call(ctx, "system_accountNextIndex", []any{signer.Address()}, &ret.Nonce); err != nil {
		return ret, err
	}
	return ret, nil
}

func (b *HTTPBackend) SubmitExtrinsic(ctx context.Context, call Call, signer keypair.Signer, wait WaitMode) (*ExtrinsicReceipt, error) {
	sc, err := b.signingContext(ctx, signer)
	if err != nil {
		return nil, err
	}
	ext, err := BuildSignedExtrinsic(call, signer, sc)
	if err != nil {
		return nil, err
	}
	startBlock, err := b.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	extHex := "0x" + hex.EncodeToString(ext)
	var hash string
	if err := b.call(ctx, "author_submitExtrinsic", []any{extHex}, &hash); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			msg := rpcErr.Message
			if rpcErr.Data != nil {
				msg = fmt.Sprintf("%s: %v", msg, rpcErr.Data)
			}
			return nil, &ExtrinsicError{Message: msg}
		}
		return nil, err
	}
	b.logger.Debug(
		"extrinsic submitted",
		zap.String("call", call.String()),
		zap.String("hash", hash),
	)
	receipt := &ExtrinsicReceipt{Hash: hash}
	if wait == WaitNone {
		receipt.Success = true
		return receipt, nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.submitWait)
		defer cancel()
	}
	if err := b.waitInclusion(ctx, extHex, startBlock, receipt); err != nil {
		return nil, err
	}
	if wait == WaitFinalization {
		if err := b.waitFinalization(ctx, receipt.BlockNumber); err != nil {
			return nil, err
		}
	}
	receipt.Success = true
	return receipt, nil
}

// waitInclusion scans new blocks until one carries the extrinsic
func (b *HTTPBackend) waitInclusion(ctx context.Context, extHex string, startBlock uint64, receipt *ExtrinsicReceipt) error {
	next := startBlock
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		current, err := b.GetCurrentBlock(ctx)
		if err != nil {
			return err
		}
		for ; next <= current; next++ {
			blockHash, err := b.GetBlockHash(ctx, next)
			if err != nil {
				return err
			}
			var block struct {
				Block struct {
					Extrinsics []string `json:"extrinsics"`
				} `json:"block"`
			}
			if err := b.call(ctx, "chain_getBlock", []any{blockHash}, &block); err != nil {
				return err
			}
			for _, ext := range block.Block.Extrinsics {
				if strings.EqualFold(ext, extHex) {
					receipt.BlockHash = blockHash
					receipt.BlockNumber = next
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for inclusion: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitFinalization polls the finalized head until it reaches block
func (b *HTTPBackend) waitFinalization(ctx context.Context, block uint64) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		var head string
		if err := b.call(ctx, "chain_getFinalizedHead", nil, &head); err != nil {
			return err
		}
		finalized, err := b.header(ctx, head)
		if err != nil {
			return err
		}
		if finalized >= block {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for finalization: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close drops idle connections. Calls made after Close fail with ErrClosed
func (b *HTTPBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.httpClient.CloseIdleConnections()
	return nil
}
