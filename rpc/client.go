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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultRetryInitialInterval = 2 * time.Second
	DefaultRetryMultiplier      = 2.0
	DefaultRetryAttempts        = 3
)

// Config holds the client configuration
type Config struct {
	Logger               *zap.Logger
	RetryInitialInterval time.Duration
	RetryMultiplier      float64
	RetryAttempts        int
	Cache                *Cache
}

// ClientOptionFunc represents a function used to modify the client config
type ClientOptionFunc func(*Config)

// NewConfig returns a new client config object with the provided options applied
func NewConfig(options ...ClientOptionFunc) Config {
	c := Config{
		Logger:               zap.NewNop(),
		RetryInitialInterval: DefaultRetryInitialInterval,
		RetryMultiplier:      DefaultRetryMultiplier,
		RetryAttempts:        DefaultRetryAttempts,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger
func WithLogger(logger *zap.Logger) ClientOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRetry specifies the retry policy for transport errors. The delay before
// each retry grows by multiplier, starting at initial
func WithRetry(initial time.Duration, multiplier float64, attempts int) ClientOptionFunc {
	return func(c *Config) {
		c.RetryInitialInterval = initial
		c.RetryMultiplier = multiplier
		c.RetryAttempts = attempts
	}
}

// WithCache specifies a cache for runtime API results of pinned-block queries.
// The caller remains responsible for closing it
func WithCache(cache *Cache) ClientOptionFunc {
	return func(c *Config) {
		c.Cache = cache
	}
}

// Client runs typed queries against a Backend. A client may be pinned to a
// block with At, in which case every query reads state as of that block
type Client struct {
	backend Backend
	config  Config
	block   *uint64

	hashMutex sync.Mutex
	blockHash string
}

// NewClient returns a client using the given backend
func NewClient(backend Backend, options ...ClientOptionFunc) *Client {
	return &Client{
		backend: backend,
		config:  NewConfig(options...),
	}
}

// At returns a client sharing this client's backend with every query pinned
// to the given block
func (c *Client) At(block uint64) *Client {
	return &Client{
		backend: c.backend,
		config:  c.config,
		block:   &block,
	}
}

// Block returns the pinned block, if any
func (c *Client) Block() (uint64, bool) {
	if c.block == nil {
		return 0, false
	}
	return *c.block, true
}

// Backend returns the underlying backend
func (c *Client) Backend() Backend {
	return c.backend
}

// Close closes the backend
func (c *Client) Close() error {
	return c.backend.Close()
}

// retry runs fn, retrying transport errors with exponential backoff
func (c *Client) retry(ctx context.Context, method string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryInitialInterval
	b.Multiplier = c.config.RetryMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	attempts := max(c.config.RetryAttempts, 1)
	attempt := 0
	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		c.config.Logger.Warn(
			"retrying ledger query",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(op, policy, notify)
}

// CurrentBlock returns the number of the best block
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	var ret uint64
	err := c.retry(ctx, "GetCurrentBlock", func() error {
		var err error
		ret, err = c.backend.GetCurrentBlock(ctx)
		return err
	})
	return ret, err
}

// resolveBlockHash returns the hash of the pinned block, or an empty hash if
// the client is not pinned
func (c *Client) resolveBlockHash(ctx context.Context) (string, error) {
	if c.block == nil {
		return "", nil
	}
	c.hashMutex.Lock()
	defer c.hashMutex.Unlock()
	if c.blockHash != "" {
		return c.blockHash, nil
	}
	current, err := c.CurrentBlock(ctx)
	if err != nil {
		return "", err
	}
	if *c.block > current {
		return "", fmt.Errorf("%w: block %d, current block %d", ErrFutureBlock, *c.block, current)
	}
	var hash string
	err = c.retry(ctx, "GetBlockHash", func() error {
		var err error
		hash, err = c.backend.GetBlockHash(ctx, *c.block)
		return err
	})
	if err != nil {
		return "", err
	}
	c.blockHash = hash
	return hash, nil
}

// StorageValue reads and decodes a storage item. Unset items decode their
// default value, or nil if the item has none
func (c *Client) StorageValue(ctx context.Context, module string, item string, params ...any) (ledger.Value, error) {
	entry, err := LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	hash, err := c.resolveBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = c.retry(ctx, "QueryStorage", func() error {
		var err error
		raw, err = c.backend.QueryStorage(ctx, module, item, params, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = entry.Default
	}
	if raw == nil {
		return nil, nil
	}
	ret, err := ledger.DecodeValue(entry.Value, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", module, item, err)
	}
	return ret, nil
}

// StorageMap reads and decodes all entries of a storage map under the given
// leading key parameters, keyed by the decoded open key
func (c *Client) StorageMap(ctx context.Context, module string, item string, params ...any) ([]MapValue, error) {
	entry, err := LookupStorage(module, item)
	if err != nil {
		return nil, err
	}
	if len(params) != len(entry.Keys)-1 {
		return nil, fmt.Errorf(
			"%s.%s: exactly one key parameter must be left open",
			module,
			item,
		)
	}
	hash, err := c.resolveBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	var entries []MapEntry
	err = c.retry(ctx, "QueryMap", func() error {
		var err error
		entries, err = c.backend.QueryMap(ctx, module, item, params, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	keyType := entry.Keys[len(entry.Keys)-1].Type
	ret := make([]MapValue, 0, len(entries))
	for _, e := range entries {
		key, err := ledger.DecodeValue(keyType, e.Key)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s key: %w", module, item, err)
		}
		value, err := ledger.DecodeValue(entry.Value, e.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s value: %w", module, item, err)
		}
		ret = append(ret, MapValue{Key: key, Value: value})
	}
	return ret, nil
}

// MapValue is a decoded storage map entry
type MapValue struct {
	Key   ledger.Value
	Value ledger.Value
}

// Constant reads and decodes a runtime constant with the given type string
func (c *Client) Constant(ctx context.Context, module string, name string, typeString string) (ledger.Value, error) {
	hash, err := c.resolveBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = c.retry(ctx, "QueryConstant", func() error {
		var err error
		raw, err = c.backend.QueryConstant(ctx, module, name, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ledger.DecodeValue(typeString, raw)
}

// RuntimeAPI calls a runtime API method. Results of pinned-block calls are
// served from the cache when one is configured
func (c *Client) RuntimeAPI(ctx context.Context, api string, method string, params []byte) ([]byte, error) {
	hash, err := c.resolveBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	var cacheKey string
	if hash != "" && c.config.Cache != nil {
		cacheKey = fmt.Sprintf("%s/%s_%s/%s", hash, api, method, hex.EncodeToString(params))
		cached, ok, err := c.config.Cache.Get(cacheKey)
		if err != nil {
			c.config.Logger.Warn("cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}
	var ret []byte
	err = c.retry(ctx, api+"_"+method, func() error {
		var err error
		ret, err = c.backend.QueryRuntimeAPI(ctx, api, method, params, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if cacheKey != "" {
		if err := c.config.Cache.Put(cacheKey, ret); err != nil {
			c.config.Logger.Warn("cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return ret, nil
}

// SubmitExtrinsic signs and submits a call. Submissions are not retried
func (c *Client) SubmitExtrinsic(ctx context.Context, call Call, signer keypair.Signer, wait WaitMode) (*ExtrinsicReceipt, error) {
	c.config.Logger.Debug(
		"submitting extrinsic",
		zap.String("call", call.String()),
		zap.String("signer", signer.Address()),
		zap.Stringer("wait", wait),
	)
	receipt, err := c.backend.SubmitExtrinsic(ctx, call, signer, wait)
	if err != nil {
		return nil, err
	}
	if wait == WaitNone {
		receipt.Success = true
	}
	return receipt, nil
}
