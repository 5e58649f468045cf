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

// Package boson implements the dispatcher that sends signed queries to
// network endpoints and collects their responses.
//
// A single Boson may be shared by many goroutines. Each call reports its
// outcome in the status fields of the returned envelopes, so a batch never
// fails as a whole.
package boson

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gotensor"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/nucleon"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHistorySize = 1024
	LoopbackIP         = "127.0.0.1"
)

// Config holds the dispatcher settings
type Config struct {
	Logger       *zap.Logger
	ExternalIP   string
	ExternalPort uint16
	Timeout      time.Duration
	HistorySize  int
	Transport    http.RoundTripper
	Version      uint32
}

// BosonOptionFunc is a type that represents functions that modify the
// dispatcher config
type BosonOptionFunc func(*Config)

// NewConfig returns a config with defaults applied before the options
func NewConfig(options ...BosonOptionFunc) Config {
	c := Config{
		Logger:      zap.NewNop(),
		Timeout:     nucleon.DefaultTimeout,
		HistorySize: DefaultHistorySize,
		Version:     gotensor.VersionInt(),
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger
func WithLogger(logger *zap.Logger) BosonOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithExternalIP specifies the address this dispatcher is reachable at.
// Endpoints serving on the same address are called over loopback
func WithExternalIP(ip string) BosonOptionFunc {
	return func(c *Config) {
		c.ExternalIP = ip
	}
}

// WithExternalPort specifies the port advertised in dispatcher headers
func WithExternalPort(port uint16) BosonOptionFunc {
	return func(c *Config) {
		c.ExternalPort = port
	}
}

// WithDefaultTimeout specifies the timeout for calls that do not set one
func WithDefaultTimeout(timeout time.Duration) BosonOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithHistorySize specifies how many completed exchanges are kept
func WithHistorySize(size int) BosonOptionFunc {
	return func(c *Config) {
		c.HistorySize = size
	}
}

// WithTransport specifies the HTTP transport of the connection pool
func WithTransport(transport http.RoundTripper) BosonOptionFunc {
	return func(c *Config) {
		c.Transport = transport
	}
}

// WithVersion overrides the software version sent to endpoints
func WithVersion(version uint32) BosonOptionFunc {
	return func(c *Config) {
		c.Version = version
	}
}

// Boson dispatches nucleons to endpoints
type Boson struct {
	config   Config
	signer   keypair.Signer
	uuid     string
	logger   *zap.Logger
	nonce    atomic.Uint64
	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	mutex    sync.Mutex
	client   *http.Client
	history  []*nucleon.Nucleon
	histLock sync.Mutex
}

// New returns a dispatcher that signs with signer
func New(signer keypair.Signer, options ...BosonOptionFunc) *Boson {
	b := &Boson{
		config: NewConfig(options...),
		signer: signer,
		uuid:   uuid.NewString(),
	}
	if b.config.HistorySize < 0 {
		b.config.HistorySize = 0
	}
	b.logger = b.config.Logger.With(
		zap.String("component", "boson"),
		zap.String("hotkey", signer.Address()),
	)
	// nonces keep increasing across restarts of the same hotkey
	b.nonce.Store(uint64(time.Now().UnixNano()))
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// UUID returns the instance id sent with every request
func (b *Boson) UUID() string {
	return b.uuid
}

// Hotkey returns the SS58 address of the signing key
func (b *Boson) Hotkey() string {
	return b.signer.Address()
}

func (b *Boson) nextNonce() uint64 {
	return b.nonce.Add(1)
}

// httpClient returns the connection pool, creating it on first use
func (b *Boson) httpClient() *http.Client {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.client == nil {
		transport := b.config.Transport
		if transport == nil {
			transport = &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   b.config.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			}
		}
		b.client = &http.Client{Transport: transport}
	}
	return b.client
}

// closePool drops idle connections. The next call creates a new pool
func (b *Boson) closePool() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.client != nil {
		b.client.CloseIdleConnections()
		b.client = nil
	}
}

// Close cancels in-flight calls and releases the connection pool. Calls
// made after Close report the endpoint as unavailable. Close may be called
// more than once
func (b *Boson) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	b.closePool()
	b.logger.Debug("closed dispatcher")
	return nil
}

// archive appends a copy of a completed exchange to the history, dropping
// the oldest entries beyond the history size
func (b *Boson) archive(n *nucleon.Nucleon) {
	if b.config.HistorySize == 0 {
		return
	}
	entry, err := n.Clone()
	if err != nil {
		b.logger.Warn("failed to archive exchange", zap.Error(err))
		shallow := *n
		shallow.Body = nil
		entry = &shallow
	}
	b.histLock.Lock()
	defer b.histLock.Unlock()
	b.history = append(b.history, entry)
	if over := len(b.history) - b.config.HistorySize; over > 0 {
		b.history = append([]*nucleon.Nucleon(nil), b.history[over:]...)
	}
}

// History returns copies of the archived exchanges, oldest first
func (b *Boson) History() []*nucleon.Nucleon {
	b.histLock.Lock()
	defer b.histLock.Unlock()
	ret := make([]*nucleon.Nucleon, 0, len(b.history))
	for _, entry := range b.history {
		clone, err := entry.Clone()
		if err != nil {
			shallow := *entry
			clone = &shallow
		}
		ret = append(ret, clone)
	}
	return ret
}

// ClearHistory drops all archived exchanges
func (b *Boson) ClearHistory() {
	b.histLock.Lock()
	defer b.histLock.Unlock()
	b.history = nil
}
