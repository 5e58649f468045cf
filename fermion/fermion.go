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

// Package fermion implements the endpoint server that receives nucleons
// from dispatchers, verifies them and runs the attached handlers.
package fermion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gotensor"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/nucleon"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBodySize bounds the size of a request
	DefaultMaxBodySize = 16 << 20
	// DefaultNonceWindow is how far below the highest nonce seen from a
	// dispatcher a late request may still arrive
	DefaultNonceWindow = 4096
)

var (
	ErrAlreadyAttached = errors.New("handler already attached")
	ErrInvalidName     = errors.New("invalid request name")
	ErrNotServing      = errors.New("server is not running")
)

// BlacklistFunc reports whether requests of the named type from hotkey are
// refused
type BlacklistFunc func(hotkey string, name string) bool

// Config holds the endpoint server settings
type Config struct {
	Logger       *zap.Logger
	ExternalIP   string
	ExternalPort uint16
	Protocol     uint8
	Version      uint32
	Blacklist    BlacklistFunc
	MaxBodySize  int64
	NonceWindow  uint64
}

// FermionOptionFunc is a type that represents functions that modify the
// server config
type FermionOptionFunc func(*Config)

// NewConfig returns a config with defaults applied before the options
func NewConfig(options ...FermionOptionFunc) Config {
	c := Config{
		Logger:      zap.NewNop(),
		Protocol:    4,
		Version:     gotensor.VersionInt(),
		MaxBodySize: DefaultMaxBodySize,
		NonceWindow: DefaultNonceWindow,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger
func WithLogger(logger *zap.Logger) FermionOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithExternalIP specifies the address advertised for this endpoint
func WithExternalIP(ip string) FermionOptionFunc {
	return func(c *Config) {
		c.ExternalIP = ip
	}
}

// WithExternalPort specifies the port advertised for this endpoint
func WithExternalPort(port uint16) FermionOptionFunc {
	return func(c *Config) {
		c.ExternalPort = port
	}
}

// WithVersion overrides the software version sent to dispatchers
func WithVersion(version uint32) FermionOptionFunc {
	return func(c *Config) {
		c.Version = version
	}
}

// WithBlacklist specifies a function deciding which callers are refused
func WithBlacklist(blacklist BlacklistFunc) FermionOptionFunc {
	return func(c *Config) {
		c.Blacklist = blacklist
	}
}

// WithMaxBodySize specifies the largest accepted request
func WithMaxBodySize(size int64) FermionOptionFunc {
	return func(c *Config) {
		c.MaxBodySize = size
	}
}

// WithNonceWindow specifies how many nonces below the highest one seen from
// a dispatcher are still accepted once. Zero only accepts increasing nonces
func WithNonceWindow(size uint64) FermionOptionFunc {
	return func(c *Config) {
		c.NonceWindow = size
	}
}

// Handler processes a verified request, filling in the response fields of
// its body
type Handler func(ctx context.Context, n *nucleon.Nucleon) error

// StreamHandler processes a verified request by writing response chunks
type StreamHandler func(ctx context.Context, n *nucleon.Nucleon, w *StreamWriter) error

type attachment struct {
	newBody func() any
	handler Handler
	stream  StreamHandler
}

// Fermion serves attached request types to dispatchers
type Fermion struct {
	config      Config
	signer      keypair.Signer
	uuid        string
	logger      *zap.Logger
	router      *mux.Router
	nonce       atomic.Uint64
	mutex       sync.Mutex
	attachments map[string]attachment
	nonces      map[string]*nonceWindow
	server      *http.Server
}

// New returns an endpoint server identified by signer
func New(signer keypair.Signer, options ...FermionOptionFunc) *Fermion {
	f := &Fermion{
		config:      NewConfig(options...),
		signer:      signer,
		uuid:        uuid.NewString(),
		router:      mux.NewRouter(),
		attachments: make(map[string]attachment),
		nonces:      make(map[string]*nonceWindow),
	}
	f.logger = f.config.Logger.With(
		zap.String("component", "fermion"),
		zap.String("hotkey", signer.Address()),
	)
	f.nonce.Store(uint64(time.Now().UnixNano()))
	f.router.NotFoundHandler = http.HandlerFunc(f.handleNotFound)
	f.router.MethodNotAllowedHandler = http.HandlerFunc(f.handleNotFound)
	return f
}

// Info returns the endpoint record to publish on the ledger
func (f *Fermion) Info() ledger.EndpointInfo {
	ipType := uint8(ledger.IPTypeV4)
	if ip := net.ParseIP(f.config.ExternalIP); ip != nil && ip.To4() == nil {
		ipType = ledger.IPTypeV6
	}
	ip := f.config.ExternalIP
	if ip == "" {
		ip = ledger.ServingIPNone
	}
	return ledger.EndpointInfo{
		Version:  f.config.Version,
		IP:       ip,
		Port:     f.config.ExternalPort,
		IPType:   ipType,
		Protocol: f.config.Protocol,
		Hotkey:   f.signer.Address(),
	}
}

func (f *Fermion) attach(name string, a attachment) error {
	if name == "" || strings.ContainsAny(name, "/?#{} ") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.attachments[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, name)
	}
	f.attachments[name] = a
	f.router.HandleFunc("/"+name, f.handle(name, a)).Methods(http.MethodPost)
	f.logger.Debug("attached handler", zap.String("name", name), zap.Bool("stream", a.stream != nil))
	return nil
}

// Attach registers a handler for requests named name. newBody returns an
// empty body of the request type
func (f *Fermion) Attach(name string, newBody func() any, handler Handler) error {
	return f.attach(name, attachment{newBody: newBody, handler: handler})
}

// AttachStream registers a streaming handler for requests named name
func (f *Fermion) AttachStream(name string, newBody func() any, handler StreamHandler) error {
	return f.attach(name, attachment{newBody: newBody, stream: handler})
}

// Handler returns the HTTP handler serving the attached request types
func (f *Fermion) Handler() http.Handler {
	return f.router
}

// ListenAndServe serves on addr until Shutdown is called
func (f *Fermion) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return f.Serve(l)
}

// Serve serves on an existing listener until Shutdown is called
func (f *Fermion) Serve(l net.Listener) error {
	server := &http.Server{
		Handler:           f.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	f.mutex.Lock()
	f.server = server
	f.mutex.Unlock()
	f.logger.Info("serving", zap.String("address", l.Addr().String()))
	if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for active requests until ctx is done
func (f *Fermion) Shutdown(ctx context.Context) error {
	f.mutex.Lock()
	server := f.server
	f.server = nil
	f.mutex.Unlock()
	if server == nil {
		return ErrNotServing
	}
	return server.Shutdown(ctx)
}
