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

package boson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/nucleon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxResponseSize bounds the size of a non-streamed response body
const maxResponseSize = 64 << 20

type forwardOptions struct {
	timeout     time.Duration
	deserialize bool
	sequential  bool
}

// ForwardOptionFunc is a type that represents functions that modify the
// options of a single forward call
type ForwardOptionFunc func(*forwardOptions)

// WithTimeout specifies the per-endpoint timeout of the call
func WithTimeout(timeout time.Duration) ForwardOptionFunc {
	return func(o *forwardOptions) {
		o.timeout = timeout
	}
}

// WithDeserialize controls whether response bodies are decoded into the
// local body. It defaults to true
func WithDeserialize(deserialize bool) ForwardOptionFunc {
	return func(o *forwardOptions) {
		o.deserialize = deserialize
	}
}

// WithSequential makes a batch call its endpoints one at a time, in order
func WithSequential() ForwardOptionFunc {
	return func(o *forwardOptions) {
		o.sequential = true
	}
}

func (b *Boson) forwardOptions(options []ForwardOptionFunc) forwardOptions {
	ret := forwardOptions{
		timeout:     b.config.Timeout,
		deserialize: true,
	}
	for _, option := range options {
		option(&ret)
	}
	if ret.timeout <= 0 {
		ret.timeout = nucleon.DefaultTimeout
	}
	return ret
}

// Forward sends body to a single endpoint and returns its envelope
func (b *Boson) Forward(
	ctx context.Context,
	endpoint ledger.EndpointInfo,
	body any,
	options ...ForwardOptionFunc,
) *nucleon.Nucleon {
	return b.forward(ctx, []ledger.EndpointInfo{endpoint}, body, false, options)[0]
}

// ForwardMany sends body to every endpoint and returns one envelope per
// endpoint, in the order given
func (b *Boson) ForwardMany(
	ctx context.Context,
	endpoints []ledger.EndpointInfo,
	body any,
	options ...ForwardOptionFunc,
) []*nucleon.Nucleon {
	return b.forward(ctx, endpoints, body, true, options)
}

// Query is the blocking form of ForwardMany for callers without a context.
// The connection pool is released before it returns
func (b *Boson) Query(
	endpoints []ledger.EndpointInfo,
	body any,
	options ...ForwardOptionFunc,
) []*nucleon.Nucleon {
	defer b.closePool()
	return b.ForwardMany(context.Background(), endpoints, body, options...)
}

func (b *Boson) forward(
	ctx context.Context,
	endpoints []ledger.EndpointInfo,
	body any,
	isList bool,
	options []ForwardOptionFunc,
) []*nucleon.Nucleon {
	opts := b.forwardOptions(options)
	ret := make([]*nucleon.Nucleon, len(endpoints))
	if opts.sequential || len(endpoints) < 2 {
		for idx, endpoint := range endpoints {
			ret[idx] = b.call(ctx, endpoint, body, opts)
		}
	} else {
		var g errgroup.Group
		for idx, endpoint := range endpoints {
			g.Go(func() error {
				ret[idx] = b.call(ctx, endpoint, body, opts)
				return nil
			})
		}
		_ = g.Wait()
	}
	b.logger.Debug(
		"forwarded query",
		zap.Int("endpoints", len(endpoints)),
		zap.Bool("list", isList),
		zap.Bool("sequential", opts.sequential),
	)
	return ret
}

// targetIP returns the address to dial for an endpoint
func (b *Boson) targetIP(endpoint ledger.EndpointInfo) string {
	if b.config.ExternalIP != "" && endpoint.IP == b.config.ExternalIP {
		return LoopbackIP
	}
	return endpoint.IP
}

// prepare builds the signed envelope for one endpoint around a private copy
// of body
func (b *Boson) prepare(endpoint ledger.EndpointInfo, body any, timeout time.Duration) (*nucleon.Nucleon, error) {
	n := nucleon.New(body)
	n.Timeout = timeout.Seconds()
	n.Dispatcher = nucleon.TerminalInfo{
		IP:      b.config.ExternalIP,
		Port:    b.config.ExternalPort,
		Version: b.config.Version,
		Nonce:   b.nextNonce(),
		UUID:    b.uuid,
		Hotkey:  b.signer.Address(),
	}
	n.Endpoint = nucleon.TerminalInfo{
		IP:     endpoint.IP,
		Port:   endpoint.Port,
		Hotkey: endpoint.Hotkey,
	}
	clone, err := nucleon.CloneBody(body)
	if err != nil {
		return n, err
	}
	n.Body = clone
	if err := n.HashBody(); err != nil {
		return n, err
	}
	if err := n.Sign(b.signer); err != nil {
		return n, err
	}
	n.ComputeHeaderSize()
	return n, nil
}

// newRequest builds the HTTP request for an envelope
func (b *Boson) newRequest(ctx context.Context, endpoint ledger.EndpointInfo, n *nucleon.Nucleon) (*http.Request, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf(
		"http://%s/%s",
		net.JoinHostPort(b.targetIP(endpoint), strconv.Itoa(int(endpoint.Port))),
		n.Name,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	n.WriteHTTPHeaders(req.Header)
	return req, nil
}

// callContext bounds a call by its timeout and by the lifetime of the
// dispatcher
func (b *Boson) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	stop := context.AfterFunc(b.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// call performs one exchange. It never fails: errors are reported in the
// status fields of the envelope
func (b *Boson) call(ctx context.Context, endpoint ledger.EndpointInfo, body any, opts forwardOptions) *nucleon.Nucleon {
	logger := b.logger.With(zap.String("endpoint", endpoint.String()))
	start := time.Now()
	n, err := b.prepare(endpoint, body, opts.timeout)
	defer func() {
		n.Dispatcher.ProcessTime = time.Since(start).Seconds()
		n.Dispatcher.StatusCode = n.Endpoint.StatusCode
		n.Dispatcher.StatusMessage = n.Endpoint.StatusMessage
		b.archive(n)
		logger.Debug(
			"exchange completed",
			zap.Int("status", n.Endpoint.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()
	if err != nil {
		logger.Warn("failed to prepare query", zap.Error(err))
		n.Fail(nucleon.StatusParseFailure, nucleon.MessageParseFailure)
		return n
	}
	if b.closed.Load() {
		n.Fail(nucleon.StatusServiceUnavailable, nucleon.MessageServiceUnavailable)
		return n
	}
	callCtx, cancel := b.callContext(ctx, opts.timeout)
	defer cancel()
	req, err := b.newRequest(callCtx, endpoint, n)
	if err != nil {
		b.fail(logger, n, err)
		return n
	}
	resp, err := b.httpClient().Do(req)
	if err != nil {
		b.fail(logger, n, err)
		return n
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		b.fail(logger, n, err)
		return n
	}
	if resp.StatusCode != http.StatusOK {
		b.failFromResponse(n, resp.StatusCode, data)
		return n
	}
	b.merge(logger, n, data, opts.deserialize)
	return n
}

// fail records a transport level failure
func (b *Boson) fail(logger *zap.Logger, n *nucleon.Nucleon, err error) {
	code, message := classify(err)
	n.Fail(code, message)
	logger.Debug("query failed", zap.Int("status", code), zap.Error(err))
}

// failFromResponse records a non-200 answer, preferring the status carried
// in the returned envelope
func (b *Boson) failFromResponse(n *nucleon.Nucleon, statusCode int, data []byte) {
	if server, err := nucleon.Decode(data, nil); err == nil && server.Endpoint.StatusCode != 0 {
		mergeTerminal(n, server)
		return
	}
	message := http.StatusText(statusCode)
	if text := bytes.TrimSpace(data); len(text) > 0 && len(text) < 256 {
		message = string(text)
	}
	n.Fail(statusCode, message)
}

// classify maps a transport error to a status code and message
func classify(err error) (int, string) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return nucleon.StatusTimeout, nucleon.MessageTimeout
	case isConnectionError(err):
		return nucleon.StatusServiceUnavailable, nucleon.MessageServiceUnavailable
	default:
		return nucleon.StatusParseFailure, nucleon.MessageParseFailure
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// mergeTerminal copies the fields the endpoint is authoritative for
func mergeTerminal(n *nucleon.Nucleon, server *nucleon.Nucleon) {
	n.Endpoint.StatusCode = server.Endpoint.StatusCode
	n.Endpoint.StatusMessage = server.Endpoint.StatusMessage
	n.Endpoint.ProcessTime = server.Endpoint.ProcessTime
	n.Endpoint.Version = server.Endpoint.Version
	n.Endpoint.Nonce = server.Endpoint.Nonce
	n.Endpoint.UUID = server.Endpoint.UUID
	n.Endpoint.Signature = server.Endpoint.Signature
}

// merge applies a 200 response to the local envelope. The body is replaced
// only when the endpoint allows mutation and the response decodes into the
// local body type
func (b *Boson) merge(logger *zap.Logger, n *nucleon.Nucleon, data []byte, deserialize bool) {
	var target any
	if deserialize && n.Body != nil {
		clone, err := nucleon.CloneBody(n.Body)
		if err != nil {
			logger.Warn("failed to copy body for response", zap.Error(err))
		} else {
			target = clone
		}
	}
	server, err := nucleon.Decode(data, target)
	if server == nil {
		logger.Debug("failed to parse response", zap.Error(err))
		n.Fail(nucleon.StatusParseFailure, nucleon.MessageParseFailure)
		return
	}
	mergeTerminal(n, server)
	if n.Endpoint.StatusCode == 0 {
		n.Endpoint.StatusCode = nucleon.StatusOK
		n.Endpoint.StatusMessage = nucleon.MessageSuccess
	}
	if server.Endpoint.Hotkey != "" && server.Endpoint.Hotkey != n.Endpoint.Hotkey {
		logger.Warn(
			"endpoint answered with an unexpected hotkey",
			zap.String("hotkey", server.Endpoint.Hotkey),
		)
	}
	if n.Endpoint.Signature != "" {
		if err := n.VerifyEndpoint(); err != nil {
			logger.Warn("endpoint signature does not verify", zap.Error(err))
		}
	}
	switch {
	case err != nil:
		logger.Warn("response body does not match the request type, keeping local body", zap.Error(err))
	case target != nil && server.AllowMutation:
		n.Body = target
	}
}
