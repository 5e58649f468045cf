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
	"bufio"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/nucleon"
	"go.uber.org/zap"
)

// maxChunkSize bounds a single line of a streamed response
const maxChunkSize = 4 << 20

// StreamItem is one element of a streamed response. Every item but the
// last carries a Chunk; the last carries the final envelope
type StreamItem struct {
	Chunk   []byte
	Nucleon *nucleon.Nucleon
}

// ForwardStream sends body to a single endpoint that answers with
// newline-delimited chunks. Chunks are delivered in order as they arrive and
// are applied to the body when it implements nucleon.StreamingBody. The
// channel is closed after the final envelope, or early if ctx is done
func (b *Boson) ForwardStream(
	ctx context.Context,
	endpoint ledger.EndpointInfo,
	body any,
	options ...ForwardOptionFunc,
) <-chan StreamItem {
	opts := b.forwardOptions(options)
	ret := make(chan StreamItem)
	go func() {
		defer close(ret)
		send := func(item StreamItem) bool {
			select {
			case ret <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}
		n := b.stream(ctx, endpoint, body, opts, func(chunk []byte) bool {
			return send(StreamItem{Chunk: chunk})
		})
		send(StreamItem{Nucleon: n})
	}()
	return ret
}

func (b *Boson) stream(
	ctx context.Context,
	endpoint ledger.EndpointInfo,
	body any,
	opts forwardOptions,
	emit func([]byte) bool,
) *nucleon.Nucleon {
	logger := b.logger.With(
		zap.String("endpoint", endpoint.String()),
		zap.Bool("stream", true),
	)
	start := time.Now()
	n, err := b.prepare(endpoint, body, opts.timeout)
	defer func() {
		n.Dispatcher.ProcessTime = time.Since(start).Seconds()
		n.Dispatcher.StatusCode = n.Endpoint.StatusCode
		n.Dispatcher.StatusMessage = n.Endpoint.StatusMessage
		b.archive(n)
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
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := b.httpClient().Do(req)
	if err != nil {
		b.fail(logger, n, err)
		return n
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		b.failFromResponse(n, resp.StatusCode, data)
		return n
	}
	streaming, _ := n.Body.(nucleon.StreamingBody)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		chunk := append([]byte(nil), line...)
		if streaming != nil && opts.deserialize {
			if err := streaming.ApplyChunk(chunk); err != nil {
				logger.Warn("failed to apply chunk", zap.Error(err))
			}
		}
		if !emit(chunk) {
			n.Fail(nucleon.StatusServiceUnavailable, nucleon.MessageServiceUnavailable)
			return n
		}
	}
	if err := scanner.Err(); err != nil {
		b.fail(logger, n, err)
		return n
	}
	// terminal fields of a stream travel in the response headers
	server, err := nucleon.ParseHeaders(nucleon.HTTPHeaderMap(resp.Header))
	if err != nil {
		logger.Warn("failed to parse response headers", zap.Error(err))
		server = &nucleon.Nucleon{}
	}
	mergeTerminal(n, server)
	if n.Endpoint.StatusCode == 0 {
		n.Endpoint.StatusCode = nucleon.StatusOK
		n.Endpoint.StatusMessage = nucleon.MessageSuccess
	}
	return n
}
