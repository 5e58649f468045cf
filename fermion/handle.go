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

package fermion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blinklabs-io/gotensor/nucleon"
	"go.uber.org/zap"
)

// requestError is a rejected request with the status to answer with
type requestError struct {
	code    int
	message string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%d: %s", e.code, e.message)
}

func reject(code int, format string, args ...any) *requestError {
	return &requestError{code: code, message: fmt.Sprintf(format, args...)}
}

// StreamWriter writes newline-delimited response chunks
type StreamWriter struct {
	w          http.ResponseWriter
	controller *http.ResponseController
}

// WriteChunk writes v as one JSON line and flushes it to the dispatcher
func (s *StreamWriter) WriteChunk(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.WriteRaw(data)
}

// WriteRaw writes an already encoded chunk, which must not contain a
// newline
func (s *StreamWriter) WriteRaw(chunk []byte) error {
	if _, err := s.w.Write(append(chunk, '\n')); err != nil {
		return err
	}
	if err := s.controller.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (f *Fermion) handleNotFound(w http.ResponseWriter, r *http.Request) {
	n := &nucleon.Nucleon{}
	if parsed, err := nucleon.ParseHeaders(nucleon.HTTPHeaderMap(r.Header)); err == nil {
		n = parsed
	}
	f.writeError(w, n, reject(http.StatusNotFound, "no handler for %s", r.URL.Path))
}

// nonceWindow tracks the nonces accepted from one dispatcher instance.
// Requests sent concurrently can arrive out of order, so a nonce below the
// highest one is accepted once while it is still inside the window
type nonceWindow struct {
	high uint64
	seen map[uint64]struct{}
}

func (w *nonceWindow) accept(nonce uint64, size uint64) bool {
	if nonce < w.high && w.high-nonce > size {
		return false
	}
	if _, ok := w.seen[nonce]; ok {
		return false
	}
	w.seen[nonce] = struct{}{}
	if nonce > w.high {
		w.high = nonce
	}
	if uint64(len(w.seen)) > size+1 {
		for n := range w.seen {
			if w.high-n > size {
				delete(w.seen, n)
			}
		}
	}
	return true
}

// checkNonce records nonce for the (hotkey, uuid) pair, refusing replays
// and nonces that fell out of the window
func (f *Fermion) checkNonce(hotkey string, uuid string, nonce uint64) error {
	key := hotkey + "." + uuid
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.nonces[key]
	if !ok {
		f.nonces[key] = &nonceWindow{
			high: nonce,
			seen: map[uint64]struct{}{nonce: {}},
		}
		return nil
	}
	if !w.accept(nonce, f.config.NonceWindow) {
		return reject(http.StatusUnauthorized, "nonce %d was already used or is too old", nonce)
	}
	return nil
}

// verify parses and authenticates a request
func (f *Fermion) verify(w http.ResponseWriter, r *http.Request, name string, a attachment) (*nucleon.Nucleon, error) {
	headers := nucleon.HTTPHeaderMap(r.Header)
	if err := nucleon.CheckRequired(headers); err != nil {
		return nil, reject(http.StatusBadRequest, "%s", err)
	}
	parsed, err := nucleon.ParseHeaders(headers)
	if err != nil {
		return nil, reject(http.StatusBadRequest, "%s", err)
	}
	if parsed.Name != name {
		return parsed, reject(http.StatusBadRequest, "request name %q does not match route %q", parsed.Name, name)
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, f.config.MaxBodySize))
	if err != nil {
		return parsed, reject(http.StatusBadRequest, "read body: %s", err)
	}
	raw, err := nucleon.RawBody(data)
	if err != nil {
		return parsed, reject(http.StatusBadRequest, "decode envelope: %s", err)
	}
	if nucleon.HashBytes(raw) != parsed.ComputedBodyHash {
		return parsed, reject(http.StatusBadRequest, "body hash mismatch")
	}
	decoded, err := nucleon.Decode(data, a.newBody())
	if err != nil {
		return parsed, reject(http.StatusBadRequest, "decode body: %s", err)
	}
	// identity comes from the signed headers, not the body
	parsed.Body = decoded.Body
	parsed.TotalSize = len(raw)
	if f.config.Blacklist != nil && f.config.Blacklist(parsed.Dispatcher.Hotkey, name) {
		return parsed, reject(http.StatusUnauthorized, "hotkey %s is blacklisted", parsed.Dispatcher.Hotkey)
	}
	if parsed.Endpoint.Hotkey != f.signer.Address() {
		return parsed, reject(http.StatusUnauthorized, "request is addressed to %s", parsed.Endpoint.Hotkey)
	}
	if err := parsed.Verify(); err != nil {
		return parsed, reject(http.StatusUnauthorized, "signature: %s", err)
	}
	if err := f.checkNonce(parsed.Dispatcher.Hotkey, parsed.Dispatcher.UUID, parsed.Dispatcher.Nonce); err != nil {
		return parsed, err
	}
	return parsed, nil
}

// respond fills in and signs the endpoint terminal of a response
func (f *Fermion) respond(n *nucleon.Nucleon, code int, message string, start time.Time) {
	n.AllowMutation = true
	n.Endpoint = nucleon.TerminalInfo{
		StatusCode:    code,
		StatusMessage: message,
		ProcessTime:   time.Since(start).Seconds(),
		IP:            f.config.ExternalIP,
		Port:          f.config.ExternalPort,
		Version:       f.config.Version,
		Nonce:         f.nonce.Add(1),
		UUID:          f.uuid,
		Hotkey:        f.signer.Address(),
	}
	if err := n.SignEndpoint(f.signer); err != nil {
		f.logger.Warn("failed to sign response", zap.Error(err))
	}
}

func (f *Fermion) writeError(w http.ResponseWriter, n *nucleon.Nucleon, err error) {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		reqErr = reject(http.StatusInternalServerError, "%s", err)
	}
	n.Body = nil
	f.respond(n, reqErr.code, reqErr.message, time.Now())
	f.writeEnvelope(w, n, reqErr.code)
}

func (f *Fermion) writeEnvelope(w http.ResponseWriter, n *nucleon.Nucleon, code int) {
	data, err := json.Marshal(n)
	if err != nil {
		f.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	n.WriteHTTPHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		f.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (f *Fermion) handle(name string, a attachment) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := f.logger.With(zap.String("name", name), zap.String("remote", r.RemoteAddr))
		n, err := f.verify(w, r, name, a)
		if err != nil {
			if n == nil {
				n = &nucleon.Nucleon{Name: name}
			}
			logger.Debug("rejected request", zap.Error(err))
			f.writeError(w, n, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), n.TimeoutDuration())
		defer cancel()
		if a.stream != nil {
			f.respond(n, nucleon.StatusOK, nucleon.MessageSuccess, start)
			n.WriteHTTPHeaders(w.Header())
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			sw := &StreamWriter{w: w, controller: http.NewResponseController(w)}
			if err := a.stream(ctx, n, sw); err != nil {
				logger.Warn("stream handler failed", zap.Error(err))
			}
			return
		}
		if err := a.handler(ctx, n); err != nil {
			logger.Warn("handler failed", zap.Error(err))
			f.writeError(w, n, err)
			return
		}
		f.respond(n, nucleon.StatusOK, nucleon.MessageSuccess, start)
		f.writeEnvelope(w, n, http.StatusOK)
		logger.Debug(
			"served request",
			zap.String("dispatcher", n.Dispatcher.Hotkey),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
