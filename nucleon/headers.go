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

package nucleon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Header keys of the flattened envelope. Terminal fields are prefixed with
// the terminal they belong to
const (
	HeaderName             = "name"
	HeaderTimeout          = "timeout"
	HeaderTotalSize        = "total-size"
	HeaderHeaderSize       = "header-size"
	HeaderComputedBodyHash = "computed-body-hash"

	dispatcherPrefix = "gt-dispatcher-"
	endpointPrefix   = "gt-endpoint-"
)

var (
	ErrMissingHeader = errors.New("missing required header")
	ErrInvalidHeader = errors.New("invalid header")
)

// RequiredHeaders must be present on every request received by an endpoint
var RequiredHeaders = []string{
	HeaderName,
	HeaderComputedBodyHash,
	dispatcherPrefix + "hotkey",
	dispatcherPrefix + "nonce",
	dispatcherPrefix + "uuid",
	dispatcherPrefix + "signature",
}

func flattenTerminal(prefix string, t TerminalInfo, ret map[string]string) {
	set := func(key string, value string, present bool) {
		if present {
			ret[prefix+key] = value
		}
	}
	set("status-code", strconv.Itoa(t.StatusCode), t.StatusCode != 0)
	set("status-message", t.StatusMessage, t.StatusMessage != "")
	set("process-time", strconv.FormatFloat(t.ProcessTime, 'f', -1, 64), t.ProcessTime != 0)
	set("ip", t.IP, t.IP != "")
	set("port", strconv.FormatUint(uint64(t.Port), 10), t.Port != 0)
	set("version", strconv.FormatUint(uint64(t.Version), 10), t.Version != 0)
	set("nonce", strconv.FormatUint(t.Nonce, 10), t.Nonce != 0)
	set("uuid", t.UUID, t.UUID != "")
	set("hotkey", t.Hotkey, t.Hotkey != "")
	set("signature", t.Signature, t.Signature != "")
}

// Headers flattens the envelope, without its body, into header key/value
// pairs. Unset fields are omitted
func (n *Nucleon) Headers() map[string]string {
	ret := map[string]string{
		HeaderName:       n.Name,
		HeaderTimeout:    strconv.FormatFloat(n.Timeout, 'f', -1, 64),
		HeaderTotalSize:  strconv.Itoa(n.TotalSize),
		HeaderHeaderSize: strconv.Itoa(n.HeaderSize),
	}
	if n.ComputedBodyHash != "" {
		ret[HeaderComputedBodyHash] = n.ComputedBodyHash
	}
	flattenTerminal(dispatcherPrefix, n.Dispatcher, ret)
	flattenTerminal(endpointPrefix, n.Endpoint, ret)
	return ret
}

// ComputeHeaderSize records the byte size of the flattened headers
func (n *Nucleon) ComputeHeaderSize() {
	n.HeaderSize = 0
	size := 0
	for k, v := range n.Headers() {
		size += len(k) + len(v)
	}
	n.HeaderSize = size
}

func parseTerminal(prefix string, headers map[string]string, t *TerminalInfo) error {
	parseUint := func(key string, bits int) (uint64, error) {
		value, ok := headers[prefix+key]
		if !ok {
			return 0, nil
		}
		ret, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return 0, fmt.Errorf("%w: %s%s: %w", ErrInvalidHeader, prefix, key, err)
		}
		return ret, nil
	}
	if value, ok := headers[prefix+"status-code"]; ok {
		code, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %sstatus-code: %w", ErrInvalidHeader, prefix, err)
		}
		t.StatusCode = code
	}
	if value, ok := headers[prefix+"process-time"]; ok {
		processTime, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %sprocess-time: %w", ErrInvalidHeader, prefix, err)
		}
		t.ProcessTime = processTime
	}
	port, err := parseUint("port", 16)
	if err != nil {
		return err
	}
	version, err := parseUint("version", 32)
	if err != nil {
		return err
	}
	nonce, err := parseUint("nonce", 64)
	if err != nil {
		return err
	}
	t.Port = uint16(port)
	t.Version = uint32(version)
	t.Nonce = nonce
	t.StatusMessage = headers[prefix+"status-message"]
	t.IP = headers[prefix+"ip"]
	t.UUID = headers[prefix+"uuid"]
	t.Hotkey = headers[prefix+"hotkey"]
	t.Signature = headers[prefix+"signature"]
	return nil
}

// ParseHeaders rebuilds an envelope, without its body, from flattened
// headers. Keys are matched case-insensitively
func ParseHeaders(headers map[string]string) (*Nucleon, error) {
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	ret := &Nucleon{Name: lower[HeaderName], ComputedBodyHash: lower[HeaderComputedBodyHash]}
	if value, ok := lower[HeaderTimeout]; ok {
		timeout, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidHeader, HeaderTimeout, err)
		}
		ret.Timeout = timeout
	}
	for key, dest := range map[string]*int{HeaderTotalSize: &ret.TotalSize, HeaderHeaderSize: &ret.HeaderSize} {
		value, ok := lower[key]
		if !ok {
			continue
		}
		size, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidHeader, key, err)
		}
		*dest = size
	}
	if err := parseTerminal(dispatcherPrefix, lower, &ret.Dispatcher); err != nil {
		return nil, err
	}
	if err := parseTerminal(endpointPrefix, lower, &ret.Endpoint); err != nil {
		return nil, err
	}
	return ret, nil
}

// CheckRequired returns an error naming the first required header missing
// from headers
func CheckRequired(headers map[string]string) error {
	for _, key := range RequiredHeaders {
		found := false
		for k := range headers {
			if strings.EqualFold(k, key) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrMissingHeader, key)
		}
	}
	return nil
}

// WriteHTTPHeaders sets the flattened headers on an HTTP header set
func (n *Nucleon) WriteHTTPHeaders(h http.Header) {
	for k, v := range n.Headers() {
		h.Set(k, v)
	}
}

// HTTPHeaderMap converts HTTP headers into the flat form accepted by
// ParseHeaders, keeping the first value of each key
func HTTPHeaderMap(h http.Header) map[string]string {
	ret := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			ret[strings.ToLower(k)] = v[0]
		}
	}
	return ret
}
