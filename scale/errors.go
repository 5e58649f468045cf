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

package scale

import (
	"errors"
	"fmt"
)

var (
	ErrTrailingBytes   = errors.New("trailing bytes after decoded value")
	ErrCompactOverflow = errors.New("compact integer out of range")
	ErrInvalidBool     = errors.New("invalid boolean byte")
	ErrInvalidOption   = errors.New("invalid option discriminant")
	ErrInvalidUTF8     = errors.New("string is not valid UTF-8")
	ErrNegativeValue   = errors.New("negative values cannot be encoded")
	ErrUnsupportedType = errors.New("unsupported type")
)

// DecodeError describes a failure while reading a value at a given offset
type DecodeError struct {
	Offset int
	Type   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("scale: decoding %s at offset %d: %s", e.Type, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
