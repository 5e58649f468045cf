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

package gotensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the software version announced in dispatcher and endpoint
// headers
const Version = "0.4.0"

// VersionAsInt returns a version string in its integer form, where 1.2.3
// becomes 123
func VersionAsInt(version string) (uint32, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid version %q", version)
	}
	var ret uint32
	for idx, weight := range []uint32{100, 10, 1} {
		n, err := strconv.ParseUint(parts[idx], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", version, err)
		}
		ret += weight * uint32(n)
	}
	return ret, nil
}

// VersionInt is Version in integer form
func VersionInt() uint32 {
	ret, err := VersionAsInt(Version)
	if err != nil {
		panic(err)
	}
	return ret
}
