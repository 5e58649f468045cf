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

package main

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// runConfig prints the effective configuration with the hotkey seed redacted
func runConfig(a *app, _ []string) error {
	cfg := *a.config
	if cfg.Wallet.HotkeySeed != "" {
		cfg.Wallet.HotkeySeed = "<redacted>"
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
