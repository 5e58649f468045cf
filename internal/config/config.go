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

// Package config loads the command line tool settings from a YAML file
// with GOTENSOR_ environment overrides
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/gotensor"
	"github.com/spf13/viper"
)

const EnvPrefix = "GOTENSOR"

var ErrInvalidConfig = errors.New("invalid configuration")

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type WalletConfig struct {
	// HotkeySeed is a hex ed25519 seed
	HotkeySeed     string `mapstructure:"hotkey_seed" yaml:"hotkey_seed"`
	HotkeySeedFile string `mapstructure:"hotkey_seed_file" yaml:"hotkey_seed_file"`
}

type BosonConfig struct {
	ExternalIP  string        `mapstructure:"external_ip" yaml:"external_ip"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HistorySize int           `mapstructure:"history_size" yaml:"history_size"`
}

type FermionConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	ExternalIP    string `mapstructure:"external_ip" yaml:"external_ip"`
	ExternalPort  uint16 `mapstructure:"external_port" yaml:"external_port"`
}

type Config struct {
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Network       string        `mapstructure:"network" yaml:"network"`
	ChainEndpoint string        `mapstructure:"chain_endpoint" yaml:"chain_endpoint"`
	NetUID        uint16        `mapstructure:"netuid" yaml:"netuid"`
	SnapshotDir   string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	CacheDir      string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	Wallet        WalletConfig  `mapstructure:"wallet" yaml:"wallet"`
	Boson         BosonConfig   `mapstructure:"boson" yaml:"boson"`
	Fermion       FermionConfig `mapstructure:"fermion" yaml:"fermion"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("network", gotensor.NetworkFinney.Name)
	v.SetDefault("chain_endpoint", "")
	v.SetDefault("netuid", 1)
	v.SetDefault("snapshot_dir", "megastrings")
	v.SetDefault("cache_dir", "")
	v.SetDefault("wallet.hotkey_seed", "")
	v.SetDefault("wallet.hotkey_seed_file", "")
	v.SetDefault("boson.external_ip", "")
	v.SetDefault("boson.timeout", 12*time.Second)
	v.SetDefault("boson.history_size", 1024)
	v.SetDefault("fermion.listen_address", ":8091")
	v.SetDefault("fermion.external_ip", "")
	v.SetDefault("fermion.external_port", 8091)
}

// Load reads the config file at path, if any, and applies environment
// overrides such as GOTENSOR_BOSON_TIMEOUT
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings can be used together
func (c *Config) Validate() error {
	if c.ChainEndpoint == "" && !gotensor.NetworkByName(c.Network).Valid() {
		return fmt.Errorf("%w: unknown network %q and no chain endpoint", ErrInvalidConfig, c.Network)
	}
	if c.HotkeySeedConflict() {
		return fmt.Errorf("%w: hotkey_seed and hotkey_seed_file are both set", ErrInvalidConfig)
	}
	if c.Boson.Timeout <= 0 {
		return fmt.Errorf("%w: boson timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// HotkeySeedConflict reports whether both hotkey seed sources are set
func (c *Config) HotkeySeedConflict() bool {
	return c.Wallet.HotkeySeed != "" && c.Wallet.HotkeySeedFile != ""
}

// Endpoint returns the ledger node address, preferring an explicit chain
// endpoint over the network table
func (c *Config) Endpoint() string {
	if c.ChainEndpoint != "" {
		return c.ChainEndpoint
	}
	return gotensor.NetworkByName(c.Network).ChainEndpoint
}
