// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, immutable, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType selects a genesis preset and a data subdirectory.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Dev     NetworkType = "dev"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network     NetworkType `conf:"network"`
	DataDir     string      `conf:"datadir"`
	GenesisFile string      `conf:"genesis"` // overrides the network preset

	// Block import
	Import ImportConfig

	// Pending transactions
	Mempool MempoolConfig

	// Block production
	Mining MiningConfig

	// Logging
	Log LogConfig
}

// ImportConfig tunes block import.
type ImportConfig struct {
	Workers   int `conf:"import.workers"` // concurrent transaction checks per block
	CacheSize int `conf:"import.cache"`   // known-block cache entries
}

// MempoolConfig holds pending-transaction pool settings.
type MempoolConfig struct {
	MaxSize     int    `conf:"mempool.size"`          // pool capacity in transactions
	MinGasPrice uint64 `conf:"mempool.min_gas_price"` // 0 = accept any price
}

// MiningConfig holds block production settings.
type MiningConfig struct {
	Threads int    `conf:"mining.threads"` // PoW sealing threads
	KeyFile string `conf:"mining.keyfile"` // encrypted authority key (BasicAuthority)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.sealcore
//	macOS:   ~/Library/Application Support/Sealcore
//	Windows: %APPDATA%\Sealcore
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sealcore"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Sealcore")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Sealcore")
		}
		return filepath.Join(home, "AppData", "Roaming", "Sealcore")
	default:
		return filepath.Join(home, ".sealcore")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// BlocksDir returns the block database directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// KeystoreDir returns the directory for authority key files.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "sealcore.conf")
}

// Genesis returns the genesis in force: the configured genesis file when
// set, otherwise the network preset.
func (c *Config) Genesis() (*Genesis, error) {
	if c.GenesisFile != "" {
		return LoadGenesis(c.GenesisFile)
	}
	return GenesisFor(c.Network), nil
}
