package config

import (
	"fmt"

	"github.com/Klingon-tech/sealcore/internal/log"
)

// MaxImportWorkers caps concurrent transaction checks per block.
const MaxImportWorkers = 256

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Dev:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Dev)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.Import.Workers < 1 || cfg.Import.Workers > MaxImportWorkers {
		return fmt.Errorf("import.workers must be in range [1, %d]", MaxImportWorkers)
	}
	if cfg.Import.CacheSize < 1 {
		return fmt.Errorf("import.cache must be at least 1")
	}
	if cfg.Mempool.MaxSize < 1 {
		return fmt.Errorf("mempool.size must be at least 1")
	}
	if cfg.Mining.Threads < 1 {
		return fmt.Errorf("mining.threads must be at least 1")
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
