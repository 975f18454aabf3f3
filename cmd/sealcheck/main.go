// Sealcheck opens a chain, verifies blocks against its seal engine, and can
// produce dev blocks.
//
// Usage:
//
//	sealcheck [--network=dev] [--import=blocks.json] Import and verify blocks
//	sealcheck --mine=N [--key-file=authority.key]    Produce N blocks
//	sealcheck --txs=txs.json --mine=1               Mine queued transactions
//	sealcheck --help                                Show help
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/sealcore/config"
	"github.com/Klingon-tech/sealcore/internal/chain"
	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/internal/mempool"
	"github.com/Klingon-tech/sealcore/internal/miner"
	"github.com/Klingon-tech/sealcore/internal/signer"
	"github.com/Klingon-tech/sealcore/internal/storage"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/tx"
)

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		config.PrintUsage(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Println("sealcheck", config.Version)
		return
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Interrupted")
			return
		}
		log.Fatal().Err(err).Msg("sealcheck failed")
	}
}

func run(ctx context.Context, cfg *config.Config, flags *config.Flags) error {
	registry := consensus.Default()
	consensus.RegisterBuiltins(registry)
	if err := registry.SelfCheck(); err != nil {
		return fmt.Errorf("engine self-check: %w", err)
	}

	gen, err := cfg.Genesis()
	if err != nil {
		return err
	}
	p, err := gen.ChainParams()
	if err != nil {
		return fmt.Errorf("chain params: %w", err)
	}
	engine, err := registry.CreateFromParams(p)
	if err != nil {
		return err
	}
	if pow, ok := engine.(*consensus.ProofOfWork); ok {
		pow.Threads = cfg.Mining.Threads
	}

	db, err := storage.NewBadger(cfg.BlocksDir())
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := chain.New(db, engine, chain.Options{
		Workers:   cfg.Import.Workers,
		CacheSize: cfg.Import.CacheSize,
	})
	if err != nil {
		return err
	}
	if err := c.InitFromGenesis(gen); err != nil {
		return err
	}

	log.Info().
		Str("network", string(cfg.Network)).
		Str("engine", engine.Name()).
		Uint64("chain_id", p.ChainID).
		Uint64("height", c.Height()).
		Str("genesis", c.GenesisHash().String()).
		Msg("Chain opened")

	if flags.ImportFile != "" {
		ir := consensus.Everything
		if flags.SkipSeal {
			ir &^= consensus.ValidSeal
		}
		if err := importFile(ctx, c, flags.ImportFile, ir); err != nil {
			return err
		}
	}

	pool := mempool.New(engine, c, cfg.Mempool.MaxSize)
	pool.SetMinGasPrice(cfg.Mempool.MinGasPrice)
	if flags.TxFile != "" {
		if flags.MineBlocks == 0 {
			log.Warn().Msg("Queued transactions are only kept while mining (--mine)")
		}
		if err := queueFile(pool, flags.TxFile); err != nil {
			return err
		}
	}

	if flags.MineBlocks > 0 {
		if err := mine(ctx, cfg, c, engine, pool, flags.MineBlocks); err != nil {
			return err
		}
	}
	return nil
}

// queueFile adds a JSON array of transactions to pool. Inadmissible
// transactions are logged and skipped.
func queueFile(pool *mempool.Pool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tx file: %w", err)
	}
	var txs []*tx.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return fmt.Errorf("parse tx file: %w", err)
	}

	rejected := 0
	for i, t := range txs {
		if err := pool.Add(t); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Transaction rejected")
			rejected++
		}
	}
	log.Info().
		Int("queued", pool.Count()).
		Int("rejected", rejected).
		Msg("Transactions loaded")
	return nil
}

// importFile imports a JSON array of blocks in order. Blocks the chain
// already holds are skipped.
func importFile(ctx context.Context, c *chain.Chain, path string, ir consensus.ImportRequirements) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var blocks []*block.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}

	var imported, known int
	for _, blk := range blocks {
		err := c.ImportBlock(ctx, blk, ir)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, chain.ErrKnownBlock):
			known++
		default:
			return err
		}
	}
	log.Info().
		Int("imported", imported).
		Int("known", known).
		Uint64("height", c.Height()).
		Msg("Import complete")
	return nil
}

func mine(ctx context.Context, cfg *config.Config, c *chain.Chain, engine consensus.SealEngine, pool *mempool.Pool, n int) error {
	if ba, ok := engine.(*consensus.BasicAuthority); ok {
		key, err := authorityKey(cfg)
		if err != nil {
			return err
		}
		if err := ba.SetSigner(key); err != nil {
			return err
		}
		log.Info().Str("authority", key.Address().String()).Msg("Authority signer loaded")
	}

	m := miner.New(c, engine, pool)
	for i := 0; i < n; i++ {
		if _, err := m.ProduceBlock(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

// authorityKey loads the sealing key from the configured key file, falling
// back to the well-known dev key off mainnet.
func authorityKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	if cfg.Mining.KeyFile == "" {
		if cfg.Network == config.Mainnet {
			return nil, fmt.Errorf("mainnet authority mining requires --key-file")
		}
		log.Warn().Msg("Using the dev authority key")
		return signer.DevKey()
	}
	pass, err := signer.ReadPassphrase("Key file passphrase: ")
	if err != nil {
		return nil, err
	}
	return signer.LoadKeyFile(cfg.Mining.KeyFile, pass)
}
