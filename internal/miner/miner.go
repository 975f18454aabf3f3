// Package miner builds blocks on top of a parent and seals them with the
// chain's seal engine.
package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// ErrBlockGasExhausted marks a transaction that no longer fits the block gas
// limit.
var ErrBlockGasExhausted = errors.New("block gas limit exhausted")

// Template carries the caller's choices for a new block. A zero GasLimit
// inherits the parent's.
type Template struct {
	Timestamp uint64
	GasLimit  uint64
	Extra     []byte
}

// Dropped is a candidate transaction left out of a block.
type Dropped struct {
	Tx  *tx.Transaction
	Err error
}

// Result is a built block and what went into it.
type Result struct {
	Block   *block.Block
	Dropped []Dropped
	Reward  *uint256.Int
}

// Builder assembles blocks for one engine.
type Builder struct {
	engine consensus.SealEngine
	maxTxs int
}

// NewBuilder creates a block builder for a bound engine.
func NewBuilder(engine consensus.SealEngine) *Builder {
	return &Builder{engine: engine, maxTxs: block.MaxBlockTxs}
}

// Build links a new header onto parent, admits the candidate transactions
// that pass the engine's rules, and seals the result when the engine can.
// Inadmissible candidates are reported in Result.Dropped, not as an error.
func (b *Builder) Build(ctx context.Context, parent *block.Header, candidates []*tx.Transaction, tmpl Template) (*Result, error) {
	if parent == nil {
		return nil, fmt.Errorf("parent header is nil")
	}
	if b.engine.ChainParams() == nil {
		return nil, fmt.Errorf("engine %s: %w", b.engine.Name(), consensus.ErrNotConfigured)
	}

	// Block timestamp must be strictly after parent.
	timestamp := tmpl.Timestamp
	if timestamp <= parent.Timestamp {
		timestamp = parent.Timestamp + 1
	}

	header := b.engine.PopulateFromParent(block.Header{
		Timestamp: timestamp,
		Extra:     append([]byte(nil), tmpl.Extra...),
	}, parent)
	if tmpl.GasLimit != 0 {
		header.GasLimit = tmpl.GasLimit
	}

	var (
		included []*tx.Transaction
		dropped  []Dropped
		gasUsed  uint64
	)
	for _, t := range candidates {
		if t == nil {
			continue
		}
		if len(included) == b.maxTxs || header.GasLimit-gasUsed < t.Gas {
			dropped = append(dropped, Dropped{Tx: t, Err: ErrBlockGasExhausted})
			continue
		}
		err := b.engine.VerifyTransaction(consensus.CheckTransactions, t, &header, gasUsed)
		if err == nil {
			err = consensus.VerifyChainID(b.engine.ChainParams(), t)
		}
		if err != nil {
			log.Miner.Debug().
				Err(err).
				Str("tx", t.Hash().String()).
				Uint64("number", header.Number).
				Msg("Dropping inadmissible transaction")
			dropped = append(dropped, Dropped{Tx: t, Err: err})
			continue
		}
		included = append(included, t)
		gasUsed += t.Gas
	}

	header.GasUsed = gasUsed
	header.TxRoot = block.TxRoot(included)

	if sealer, ok := b.engine.(consensus.Sealer); ok {
		start := time.Now()
		if err := sealer.Seal(ctx, &header); err != nil {
			return nil, fmt.Errorf("seal block %d: %w", header.Number, err)
		}
		log.Miner.Debug().
			Uint64("number", header.Number).
			Dur("took", time.Since(start)).
			Msg("Block sealed")
	}

	if err := b.engine.Verify(consensus.CheckEverything, &header, parent, included); err != nil {
		return nil, fmt.Errorf("built block fails verification: %w", err)
	}

	reward := b.engine.BlockReward(header.Number)
	blk := block.NewBlock(&header, included)

	log.Miner.Info().
		Uint64("number", header.Number).
		Str("hash", blk.Hash().String()).
		Int("txs", len(included)).
		Int("dropped", len(dropped)).
		Str("reward", reward.Dec()).
		Msg("Block built")

	return &Result{Block: blk, Dropped: dropped, Reward: reward}, nil
}

// Chain is the part of a chain the miner extends.
type Chain interface {
	Head() (*block.Block, error)
	ImportBlock(ctx context.Context, blk *block.Block, ir consensus.ImportRequirements) error
}

// MempoolSelector selects transactions for block inclusion and is told
// what happened to them.
type MempoolSelector interface {
	SelectForBlock(limit int) []*tx.Transaction
	RemoveConfirmed(txs []*tx.Transaction)
	Remove(txHash types.Hash)
	Revalidate() (int, error)
}

// Miner builds blocks on a chain's head and imports them.
type Miner struct {
	chain   Chain
	builder *Builder
	pool    MempoolSelector
	now     func() uint64
}

// New creates a miner for chain driven by engine. pool may be nil.
func New(chain Chain, engine consensus.SealEngine, pool MempoolSelector) *Miner {
	return &Miner{
		chain:   chain,
		builder: NewBuilder(engine),
		pool:    pool,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// ProduceBlock builds a block on the current head from txs followed by the
// pool's selection, imports it with full checks, and returns the build
// result. Included transactions leave the pool, as do those the engine
// rejected; transactions that only ran out of block gas stay for the next
// block.
func (m *Miner) ProduceBlock(ctx context.Context, txs []*tx.Transaction) (*Result, error) {
	head, err := m.chain.Head()
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}

	candidates := txs
	if m.pool != nil {
		if room := m.builder.maxTxs - len(txs); room > 0 {
			candidates = append(append([]*tx.Transaction(nil), txs...), m.pool.SelectForBlock(room)...)
		}
	}

	res, err := m.builder.Build(ctx, head.Header, candidates, Template{Timestamp: m.now()})
	if err != nil {
		return nil, err
	}
	if err := m.chain.ImportBlock(ctx, res.Block, consensus.Everything); err != nil {
		return nil, fmt.Errorf("import built block: %w", err)
	}

	if m.pool != nil {
		m.pool.RemoveConfirmed(res.Block.Transactions)
		for _, d := range res.Dropped {
			if !errors.Is(d.Err, ErrBlockGasExhausted) {
				m.pool.Remove(d.Tx.Hash())
			}
		}
		if _, err := m.pool.Revalidate(); err != nil {
			log.Miner.Warn().Err(err).Msg("Mempool revalidation failed")
		}
	}
	return res, nil
}
