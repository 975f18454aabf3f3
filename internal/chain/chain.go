// Package chain stores blocks, admits new ones through a seal engine and
// tracks the canonical head.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/sealcore/config"
	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/internal/storage"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Import errors.
var (
	ErrKnownBlock         = errors.New("block already known")
	ErrUnknownParent      = errors.New("unknown parent block")
	ErrNotInitialized     = errors.New("chain not initialized")
	ErrAlreadyInitialized = errors.New("chain already initialized")
	ErrGenesisMismatch    = errors.New("genesis mismatch")
)

// DefaultKnownCacheSize is the number of recently seen block hashes kept in
// memory to short-circuit duplicate imports.
const DefaultKnownCacheSize = 1024

// Options tunes a Chain.
type Options struct {
	Workers   int // concurrent transaction checks per block, <= 0 for the validator default
	CacheSize int // known-block cache entries, <= 0 for DefaultKnownCacheSize
}

// Chain is a block store fronted by a seal engine.
type Chain struct {
	mu          sync.Mutex // Protects state and canonical index writes.
	state       *State
	blocks      *BlockStore
	engine      consensus.SealEngine
	validator   *consensus.Validator
	known       *lru.Cache[types.Hash, struct{}]
	genesisHash types.Hash
}

// chainPrefix namespaces a chain's keys by chain ID so several chains can
// share one database.
func chainPrefix(chainID uint64) []byte {
	p := make([]byte, 2+8+1)
	copy(p, "c/")
	binary.BigEndian.PutUint64(p[2:10], chainID)
	p[10] = '/'
	return p
}

// New creates a chain over db for an engine that already has its chain
// parameters bound.
func New(db storage.DB, engine consensus.SealEngine, opts Options) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("seal engine is nil")
	}
	p := engine.ChainParams()
	if p == nil {
		return nil, fmt.Errorf("engine %s: %w", engine.Name(), consensus.ErrNotConfigured)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultKnownCacheSize
	}
	known, err := lru.New[types.Hash, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("known block cache: %w", err)
	}

	blocks := NewBlockStore(storage.NewPrefixDB(db, chainPrefix(p.ChainID)))

	headHash, height, found, err := blocks.GetHead()
	if err != nil {
		return nil, fmt.Errorf("recover head: %w", err)
	}

	c := &Chain{
		state:     &State{},
		blocks:    blocks,
		engine:    engine,
		validator: consensus.NewValidator(engine, opts.Workers),
		known:     known,
	}

	if found {
		head, err := blocks.GetHeader(headHash)
		if err != nil {
			return nil, fmt.Errorf("load head block: %w", err)
		}
		genHash, err := blocks.GetHashByNumber(0)
		if err != nil {
			return nil, fmt.Errorf("load genesis hash: %w", err)
		}
		c.state = &State{Height: height, HeadHash: headHash, HeadTimestamp: head.Timestamp}
		c.genesisHash = genHash
		log.Chain.Info().
			Uint64("height", height).
			Str("head", headHash.String()).
			Msg("Chain state recovered")
	}

	return c, nil
}

// InitFromGenesis stores the genesis block of a fresh chain. Calling it
// again with the same genesis is a no-op.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis: %w", err)
	}
	hash := blk.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		if c.genesisHash == hash {
			return nil
		}
		return fmt.Errorf("%w: stored %s, configured %s", ErrGenesisMismatch, c.genesisHash, hash)
	}

	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}

	c.state = &State{Height: 0, HeadHash: hash, HeadTimestamp: blk.Header.Timestamp}
	c.genesisHash = hash
	c.known.Add(hash, struct{}{})

	log.Chain.Info().Str("hash", hash.String()).Msg("Genesis block stored")
	return nil
}

// ImportBlock validates blk against ir and stores it. The block becomes the
// head if it extends the chain beyond the current height; otherwise it is
// kept as a side block.
func (c *Chain) ImportBlock(ctx context.Context, blk *block.Block, ir consensus.ImportRequirements) error {
	if blk == nil || blk.Header == nil {
		return block.Invalid(block.ErrNilHeader, "")
	}
	if c.genesisHash.IsZero() {
		return ErrNotInitialized
	}
	hash := blk.Hash()

	if c.known.Contains(hash) {
		return fmt.Errorf("%w: %s", ErrKnownBlock, hash)
	}
	if has, err := c.blocks.HasBlock(hash); err != nil {
		return fmt.Errorf("check block: %w", err)
	} else if has {
		c.known.Add(hash, struct{}{})
		return fmt.Errorf("%w: %s", ErrKnownBlock, hash)
	}

	// The parent must be stored even when ir skips the parent rules, so every
	// stored block can be walked back to genesis.
	var parent *block.Header
	if blk.Header.Number > 0 {
		p, err := c.blocks.GetHeader(blk.Header.ParentHash)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownParent, blk.Header.ParentHash)
		}
		if err != nil {
			return fmt.Errorf("load parent: %w", err)
		}
		if ir.Has(consensus.Parent) {
			parent = p
		}
	}

	if err := c.validator.ValidateBlock(ctx, blk, parent, ir); err != nil {
		log.Chain.Warn().
			Err(err).
			Uint64("number", blk.Header.Number).
			Str("hash", hash.String()).
			Str("requirements", ir.String()).
			Msg("Block rejected")
		return fmt.Errorf("block %d %s: %w", blk.Header.Number, hash, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if has, err := c.blocks.HasBlock(hash); err != nil {
		return fmt.Errorf("check block: %w", err)
	} else if has {
		return fmt.Errorf("%w: %s", ErrKnownBlock, hash)
	}

	if err := c.blocks.StoreBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	c.known.Add(hash, struct{}{})

	if blk.Header.Number <= c.state.Height {
		log.Chain.Debug().
			Uint64("number", blk.Header.Number).
			Str("hash", hash.String()).
			Msg("Side block stored")
		return nil
	}

	if err := c.setCanonical(blk); err != nil {
		return fmt.Errorf("set head: %w", err)
	}

	reward := c.engine.BlockReward(blk.Header.Number)
	log.Chain.Info().
		Uint64("number", blk.Header.Number).
		Str("hash", hash.String()).
		Int("txs", len(blk.Transactions)).
		Str("reward", reward.Dec()).
		Msg("Block imported")
	return nil
}

// Engine returns the chain's seal engine.
func (c *Chain) Engine() consensus.SealEngine {
	return c.engine
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// HeadHash returns the hash of the current head block.
func (c *Chain) HeadHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.HeadHash
}

// GenesisHash returns the hash of the stored genesis block.
func (c *Chain) GenesisHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genesisHash
}

// Head returns the current head block.
func (c *Chain) Head() (*block.Block, error) {
	return c.blocks.GetBlock(c.HeadHash())
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByNumber retrieves the canonical block at number.
func (c *Chain) GetBlockByNumber(number uint64) (*block.Block, error) {
	return c.blocks.GetBlockByNumber(number)
}

// HasBlock reports whether a block with hash is stored.
func (c *Chain) HasBlock(hash types.Hash) (bool, error) {
	if c.known.Contains(hash) {
		return true, nil
	}
	return c.blocks.HasBlock(hash)
}

// GetTxLocation returns the canonical block that contains txHash.
func (c *Chain) GetTxLocation(txHash types.Hash) (uint64, types.Hash, error) {
	return c.blocks.GetTxLocation(txHash)
}
