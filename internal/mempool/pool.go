// Package mempool manages pending transactions waiting for block inclusion.
//
// Every transaction is screened against the seal engine's admission rules
// for the block after the current head, so the pool only hands the miner
// transactions the next block can carry.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrFeeTooLow     = errors.New("transaction gas price below minimum")
	ErrIntrinsicGas  = errors.New("gas below intrinsic cost")
)

// DefaultMaxSize is the pool capacity used when New is given none.
const DefaultMaxSize = 5000

// Chain is the part of a chain the pool screens against.
type Chain interface {
	Head() (*block.Block, error)
}

// senderNonce identifies a sender's slot. At most one pending transaction
// holds each slot.
type senderNonce struct {
	sender types.Address
	nonce  uint64
}

// entry wraps a transaction with its hash and sender.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	slot   senderNonce
	keyed  bool // false for zero-signature transactions, which have no sender
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu          sync.RWMutex
	txs         map[types.Hash]*entry      // txHash -> entry
	slots       map[senderNonce]types.Hash // (sender, nonce) -> txHash
	maxSize     int
	minGasPrice uint64 // 0 = no minimum
	policy      *Policy

	engine consensus.SealEngine
	chain  Chain
}

// New creates a pool that screens transactions with engine against the
// block after chain's head.
func New(engine consensus.SealEngine, chain Chain, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		slots:   make(map[senderNonce]types.Hash),
		maxSize: maxSize,
		policy:  DefaultPolicy(),
		engine:  engine,
		chain:   chain,
	}
}

// SetMinGasPrice sets the minimum gas price for signed transactions.
// Zero-signature transactions must carry a zero price and are exempt.
func (p *Pool) SetMinGasPrice(price uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minGasPrice = price
}

// MinGasPrice returns the current minimum gas price.
func (p *Pool) MinGasPrice() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minGasPrice
}

// SetPolicy replaces the acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// pendingHeader returns the header the next block would start from.
func (p *Pool) pendingHeader() (*block.Header, error) {
	if p.engine.ChainParams() == nil {
		return nil, fmt.Errorf("engine %s: %w", p.engine.Name(), consensus.ErrNotConfigured)
	}
	head, err := p.chain.Head()
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	h := p.engine.PopulateFromParent(block.Header{Timestamp: head.Header.Timestamp + 1}, head.Header)
	return &h, nil
}

// admit runs the engine's transaction rules for the pending block.
func (p *Pool) admit(t *tx.Transaction, pending *block.Header) error {
	if err := p.engine.VerifyTransaction(consensus.CheckTransactions, t, pending, 0); err != nil {
		return err
	}
	if err := consensus.VerifyChainID(p.engine.ChainParams(), t); err != nil {
		return err
	}
	if need := p.engine.EVMSchedule(pending.Number).IntrinsicGas(t.Data, t.IsContractCreation()); t.Gas < need {
		return fmt.Errorf("%w: have %d, need %d", ErrIntrinsicGas, t.Gas, need)
	}
	return nil
}

// Add screens a transaction and adds it to the pool. A signed transaction
// replaces a pending one from the same sender and nonce only when it pays a
// strictly higher gas price.
func (p *Pool) Add(transaction *tx.Transaction) error {
	if transaction == nil {
		return fmt.Errorf("%w: nil transaction", ErrValidation)
	}
	pending, err := p.pendingHeader()
	if err != nil {
		return err
	}
	txHash := transaction.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Reject duplicates.
	if _, exists := p.txs[txHash]; exists {
		return ErrAlreadyExists
	}

	if err := p.policy.Check(transaction, pending.GasLimit); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := p.admit(transaction, pending); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	e := &entry{tx: transaction, txHash: txHash}
	if !transaction.HasZeroSignature() {
		sender, err := transaction.Sender()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if transaction.GasPrice.CmpUint64(p.minGasPrice) < 0 {
			return fmt.Errorf("%w: got %s, need %d", ErrFeeTooLow, transaction.GasPrice.Dec(), p.minGasPrice)
		}
		e.slot = senderNonce{sender: sender, nonce: transaction.Nonce}
		e.keyed = true
	}

	// Same sender and nonce: replace only when the new price is higher.
	if e.keyed {
		if prevHash, exists := p.slots[e.slot]; exists {
			prev := p.txs[prevHash]
			if !transaction.GasPrice.Gt(&prev.tx.GasPrice) {
				return fmt.Errorf("%w: nonce %d of %s held by %s", ErrConflict, e.slot.nonce, e.slot.sender, prevHash)
			}
			p.removeLocked(prevHash)
			log.Mempool.Debug().
				Str("old", prevHash.String()).
				Str("new", txHash.String()).
				Msg("Transaction replaced")
		}
	}

	// Check pool capacity. Evict the cheapest if the new tx pays more.
	if len(p.txs) >= p.maxSize {
		lowestHash, lowestPrice := p.findLowestGasPrice()
		if !transaction.GasPrice.Gt(lowestPrice) {
			return ErrPoolFull
		}
		p.removeLocked(lowestHash)
	}

	p.txs[txHash] = e
	if e.keyed {
		p.slots[e.slot] = txHash
	}
	log.Mempool.Debug().
		Str("tx", txHash.String()).
		Uint64("pending", pending.Number).
		Int("count", len(p.txs)).
		Msg("Transaction added")
	return nil
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	if e.keyed && p.slots[e.slot] == txHash {
		delete(p.slots, e.slot)
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Hashes returns the hashes of all transactions in the mempool.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		hashes = append(hashes, h)
	}
	return hashes
}

// findLowestGasPrice returns the hash and price of the cheapest entry.
// Must be called with p.mu held.
func (p *Pool) findLowestGasPrice() (types.Hash, *uint256.Int) {
	var (
		lowestHash  types.Hash
		lowestPrice *uint256.Int
	)
	for h, e := range p.txs {
		if lowestPrice == nil || e.tx.GasPrice.Lt(lowestPrice) {
			lowestPrice = &e.tx.GasPrice
			lowestHash = h
		}
	}
	return lowestHash, lowestPrice
}

// sorted returns the entries by gas price (highest first), then nonce, then
// hash. Must be called with p.mu held.
func (p *Pool) sorted() []*entry {
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.tx.GasPrice.Cmp(&b.tx.GasPrice); c != 0 {
			return c > 0
		}
		if a.tx.Nonce != b.tx.Nonce {
			return a.tx.Nonce < b.tx.Nonce
		}
		return string(a.txHash[:]) < string(b.txHash[:])
	})
	return entries
}

// SelectForBlock returns up to limit transactions ordered by gas price,
// highest first.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sorted()
	if limit > len(entries) {
		limit = len(entries)
	}
	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}
