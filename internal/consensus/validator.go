package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"golang.org/x/sync/errgroup"
)

// Block validation errors.
var (
	// ErrGenesisBlock is returned when a genesis block is offered where a
	// post-genesis block is required.
	ErrGenesisBlock = errors.New("genesis block not importable")
	// ErrWrongChainID marks a replay-protected signature bound to another chain.
	ErrWrongChainID = errors.New("transaction signed for another chain")
)

// DefaultWorkers bounds concurrent transaction checks per block.
const DefaultWorkers = 4

// Validator validates whole blocks against an engine.
type Validator struct {
	engine  SealEngine
	workers int
}

// NewValidator creates a block validator for engine. workers <= 0 uses
// DefaultWorkers.
func NewValidator(engine SealEngine, workers int) *Validator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Validator{engine: engine, workers: workers}
}

// Engine returns the validator's engine.
func (v *Validator) Engine() SealEngine {
	return v.engine
}

// VerifyChainID rejects t when its signature commits to a chain other than
// the one p describes. Legacy and unsigned transactions pass.
func VerifyChainID(p *params.ChainOperationParams, t *tx.Transaction) error {
	if p == nil || !t.IsReplayProtected() {
		return nil
	}
	if id := t.ChainID(); id != p.ChainID {
		return fmt.Errorf("%w: signed for %d, chain is %d", ErrWrongChainID, id, p.ChainID)
	}
	return nil
}

// TxError reports the transaction that failed admission.
type TxError struct {
	Index int
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %d: %v", e.Index, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// ValidateBlock checks a block against the requirements in ir. parent may be
// nil only when ir does not include Parent. Transactions are checked
// concurrently and checking stops at the first failure; when several fail
// before the others are cancelled, the lowest index is reported.
func (v *Validator) ValidateBlock(ctx context.Context, blk *block.Block, parent *block.Header, ir ImportRequirements) error {
	if blk == nil || blk.Header == nil {
		return block.Invalid(block.ErrNilHeader, "")
	}
	header := blk.Header

	if ir.Has(PostGenesis) && header.Number == 0 {
		return ErrGenesisBlock
	}
	if !ir.Has(Parent) {
		parent = nil
	}
	txs := blk.Transactions
	if txs == nil {
		txs = []*tx.Transaction{}
	}

	if err := v.engine.Verify(ir.Strictness(), header, parent, txs); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}

	if !ir.Has(TransactionBasic) && !ir.Has(TransactionSignatures) {
		return nil
	}

	// Gas consumed before each transaction.
	start := make([]uint64, len(txs))
	var used uint64
	for i, t := range txs {
		start[i] = used
		used += t.Gas
	}

	p := v.engine.ChainParams()
	sigs := ir.Has(TransactionSignatures)

	failures := make([]error, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, t := range txs {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := v.engine.VerifyTransaction(ir, t, header, start[i])
			if err == nil && sigs {
				err = VerifyChainID(p, t)
			}
			if err != nil {
				failures[i] = err
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, f := range failures {
			if f != nil {
				return &TxError{Index: i, Err: f}
			}
		}
		return err
	}
	return nil
}
