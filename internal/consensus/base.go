package consensus

import (
	"fmt"
	"sync/atomic"

	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/holiman/uint256"
)

// Base implements the engine behavior shared by every algorithm: chain
// params binding, generic header rules, the fork-gated transaction rules,
// and schedule/reward lookup. Engines embed it and override what differs.
type Base struct {
	name   string
	params atomic.Pointer[params.ChainOperationParams]
}

// Name returns the registered engine name.
func (b *Base) Name() string {
	return b.name
}

// SetChainParams binds p. Only the first non-nil binding takes effect.
func (b *Base) SetChainParams(p *params.ChainOperationParams) {
	if p == nil {
		log.Consensus.Warn().Str("engine", b.name).Msg("Ignoring nil chain params")
		return
	}
	if b.params.CompareAndSwap(nil, p) {
		log.Consensus.Debug().
			Str("engine", b.name).
			Uint64("chain_id", p.ChainID).
			Msg("Chain params bound")
		return
	}
	if b.params.Load() != p {
		log.Consensus.Warn().Str("engine", b.name).Msg("Chain params already bound, ignoring rebind")
	}
}

// ChainParams returns the bound params, or nil.
func (b *Base) ChainParams() *params.ChainOperationParams {
	return b.params.Load()
}

func (b *Base) errNotConfigured() error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, b.name)
}

// mustParams returns the bound params and panics on an unbound engine.
func (b *Base) mustParams() *params.ChainOperationParams {
	p := b.params.Load()
	if p == nil {
		panic(b.errNotConfigured())
	}
	return p
}

// Verify runs the engine-independent header checks.
func (b *Base) Verify(s Strictness, header, parent *block.Header, txs []*tx.Transaction) error {
	if b.params.Load() == nil {
		return b.errNotConfigured()
	}
	if header == nil {
		return block.Invalid(block.ErrNilHeader, "")
	}
	return header.Verify(s, parent, txs)
}

// PopulateFromParent links child onto parent.
func (b *Base) PopulateFromParent(child block.Header, parent *block.Header) block.Header {
	return child.PopulateFromParent(parent)
}

// VerifyTransaction applies the fork-gated admissibility rules. The gates run
// in order and the first failure is returned:
//
//  1. replay-protected signatures are rejected before ReplayProtectionForkHeight;
//  2. zero signatures are rejected before ZeroSignatureForkHeight;
//  3. from ZeroSignatureForkHeight on, zero-signature transactions must have
//     zero gas price, value and nonce;
//  4. from LowSForkHeight on, signatures must have S <= N/2.
//
// Gate 3 is governed by TransactionBasic, the others by TransactionSignatures.
func (b *Base) VerifyTransaction(ir ImportRequirements, t *tx.Transaction, header *block.Header, startGasUsed uint64) error {
	p := b.params.Load()
	if p == nil {
		return b.errNotConfigured()
	}
	number := header.Number
	sigs := ir.Has(TransactionSignatures)

	if sigs && !p.IsActive(p.ReplayProtectionForkHeight, number) && t.IsReplayProtected() {
		return fmt.Errorf("%w: replay-protected signature at block %d, allowed from %d",
			ErrInvalidSignature, number, p.ReplayProtectionForkHeight)
	}

	if sigs && !p.IsActive(p.ZeroSignatureForkHeight, number) && t.HasZeroSignature() {
		return fmt.Errorf("%w: zero signature at block %d, allowed from %d",
			ErrInvalidSignature, number, p.ZeroSignatureForkHeight)
	}

	if ir.Has(TransactionBasic) && p.IsActive(p.ZeroSignatureForkHeight, number) && t.HasZeroSignature() &&
		(!t.Value.IsZero() || !t.GasPrice.IsZero() || t.Nonce != 0) {
		return &InvalidZeroSignatureTxError{
			GasPrice: t.GasPrice,
			Value:    t.Value,
			Nonce:    t.Nonce,
		}
	}

	if p.IsActive(p.LowSForkHeight, number) && sigs && t.HasSignature() {
		if err := t.CheckLowS(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	}
	return nil
}

// EVMSchedule returns the fee schedule in force at height.
// Panics if the engine is unbound.
func (b *Base) EVMSchedule(height uint64) *params.FeeSchedule {
	return b.mustParams().ScheduleForHeight(height)
}

// BlockReward returns the reward for a block at height under its schedule.
// Panics if the engine is unbound.
func (b *Base) BlockReward(height uint64) *uint256.Int {
	p := b.mustParams()
	return p.BlockRewardFor(p.ScheduleForHeight(height))
}
