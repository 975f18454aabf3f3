// Package consensus defines seal engines, the registry that creates them by
// name, and the fork-gated transaction rules every engine shares.
package consensus

import (
	"context"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/holiman/uint256"
)

// Strictness selects how much of a header Verify checks.
type Strictness = block.Strictness

// Strictness levels.
const (
	CheckEverything = block.CheckEverything
	JustSeal        = block.JustSeal
	QuickNonce      = block.QuickNonce
	IgnoreSeal      = block.IgnoreSeal
	CheckNothingNew = block.CheckNothingNew
)

// SealEngine is the interface every consensus algorithm implements.
//
// Engines come out of a Registry unconfigured; SetChainParams binds them to a
// chain exactly once. Every method except Name, SetChainParams and
// ChainParams requires a bound engine.
type SealEngine interface {
	Name() string

	// SetChainParams binds the engine to a chain. Later calls are ignored.
	SetChainParams(p *params.ChainOperationParams)
	ChainParams() *params.ChainOperationParams

	// Verify checks header against parent (may be nil) and the block's
	// transactions (may be nil). Failures wrap ErrInvalidHeader.
	Verify(s Strictness, header, parent *block.Header, txs []*tx.Transaction) error

	// PopulateFromParent returns child with every parent-derived field set.
	PopulateFromParent(child block.Header, parent *block.Header) block.Header

	// VerifyTransaction applies the fork-gated admissibility rules to t as
	// included in header. startGasUsed is the gas consumed by the block's
	// earlier transactions.
	VerifyTransaction(ir ImportRequirements, t *tx.Transaction, header *block.Header, startGasUsed uint64) error

	EVMSchedule(height uint64) *params.FeeSchedule
	BlockReward(height uint64) *uint256.Int
}

// Sealer is implemented by engines that can seal headers they produce.
type Sealer interface {
	Seal(ctx context.Context, header *block.Header) error
}
