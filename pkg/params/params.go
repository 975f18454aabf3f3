package params

import (
	"fmt"
	"math"

	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// NeverActive is a fork height that no block reaches.
const NeverActive uint64 = math.MaxUint64

// ChainOperationParams is the static configuration of a running chain.
// It is built once from genesis data and shared by pointer; nothing mutates
// it after construction.
type ChainOperationParams struct {
	// SealEngineName selects the registered engine.
	SealEngineName string

	// ChainID is the identifier replay-protected signatures commit to.
	ChainID uint64

	// Fork activation heights. Each is compared against the block height on
	// its own; no ordering between them is assumed.
	ReplayProtectionForkHeight uint64 // replay-protected signatures become legal
	ZeroSignatureForkHeight    uint64 // zero-signature transactions become legal
	LowSForkHeight             uint64 // S must be at most N/2

	// BlockReward is the base reward, used unless the active schedule overrides it.
	BlockReward uint256.Int

	// Proof-of-work difficulty rules.
	MinimumDifficulty      uint64
	DifficultyBoundDivisor uint64
	DurationLimit          uint64 // seconds

	// Authorities is the signer set for authority-sealed chains.
	Authorities []types.Address

	// ScheduleForHeight returns the fee schedule in force at a height. Pure.
	ScheduleForHeight func(height uint64) *FeeSchedule
}

// WithScheduleTable sets ScheduleForHeight to a lookup into table.
func (p *ChainOperationParams) WithScheduleTable(table *ScheduleTable) *ChainOperationParams {
	p.ScheduleForHeight = table.Lookup
	return p
}

// IsActive returns true if a fork at forkHeight has activated at height.
func (p *ChainOperationParams) IsActive(forkHeight, height uint64) bool {
	return height >= forkHeight
}

// BlockRewardFor returns the reward paid under schedule.
func (p *ChainOperationParams) BlockRewardFor(schedule *FeeSchedule) *uint256.Int {
	if schedule != nil && schedule.BlockRewardOverride != nil {
		return new(uint256.Int).Set(schedule.BlockRewardOverride)
	}
	return new(uint256.Int).Set(&p.BlockReward)
}

// Validate checks that the parameters can serve an engine.
func (p *ChainOperationParams) Validate() error {
	if p.SealEngineName == "" {
		return fmt.Errorf("seal engine name is required")
	}
	if p.ScheduleForHeight == nil {
		return fmt.Errorf("schedule lookup is required")
	}
	return nil
}
