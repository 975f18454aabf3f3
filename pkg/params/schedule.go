// Package params defines the chain operation parameters consumed by seal
// engines: fork-activation heights, the selected engine, and the
// height-indexed fee schedule.
package params

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// FeeSchedule is the table of execution parameters in force for a range of
// blocks. Engines treat it as an opaque value selected by height.
type FeeSchedule struct {
	Name string

	// Feature switches.
	ExceptionalFailedCodeDeposit bool
	HaveDelegateCall             bool
	HaveRevert                   bool
	HaveReturnData               bool
	HaveStaticCall               bool
	HaveCreate2                  bool
	HaveBitwiseShifting          bool

	// Gas costs.
	TxGas            uint64
	TxCreateGas      uint64
	TxDataZeroGas    uint64
	TxDataNonZeroGas uint64
	SstoreSetGas     uint64
	SstoreResetGas   uint64
	CallGas          uint64
	CreateGas        uint64
	BalanceGas       uint64
	ExpByteGas       uint64

	// Limits.
	MaxCodeSize uint64

	// BlockRewardOverride replaces the chain's base block reward while this
	// schedule is active. nil keeps the base reward.
	BlockRewardOverride *uint256.Int
}

// IntrinsicGas returns the gas charged for a transaction before execution.
func (s *FeeSchedule) IntrinsicGas(data []byte, contractCreation bool) uint64 {
	gas := s.TxGas
	if contractCreation {
		gas = s.TxCreateGas
	}
	for _, b := range data {
		if b == 0 {
			gas += s.TxDataZeroGas
		} else {
			gas += s.TxDataNonZeroGas
		}
	}
	return gas
}

// Named schedule presets. Every call returns a fresh copy.

// FrontierSchedule returns the launch-era schedule.
func FrontierSchedule() *FeeSchedule {
	return &FeeSchedule{
		Name:             "frontier",
		TxGas:            21000,
		TxCreateGas:      21000,
		TxDataZeroGas:    4,
		TxDataNonZeroGas: 68,
		SstoreSetGas:     20000,
		SstoreResetGas:   5000,
		CallGas:          40,
		CreateGas:        32000,
		BalanceGas:       20,
		ExpByteGas:       10,
		MaxCodeSize:      ^uint64(0),
	}
}

// HomesteadSchedule returns the schedule with contract-creation surcharges
// and DELEGATECALL.
func HomesteadSchedule() *FeeSchedule {
	s := FrontierSchedule()
	s.Name = "homestead"
	s.TxCreateGas = 53000
	s.ExceptionalFailedCodeDeposit = true
	s.HaveDelegateCall = true
	return s
}

// EIP158Schedule returns the schedule with repriced IO-heavy opcodes and a
// code size limit.
func EIP158Schedule() *FeeSchedule {
	s := HomesteadSchedule()
	s.Name = "eip158"
	s.CallGas = 700
	s.BalanceGas = 400
	s.ExpByteGas = 50
	s.MaxCodeSize = 0x6000
	return s
}

// ByzantiumSchedule returns the schedule with REVERT, RETURNDATA and
// STATICCALL and a reduced block reward.
func ByzantiumSchedule() *FeeSchedule {
	s := EIP158Schedule()
	s.Name = "byzantium"
	s.HaveRevert = true
	s.HaveReturnData = true
	s.HaveStaticCall = true
	s.BlockRewardOverride = uint256.NewInt(3_000_000_000_000_000_000)
	return s
}

// ConstantinopleSchedule returns the schedule with CREATE2 and bitwise
// shifts and a further reduced block reward.
func ConstantinopleSchedule() *FeeSchedule {
	s := ByzantiumSchedule()
	s.Name = "constantinople"
	s.HaveCreate2 = true
	s.HaveBitwiseShifting = true
	s.BlockRewardOverride = uint256.NewInt(2_000_000_000_000_000_000)
	return s
}

var presets = map[string]func() *FeeSchedule{
	"frontier":       FrontierSchedule,
	"homestead":      HomesteadSchedule,
	"eip158":         EIP158Schedule,
	"byzantium":      ByzantiumSchedule,
	"constantinople": ConstantinopleSchedule,
}

// ScheduleByName returns a copy of the named preset.
func ScheduleByName(name string) (*FeeSchedule, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown fee schedule %q", name)
	}
	return fn(), nil
}

// ScheduleEntry activates a schedule at a block height.
type ScheduleEntry struct {
	Height   uint64
	Schedule *FeeSchedule
}

// ScheduleTable maps block heights to fee schedules. Lookup returns the
// entry with the greatest activation height not above the requested height.
type ScheduleTable struct {
	entries []ScheduleEntry
}

// NewScheduleTable builds a table from entries in any order. One entry must
// activate at height 0 so every height resolves.
func NewScheduleTable(entries ...ScheduleEntry) (*ScheduleTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("schedule table is empty")
	}
	sorted := make([]ScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })

	if sorted[0].Height != 0 {
		return nil, fmt.Errorf("schedule table must start at height 0, first entry at %d", sorted[0].Height)
	}
	for i, e := range sorted {
		if e.Schedule == nil {
			return nil, fmt.Errorf("schedule entry %d at height %d is nil", i, e.Height)
		}
		if i > 0 && e.Height == sorted[i-1].Height {
			return nil, fmt.Errorf("duplicate schedule activation height %d", e.Height)
		}
	}
	return &ScheduleTable{entries: sorted}, nil
}

// Lookup returns the schedule in force at height.
func (t *ScheduleTable) Lookup(height uint64) *FeeSchedule {
	// First entry strictly above height, minus one.
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Height > height })
	return t.entries[i-1].Schedule
}

// Entries returns a copy of the table's entries in activation order.
func (t *ScheduleTable) Entries() []ScheduleEntry {
	out := make([]ScheduleEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
