package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/signer"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. 1 coin = 10^18 base units.
const (
	Decimals = 18
	Coin     = "1000000000000000000"
)

// Genesis holds the genesis block configuration and protocol rules.
// This is immutable after chain launch - changes require a hard fork.
type Genesis struct {
	// Chain identity
	ChainID   uint64 `json:"chain_id"`
	NetworkID uint64 `json:"network_id"`
	ChainName string `json:"chain_name,omitempty"`

	// Genesis block
	Timestamp  uint64 `json:"timestamp"`
	GasLimit   uint64 `json:"gas_limit"`
	Difficulty uint64 `json:"difficulty"`
	ExtraData  string `json:"extra_data,omitempty"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds consensus-critical rules.
type ProtocolConfig struct {
	SealEngine  string           `json:"seal_engine"`
	Forks       ForkSchedule     `json:"forks"`
	BlockReward string           `json:"block_reward"` // decimal base units
	Schedules   []ScheduleConfig `json:"schedules,omitempty"`
	PoW         PoWRules         `json:"pow"`
	Authorities []types.Address  `json:"authorities,omitempty"`
}

// ForkSchedule defines the block heights at which admission rules change.
// An absent height means the fork never activates; 0 means active from
// genesis.
type ForkSchedule struct {
	ReplayProtection *uint64 `json:"replay_protection,omitempty"`
	ZeroSignature    *uint64 `json:"zero_signature,omitempty"`
	LowS             *uint64 `json:"low_s,omitempty"`
}

// ScheduleConfig activates a named fee schedule at a height.
type ScheduleConfig struct {
	Height uint64 `json:"height"`
	Name   string `json:"name"`
}

// PoWRules holds the difficulty rules of a ProofOfWork chain.
type PoWRules struct {
	MinimumDifficulty      uint64 `json:"minimum_difficulty"`
	DifficultyBoundDivisor uint64 `json:"difficulty_bound_divisor"`
	DurationLimit          uint64 `json:"duration_limit"`
}

// Height returns a pointer to h, for building fork schedules.
func Height(h uint64) *uint64 {
	return &h
}

func forkHeight(h *uint64) uint64 {
	if h == nil {
		return params.NeverActive
	}
	return *h
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:    8888,
		NetworkID:  8888,
		ChainName:  "Sealcore Mainnet",
		Timestamp:  1770734103, // 2026-02-10
		GasLimit:   8_000_000,
		Difficulty: 131_072,
		ExtraData:  "Sealcore Genesis",
		Protocol: ProtocolConfig{
			SealEngine: consensus.ProofOfWorkName,
			Forks: ForkSchedule{
				ReplayProtection: Height(0),
				LowS:             Height(0),
			},
			BlockReward: "2000000000000000000", // 2 coins
			Schedules: []ScheduleConfig{
				{Height: 0, Name: "homestead"},
				{Height: 1_000_000, Name: "byzantium"},
			},
			PoW: PoWRules{
				MinimumDifficulty:      131_072,
				DifficultyBoundDivisor: 2048,
				DurationLimit:          13,
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration. It is sealed by
// a single authority derived from signer.DevMnemonic.
func TestnetGenesis() *Genesis {
	return &Genesis{
		ChainID:    8889,
		NetworkID:  8889,
		ChainName:  "Sealcore Testnet",
		Timestamp:  1770734103,
		GasLimit:   8_000_000,
		Difficulty: 1,
		ExtraData:  "Sealcore Testnet Genesis",
		Protocol: ProtocolConfig{
			SealEngine: consensus.BasicAuthorityName,
			Forks: ForkSchedule{
				ReplayProtection: Height(0),
				ZeroSignature:    Height(100),
				LowS:             Height(0),
			},
			BlockReward: Coin,
			Schedules: []ScheduleConfig{
				{Height: 0, Name: "byzantium"},
				{Height: 10_000, Name: "constantinople"},
			},
			Authorities: []types.Address{devAuthority()},
		},
	}
}

// DevGenesis returns a local dev chain with every fork active from genesis
// and no seal.
func DevGenesis() *Genesis {
	return &Genesis{
		ChainID:    1337,
		NetworkID:  1337,
		ChainName:  "Sealcore Dev",
		GasLimit:   30_000_000,
		Difficulty: 1,
		ExtraData:  "Sealcore Dev Genesis",
		Protocol: ProtocolConfig{
			SealEngine: consensus.NoProofName,
			Forks: ForkSchedule{
				ReplayProtection: Height(0),
				ZeroSignature:    Height(0),
				LowS:             Height(0),
			},
			BlockReward: Coin,
			Schedules: []ScheduleConfig{
				{Height: 0, Name: "constantinople"},
			},
			Authorities: []types.Address{devAuthority()},
		},
	}
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	case Dev:
		return DevGenesis()
	default:
		return MainnetGenesis()
	}
}

func devAuthority() types.Address {
	key, err := signer.DevKey()
	if err != nil {
		panic(fmt.Sprintf("derive dev authority: %v", err))
	}
	defer key.Zero()
	return key.Address()
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if g.ChainID > tx.MaxChainID {
		return fmt.Errorf("chain_id %d exceeds max %d", g.ChainID, uint64(tx.MaxChainID))
	}
	if g.GasLimit == 0 {
		return fmt.Errorf("gas_limit must be positive")
	}
	if len(g.ExtraData) > block.MaxExtraSize {
		return fmt.Errorf("extra_data is %d bytes, max %d", len(g.ExtraData), block.MaxExtraSize)
	}
	if _, err := g.blockReward(); err != nil {
		return err
	}
	if _, err := g.scheduleTable(); err != nil {
		return err
	}

	switch g.Protocol.SealEngine {
	case "":
		return fmt.Errorf("seal_engine is required")
	case consensus.ProofOfWorkName:
		pow := g.Protocol.PoW
		if g.Difficulty == 0 {
			return fmt.Errorf("proof of work requires a genesis difficulty")
		}
		if pow.MinimumDifficulty == 0 || pow.DifficultyBoundDivisor == 0 || pow.DurationLimit == 0 {
			return fmt.Errorf("proof of work difficulty rules must all be positive")
		}
	case consensus.BasicAuthorityName:
		if len(g.Protocol.Authorities) == 0 {
			return fmt.Errorf("basic authority requires at least one authority")
		}
	}

	seen := make(map[types.Address]struct{}, len(g.Protocol.Authorities))
	for i, a := range g.Protocol.Authorities {
		if a.IsZero() {
			return fmt.Errorf("authorities[%d] is the zero address", i)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate authority %s", a)
		}
		seen[a] = struct{}{}
	}

	return nil
}

func (g *Genesis) blockReward() (*uint256.Int, error) {
	if g.Protocol.BlockReward == "" {
		return new(uint256.Int), nil
	}
	r, err := uint256.FromDecimal(g.Protocol.BlockReward)
	if err != nil {
		return nil, fmt.Errorf("block_reward %q: %w", g.Protocol.BlockReward, err)
	}
	return r, nil
}

// scheduleTable resolves the configured schedules. No schedules means
// frontier from genesis.
func (g *Genesis) scheduleTable() (*params.ScheduleTable, error) {
	cfgs := g.Protocol.Schedules
	if len(cfgs) == 0 {
		cfgs = []ScheduleConfig{{Height: 0, Name: "frontier"}}
	}
	entries := make([]params.ScheduleEntry, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := params.ScheduleByName(c.Name)
		if err != nil {
			return nil, fmt.Errorf("schedules: %w", err)
		}
		entries = append(entries, params.ScheduleEntry{Height: c.Height, Schedule: s})
	}
	table, err := params.NewScheduleTable(entries...)
	if err != nil {
		return nil, fmt.Errorf("schedules: %w", err)
	}
	return table, nil
}

// ChainParams builds the chain operation parameters an engine binds to.
// Each call returns a fresh value.
func (g *Genesis) ChainParams() (*params.ChainOperationParams, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	reward, err := g.blockReward()
	if err != nil {
		return nil, err
	}
	table, err := g.scheduleTable()
	if err != nil {
		return nil, err
	}

	authorities := make([]types.Address, len(g.Protocol.Authorities))
	copy(authorities, g.Protocol.Authorities)

	p := &params.ChainOperationParams{
		SealEngineName:             g.Protocol.SealEngine,
		ChainID:                    g.ChainID,
		ReplayProtectionForkHeight: forkHeight(g.Protocol.Forks.ReplayProtection),
		ZeroSignatureForkHeight:    forkHeight(g.Protocol.Forks.ZeroSignature),
		LowSForkHeight:             forkHeight(g.Protocol.Forks.LowS),
		BlockReward:                *reward,
		MinimumDifficulty:          g.Protocol.PoW.MinimumDifficulty,
		DifficultyBoundDivisor:     g.Protocol.PoW.DifficultyBoundDivisor,
		DurationLimit:              g.Protocol.PoW.DurationLimit,
		Authorities:                authorities,
	}
	return p.WithScheduleTable(table), nil
}

// Header returns the genesis block header.
func (g *Genesis) Header() *block.Header {
	return &block.Header{
		Number:     0,
		Timestamp:  g.Timestamp,
		Difficulty: g.Difficulty,
		GasLimit:   g.GasLimit,
		Extra:      []byte(g.ExtraData),
		TxRoot:     block.TxRoot(nil),
	}
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
