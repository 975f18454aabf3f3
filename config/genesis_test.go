package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/sealcore/internal/consensus"
	"github.com/Klingon-tech/sealcore/internal/signer"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
)

func TestGenesis_Validate_Presets(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet, Dev} {
		if err := GenesisFor(network).Validate(); err != nil {
			t.Errorf("%s genesis should be valid: %v", network, err)
		}
	}
}

func TestGenesis_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Genesis)
		want   string
	}{
		{"no chain id", func(g *Genesis) { g.ChainID = 0 }, "chain_id"},
		{"chain id too large", func(g *Genesis) { g.ChainID = tx.MaxChainID + 1 }, "exceeds max"},
		{"no gas limit", func(g *Genesis) { g.GasLimit = 0 }, "gas_limit"},
		{"long extra", func(g *Genesis) { g.ExtraData = strings.Repeat("x", 33) }, "extra_data"},
		{"bad reward", func(g *Genesis) { g.Protocol.BlockReward = "12abc" }, "block_reward"},
		{"unknown schedule", func(g *Genesis) { g.Protocol.Schedules = []ScheduleConfig{{Name: "istanbul"}} }, "unknown fee schedule"},
		{"schedule gap at genesis", func(g *Genesis) { g.Protocol.Schedules = []ScheduleConfig{{Height: 5, Name: "frontier"}} }, "height 0"},
		{"no engine", func(g *Genesis) { g.Protocol.SealEngine = "" }, "seal_engine"},
		{"pow without rules", func(g *Genesis) { g.Protocol.PoW = PoWRules{} }, "difficulty rules"},
		{"pow zero difficulty", func(g *Genesis) { g.Difficulty = 0 }, "genesis difficulty"},
		{"zero authority", func(g *Genesis) { g.Protocol.Authorities = []types.Address{{}} }, "zero address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := MainnetGenesis()
			tt.mutate(g)
			err := g.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestGenesis_Validate_AuthorityRequired(t *testing.T) {
	g := TestnetGenesis()
	g.Protocol.Authorities = nil
	if err := g.Validate(); err == nil {
		t.Error("basic authority genesis without authorities should fail")
	}

	g = TestnetGenesis()
	g.Protocol.Authorities = append(g.Protocol.Authorities, g.Protocol.Authorities[0])
	if err := g.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate authority error = %v", err)
	}
}

func TestGenesis_ChainParams_Forks(t *testing.T) {
	g := TestnetGenesis()
	p, err := g.ChainParams()
	if err != nil {
		t.Fatalf("ChainParams() error: %v", err)
	}
	if p.SealEngineName != consensus.BasicAuthorityName {
		t.Errorf("SealEngineName = %q", p.SealEngineName)
	}
	if p.ChainID != 8889 {
		t.Errorf("ChainID = %d, want 8889", p.ChainID)
	}
	if p.ReplayProtectionForkHeight != 0 || p.ZeroSignatureForkHeight != 100 || p.LowSForkHeight != 0 {
		t.Errorf("fork heights = %d/%d/%d", p.ReplayProtectionForkHeight, p.ZeroSignatureForkHeight, p.LowSForkHeight)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("params should validate: %v", err)
	}
}

func TestGenesis_ChainParams_AbsentForkNeverActive(t *testing.T) {
	p, err := MainnetGenesis().ChainParams()
	if err != nil {
		t.Fatalf("ChainParams() error: %v", err)
	}
	if p.ZeroSignatureForkHeight != params.NeverActive {
		t.Errorf("ZeroSignatureForkHeight = %d, want NeverActive", p.ZeroSignatureForkHeight)
	}
	if p.IsActive(p.ZeroSignatureForkHeight, 1<<62) {
		t.Error("absent fork should never activate")
	}
}

func TestGenesis_ChainParams_RewardAndSchedules(t *testing.T) {
	p, err := MainnetGenesis().ChainParams()
	if err != nil {
		t.Fatalf("ChainParams() error: %v", err)
	}
	if got := p.BlockReward.Dec(); got != "2000000000000000000" {
		t.Errorf("BlockReward = %s", got)
	}

	homestead, _ := params.ScheduleByName("homestead")
	byzantium, _ := params.ScheduleByName("byzantium")
	if got := p.ScheduleForHeight(999_999); got.Name != homestead.Name {
		t.Errorf("schedule at 999999 = %s, want %s", got.Name, homestead.Name)
	}
	if got := p.ScheduleForHeight(1_000_000); got.Name != byzantium.Name {
		t.Errorf("schedule at 1000000 = %s, want %s", got.Name, byzantium.Name)
	}
}

func TestGenesis_ChainParams_DefaultSchedule(t *testing.T) {
	g := DevGenesis()
	g.Protocol.Schedules = nil
	p, err := g.ChainParams()
	if err != nil {
		t.Fatalf("ChainParams() error: %v", err)
	}
	if got := p.ScheduleForHeight(0).Name; got != "frontier" {
		t.Errorf("default schedule = %s, want frontier", got)
	}
}

func TestGenesis_ChainParams_FreshCopies(t *testing.T) {
	g := TestnetGenesis()
	p1, _ := g.ChainParams()
	p2, _ := g.ChainParams()
	if p1 == p2 {
		t.Fatal("ChainParams() should return a fresh value each call")
	}
	p1.Authorities[0] = types.Address{}
	if g.Protocol.Authorities[0].IsZero() {
		t.Error("params authorities should not alias the genesis slice")
	}
}

func TestGenesis_DevAuthority(t *testing.T) {
	key, err := signer.DevKey()
	if err != nil {
		t.Fatalf("DevKey() error: %v", err)
	}
	if got := TestnetGenesis().Protocol.Authorities[0]; got != key.Address() {
		t.Errorf("testnet authority = %s, want %s", got, key.Address())
	}
}

func TestGenesis_Header(t *testing.T) {
	g := DevGenesis()
	h := g.Header()
	if h.Number != 0 || !h.ParentHash.IsZero() {
		t.Errorf("genesis header should have number 0 and zero parent, got %d %s", h.Number, h.ParentHash)
	}
	if h.GasLimit != g.GasLimit || h.Difficulty != g.Difficulty || h.Timestamp != g.Timestamp {
		t.Error("genesis header fields should come from the genesis config")
	}
	if string(h.Extra) != g.ExtraData {
		t.Errorf("Extra = %q, want %q", h.Extra, g.ExtraData)
	}
	if g.Header().Hash() != h.Hash() {
		t.Error("genesis header hash should be deterministic")
	}
}

func TestGenesis_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := TestnetGenesis()
	if err := g.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}

	h1, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, err := loaded.Hash()
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 != h2 {
		t.Error("loaded genesis hash differs from saved")
	}
	if *loaded.Protocol.Forks.ZeroSignature != 100 {
		t.Errorf("zero_signature = %d, want 100", *loaded.Protocol.Forks.ZeroSignature)
	}
	if loaded.Protocol.Forks.ReplayProtection == nil {
		t.Error("replay_protection at height 0 should survive a round trip")
	}
}

func TestGenesis_Hash_ChangesWithRules(t *testing.T) {
	a, _ := DevGenesis().Hash()
	g := DevGenesis()
	g.Protocol.Forks.LowS = Height(7)
	b, _ := g.Hash()
	if a == b {
		t.Error("changing a fork height should change the genesis hash")
	}
}
