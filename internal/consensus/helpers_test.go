package consensus

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
)

// curveOrder is N of secp256k1; halfOrder is floor(N/2).
var (
	curveOrder = secp256k1.Params().N
	halfOrder  = new(big.Int).Rsh(curveOrder, 1)
)

// Fork heights used throughout the tests.
const (
	testReplayFork = 10
	testZeroFork   = 20
	testLowSFork   = 5
	testChainID    = 1337
)

func testParams(t *testing.T, engine string) *params.ChainOperationParams {
	t.Helper()
	table, err := params.NewScheduleTable(
		params.ScheduleEntry{Height: 0, Schedule: params.FrontierSchedule()},
		params.ScheduleEntry{Height: 100, Schedule: params.ByzantiumSchedule()},
	)
	if err != nil {
		t.Fatalf("NewScheduleTable: %v", err)
	}
	p := &params.ChainOperationParams{
		SealEngineName:             engine,
		ChainID:                    testChainID,
		ReplayProtectionForkHeight: testReplayFork,
		ZeroSignatureForkHeight:    testZeroFork,
		LowSForkHeight:             testLowSFork,
		MinimumDifficulty:          16,
		DifficultyBoundDivisor:     8,
		DurationLimit:              13,
	}
	p.BlockReward.SetUint64(5_000_000_000_000_000_000)
	return p.WithScheduleTable(table)
}

func boundNoProof(t *testing.T) *NoProof {
	t.Helper()
	e := NewNoProof()
	e.SetChainParams(testParams(t, NoProofName))
	return e
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func signedTx(t *testing.T, key *crypto.PrivateKey, chainID uint64) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder().Nonce(1).GasPrice(1).Gas(21000).To(types.Address{0x01}).Value(uint256.NewInt(100))
	if err := b.Sign(key, chainID); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func zeroSigTx(nonce, gasPrice, value uint64) *tx.Transaction {
	return tx.NewBuilder().
		Nonce(nonce).
		GasPrice(gasPrice).
		Value(uint256.NewInt(value)).
		Gas(21000).
		To(types.Address{0x02}).
		ZeroSignature(27).
		Build()
}

// malleate replaces S with N-S, producing the high-S twin of a signature.
func malleate(tr *tx.Transaction) {
	s := tr.Sig.S.ToBig()
	tr.Sig.S.SetFromBig(new(big.Int).Sub(curveOrder, s))
	if tr.Sig.V == 27 || tr.Sig.V == 28 {
		tr.Sig.V = 55 - tr.Sig.V
	}
}

func headerAt(number uint64) *block.Header {
	return &block.Header{Number: number, GasLimit: 8_000_000, Timestamp: 1000 + number}
}
