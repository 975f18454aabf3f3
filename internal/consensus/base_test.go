package consensus

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
)

func TestVerifyTransaction_ReplayProtectionGate(t *testing.T) {
	e := boundNoProof(t)
	key := mustKey(t)
	protected := signedTx(t, key, testChainID)

	for h := uint64(0); h < testReplayFork; h++ {
		err := e.VerifyTransaction(Everything, protected, headerAt(h), 0)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("height %d: err = %v, want ErrInvalidSignature", h, err)
		}
	}
	for h := uint64(testReplayFork); h < testReplayFork+5; h++ {
		if err := e.VerifyTransaction(Everything, protected, headerAt(h), 0); err != nil {
			t.Fatalf("height %d: unexpected err %v", h, err)
		}
	}

	// Legacy signatures are not affected by the gate.
	legacy := signedTx(t, key, 0)
	if err := e.VerifyTransaction(Everything, legacy, headerAt(testReplayFork-1), 0); err != nil {
		t.Fatalf("legacy tx before fork: %v", err)
	}
}

func TestVerifyTransaction_ReplayProtection_OneBeforeFork(t *testing.T) {
	e := boundNoProof(t)
	protected := signedTx(t, mustKey(t), testChainID)

	err := e.VerifyTransaction(TransactionSignatures, protected, headerAt(testReplayFork-1), 0)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyTransaction_ZeroSignatureGate(t *testing.T) {
	e := boundNoProof(t)
	zero := zeroSigTx(0, 0, 0)

	for h := uint64(0); h < testZeroFork; h++ {
		err := e.VerifyTransaction(Everything, zero, headerAt(h), 0)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("height %d: err = %v, want ErrInvalidSignature", h, err)
		}
	}
	for h := uint64(testZeroFork); h < testZeroFork+5; h++ {
		if err := e.VerifyTransaction(Everything, zero, headerAt(h), 0); err != nil {
			t.Fatalf("height %d: all-zero tx should pass: %v", h, err)
		}
	}
}

func TestVerifyTransaction_ZeroSignatureFields(t *testing.T) {
	e := boundNoProof(t)
	tests := []struct {
		name                   string
		nonce, gasPrice, value uint64
	}{
		{"nonce", 5, 0, 0},
		{"gas price", 0, 7, 0},
		{"value", 0, 0, 9},
		{"all", 1, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zero := zeroSigTx(tt.nonce, tt.gasPrice, tt.value)
			for _, h := range []uint64{testZeroFork, testZeroFork + 1, 1_000_000} {
				err := e.VerifyTransaction(Everything, zero, headerAt(h), 0)
				var zerr *InvalidZeroSignatureTxError
				if !errors.As(err, &zerr) {
					t.Fatalf("height %d: err = %v, want *InvalidZeroSignatureTxError", h, err)
				}
				if !errors.Is(err, ErrInvalidZeroSignatureTx) {
					t.Errorf("err = %v, want wrapped ErrInvalidZeroSignatureTx", err)
				}
				if zerr.Nonce != tt.nonce {
					t.Errorf("Nonce = %d, want %d", zerr.Nonce, tt.nonce)
				}
				if zerr.GasPrice.Uint64() != tt.gasPrice {
					t.Errorf("GasPrice = %s, want %d", zerr.GasPrice.Dec(), tt.gasPrice)
				}
				if zerr.Value.Uint64() != tt.value {
					t.Errorf("Value = %s, want %d", zerr.Value.Dec(), tt.value)
				}
			}
		})
	}
}

func TestVerifyTransaction_ZeroSignatureNonceAtFork(t *testing.T) {
	e := boundNoProof(t)
	err := e.VerifyTransaction(TransactionBasic, zeroSigTx(5, 0, 0), headerAt(testZeroFork), 0)

	var zerr *InvalidZeroSignatureTxError
	if !errors.As(err, &zerr) {
		t.Fatalf("err = %v, want *InvalidZeroSignatureTxError", err)
	}
	if zerr.Nonce != 5 {
		t.Errorf("Nonce = %d, want 5", zerr.Nonce)
	}
}

func TestVerifyTransaction_LowSGate(t *testing.T) {
	e := boundNoProof(t)
	key := mustKey(t)

	high := signedTx(t, key, 0)
	malleate(high)

	for h := uint64(0); h < testLowSFork; h++ {
		if err := e.VerifyTransaction(Everything, high, headerAt(h), 0); err != nil {
			t.Fatalf("height %d: high-S before fork should pass: %v", h, err)
		}
	}
	for _, h := range []uint64{testLowSFork, testLowSFork + 1, 500} {
		err := e.VerifyTransaction(Everything, high, headerAt(h), 0)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("height %d: err = %v, want ErrInvalidSignature", h, err)
		}
		if !errors.Is(err, tx.ErrHighS) {
			t.Errorf("height %d: err = %v, want wrapped tx.ErrHighS", h, err)
		}
	}

	low := signedTx(t, key, 0)
	if err := e.VerifyTransaction(Everything, low, headerAt(testLowSFork), 0); err != nil {
		t.Fatalf("canonical signature: %v", err)
	}
}

func TestVerifyTransaction_LowSBound(t *testing.T) {
	e := boundNoProof(t)
	at := signedTx(t, mustKey(t), 0)
	at.Sig.S.SetFromBig(halfOrder)
	if err := e.VerifyTransaction(TransactionSignatures, at, headerAt(testLowSFork), 0); err != nil {
		t.Fatalf("S = N/2 should pass: %v", err)
	}

	above := signedTx(t, mustKey(t), 0)
	above.Sig.S.SetFromBig(new(big.Int).Add(halfOrder, big.NewInt(1)))
	err := e.VerifyTransaction(TransactionSignatures, above, headerAt(testLowSFork), 0)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("S = N/2+1: err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyTransaction_GateOrder(t *testing.T) {
	// A zero-signature tx with a nonce and a replay-protected V violates gate 1
	// (before the replay fork) and gate 3 (after the zero-signature fork).
	p := testParams(t, NoProofName)
	p.ReplayProtectionForkHeight = 50
	p.ZeroSignatureForkHeight = 0
	e := NewNoProof()
	e.SetChainParams(p)

	tr := zeroSigTx(3, 0, 0)
	tr.Sig.V = testChainID*2 + 35

	err := e.VerifyTransaction(Everything, tr, headerAt(10), 0)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	var zerr *InvalidZeroSignatureTxError
	if errors.As(err, &zerr) {
		t.Fatal("gate 3 fired before gate 1")
	}
}

func TestVerifyTransaction_RequirementFlags(t *testing.T) {
	e := boundNoProof(t)
	protected := signedTx(t, mustKey(t), testChainID)

	// Signature gates need TransactionSignatures.
	if err := e.VerifyTransaction(TransactionBasic, protected, headerAt(0), 0); err != nil {
		t.Errorf("basic-only checks ran a signature gate: %v", err)
	}
	if err := e.VerifyTransaction(TransactionBasic, zeroSigTx(0, 0, 0), headerAt(0), 0); err != nil {
		t.Errorf("basic-only checks ran the zero-signature legality gate: %v", err)
	}
	high := signedTx(t, mustKey(t), 0)
	malleate(high)
	if err := e.VerifyTransaction(TransactionBasic, high, headerAt(testLowSFork), 0); err != nil {
		t.Errorf("basic-only checks ran the low-S gate: %v", err)
	}

	// The field constraint needs TransactionBasic.
	if err := e.VerifyTransaction(TransactionSignatures, zeroSigTx(5, 0, 0), headerAt(testZeroFork), 0); err != nil {
		t.Errorf("signature-only checks ran the zero-signature field gate: %v", err)
	}

	if err := e.VerifyTransaction(None, protected, headerAt(0), 0); err != nil {
		t.Errorf("None ran a gate: %v", err)
	}
}

func TestVerifyTransaction_Unsigned(t *testing.T) {
	e := boundNoProof(t)
	unsigned := tx.NewBuilder().Gas(21000).Build()
	if err := e.VerifyTransaction(Everything, unsigned, headerAt(testZeroFork), 0); err != nil {
		t.Fatalf("unsigned tx: %v", err)
	}
}

func TestVerifyTransaction_Idempotent(t *testing.T) {
	e := boundNoProof(t)
	cases := []*tx.Transaction{
		signedTx(t, mustKey(t), testChainID),
		zeroSigTx(5, 0, 0),
		zeroSigTx(0, 0, 0),
	}
	for _, h := range []uint64{0, testLowSFork, testReplayFork, testZeroFork} {
		for i, tr := range cases {
			first := e.VerifyTransaction(Everything, tr, headerAt(h), 0)
			second := e.VerifyTransaction(Everything, tr, headerAt(h), 0)
			if (first == nil) != (second == nil) || (first != nil && first.Error() != second.Error()) {
				t.Errorf("height %d tx %d: %v then %v", h, i, first, second)
			}
		}
	}
}

func TestVerifyTransaction_ForkAtGenesis(t *testing.T) {
	p := testParams(t, NoProofName)
	p.ReplayProtectionForkHeight = 0
	p.ZeroSignatureForkHeight = 0
	e := NewNoProof()
	e.SetChainParams(p)

	if err := e.VerifyTransaction(Everything, signedTx(t, mustKey(t), testChainID), headerAt(0), 0); err != nil {
		t.Errorf("replay-protected tx at genesis: %v", err)
	}
	if err := e.VerifyTransaction(Everything, zeroSigTx(0, 0, 0), headerAt(0), 0); err != nil {
		t.Errorf("zero-signature tx at genesis: %v", err)
	}
}

func TestVerifyTransaction_NeverActive(t *testing.T) {
	p := testParams(t, NoProofName)
	p.ReplayProtectionForkHeight = params.NeverActive
	e := NewNoProof()
	e.SetChainParams(p)

	err := e.VerifyTransaction(Everything, signedTx(t, mustKey(t), testChainID), headerAt(1<<40), 0)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestBase_Unconfigured(t *testing.T) {
	e := NewNoProof()
	if e.ChainParams() != nil {
		t.Fatal("new engine should be unconfigured")
	}
	if err := e.VerifyTransaction(Everything, zeroSigTx(0, 0, 0), headerAt(0), 0); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("VerifyTransaction err = %v, want ErrNotConfigured", err)
	}
	if err := e.Verify(CheckEverything, headerAt(1), nil, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Verify err = %v, want ErrNotConfigured", err)
	}

	assertPanicsNotConfigured(t, "EVMSchedule", func() { e.EVMSchedule(0) })
	assertPanicsNotConfigured(t, "BlockReward", func() { e.BlockReward(0) })
}

func assertPanicsNotConfigured(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNotConfigured) {
			t.Errorf("%s panic = %v, want ErrNotConfigured", name, r)
		}
	}()
	fn()
}

func TestBase_SetChainParams_Once(t *testing.T) {
	saved := log.Logger
	defer log.SetLogger(saved)
	var buf bytes.Buffer
	log.SetLogger(log.NewJSONLogger(&buf, "warn"))

	first := testParams(t, NoProofName)
	second := testParams(t, NoProofName)
	second.ChainID = 99

	e := NewNoProof()
	e.SetChainParams(first)
	e.SetChainParams(second)

	if e.ChainParams() != first {
		t.Fatal("second SetChainParams replaced the binding")
	}
	if !bytes.Contains(buf.Bytes(), []byte("ignoring rebind")) {
		t.Errorf("expected rebind warning, got %q", buf.String())
	}

	buf.Reset()
	e.SetChainParams(first)
	if buf.Len() != 0 {
		t.Errorf("rebinding the same params should be silent, got %q", buf.String())
	}
}

func TestBase_EVMScheduleAndReward(t *testing.T) {
	e := boundNoProof(t)

	if got := e.EVMSchedule(99).Name; got != "frontier" {
		t.Errorf("EVMSchedule(99) = %s, want frontier", got)
	}
	if got := e.EVMSchedule(100).Name; got != "byzantium" {
		t.Errorf("EVMSchedule(100) = %s, want byzantium", got)
	}

	if got := e.BlockReward(99).Uint64(); got != 5_000_000_000_000_000_000 {
		t.Errorf("BlockReward(99) = %d, want base reward", got)
	}
	if got := e.BlockReward(100).Uint64(); got != 3_000_000_000_000_000_000 {
		t.Errorf("BlockReward(100) = %d, want byzantium override", got)
	}

	// The returned reward is a copy.
	r := e.BlockReward(0)
	r.SetUint64(1)
	if e.BlockReward(0).Uint64() == 1 {
		t.Error("BlockReward returned shared state")
	}
}

func TestNoProof_VerifyAndPopulate(t *testing.T) {
	e := boundNoProof(t)
	parent := headerAt(4)
	child := e.PopulateFromParent(block.Header{Timestamp: parent.Timestamp + 5}, parent)

	if child.Number != 5 || child.ParentHash != parent.Hash() {
		t.Fatalf("PopulateFromParent = number %d parent %s", child.Number, child.ParentHash)
	}
	if err := e.Verify(CheckEverything, &child, parent, nil); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	child.Timestamp = parent.Timestamp
	err := e.Verify(CheckEverything, &child, parent, nil)
	if !errors.Is(err, ErrInvalidHeader) || !errors.Is(err, block.ErrBadTimestamp) {
		t.Fatalf("err = %v, want ErrInvalidHeader wrapping ErrBadTimestamp", err)
	}

	if err := e.Verify(CheckEverything, nil, parent, nil); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("nil header err = %v, want ErrInvalidHeader", err)
	}
}
