package tx

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func transfer() *Transaction {
	return NewBuilder().
		Nonce(3).
		GasPrice(20).
		Gas(21000).
		To(types.Address{0xaa}).
		Value(uint256.NewInt(1000)).
		Build()
}

func TestTransaction_Flags_Unsigned(t *testing.T) {
	tx := transfer()
	if tx.HasSignature() || tx.HasZeroSignature() || tx.IsReplayProtected() {
		t.Error("unsigned transaction should report no signature properties")
	}
	if tx.ChainID() != 0 {
		t.Errorf("ChainID() = %d, want 0", tx.ChainID())
	}
	if err := tx.CheckLowS(); !errors.Is(err, ErrUnsigned) {
		t.Errorf("CheckLowS() = %v, want ErrUnsigned", err)
	}
	if _, err := tx.Sender(); !errors.Is(err, ErrUnsigned) {
		t.Errorf("Sender() = %v, want ErrUnsigned", err)
	}
}

func TestTransaction_Sign_Legacy(t *testing.T) {
	key := mustKey(t)
	tx := transfer()
	if err := tx.Sign(key, 0); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if tx.Sig.V != 27 && tx.Sig.V != 28 {
		t.Errorf("legacy V = %d, want 27 or 28", tx.Sig.V)
	}
	if tx.IsReplayProtected() {
		t.Error("legacy signature should not be replay-protected")
	}
	sender, err := tx.Sender()
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if sender != key.Address() {
		t.Errorf("Sender() = %s, want %s", sender, key.Address())
	}
	if err := tx.CheckLowS(); err != nil {
		t.Errorf("CheckLowS() = %v, want nil", err)
	}
}

func TestTransaction_Sign_ReplayProtected(t *testing.T) {
	key := mustKey(t)
	tx := transfer()
	if err := tx.Sign(key, 61); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !tx.IsReplayProtected() {
		t.Fatal("chain-bound signature should be replay-protected")
	}
	if tx.ChainID() != 61 {
		t.Errorf("ChainID() = %d, want 61", tx.ChainID())
	}
	if tx.Sig.V != 61*2+35 && tx.Sig.V != 61*2+36 {
		t.Errorf("V = %d, want %d or %d", tx.Sig.V, 61*2+35, 61*2+36)
	}
	sender, err := tx.Sender()
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if sender != key.Address() {
		t.Errorf("Sender() = %s, want %s", sender, key.Address())
	}
}

func TestTransaction_Sign_ChainIDRange(t *testing.T) {
	key := mustKey(t)

	tx := transfer()
	if err := tx.Sign(key, MaxChainID); err != nil {
		t.Fatalf("Sign(MaxChainID): %v", err)
	}
	if got := tx.ChainID(); got != MaxChainID {
		t.Errorf("ChainID() = %d, want %d", got, uint64(MaxChainID))
	}

	tx = transfer()
	if err := tx.Sign(key, MaxChainID+1); !errors.Is(err, ErrChainIDRange) {
		t.Fatalf("Sign(MaxChainID+1) = %v, want ErrChainIDRange", err)
	}
	if tx.Sig != nil {
		t.Error("failed Sign should leave the transaction unsigned")
	}
}

func TestTransaction_SigningHash_CommitsToChainID(t *testing.T) {
	tx := transfer()
	if string(tx.SigningBytes(0)) == string(tx.SigningBytes(1)) {
		t.Error("signing bytes should differ by chain ID")
	}

	// Moving a protected signature to another chain changes the recovered sender.
	key := mustKey(t)
	if err := tx.Sign(key, 1); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Sig.V += 2 // same parity, chain ID 2
	sender, err := tx.Sender()
	if err == nil && sender == key.Address() {
		t.Error("signature replayed on another chain should not recover the signer")
	}
}

func TestTransaction_ZeroSignature(t *testing.T) {
	tx := NewBuilder().ZeroSignature(0).Build()
	if !tx.HasSignature() || !tx.HasZeroSignature() {
		t.Fatal("zero signature should count as signed and zero")
	}
	if tx.IsReplayProtected() {
		t.Error("zero signature with V=0 should not be replay-protected")
	}
	if err := tx.CheckLowS(); err != nil {
		t.Errorf("CheckLowS() on zero signature = %v, want nil", err)
	}
	if _, err := tx.Sender(); !errors.Is(err, ErrZeroSignature) {
		t.Errorf("Sender() = %v, want ErrZeroSignature", err)
	}

	partial := NewBuilder().ZeroSignature(27).Build()
	partial.Sig.R.SetUint64(1)
	if partial.HasZeroSignature() {
		t.Error("signature with R != 0 is not a zero signature")
	}
}

func TestTransaction_CheckLowS_Bound(t *testing.T) {
	half, overflow := uint256.FromBig(new(big.Int).Rsh(secp256k1.Params().N, 1))
	if overflow {
		t.Fatal("half order overflows uint256")
	}

	tx := NewBuilder().Build()
	tx.Sig = &Signature{V: 27}
	tx.Sig.R.SetUint64(1)
	tx.Sig.S.Set(half)
	if err := tx.CheckLowS(); err != nil {
		t.Errorf("CheckLowS(S = N/2) = %v, want nil", err)
	}

	tx.Sig.S.AddUint64(half, 1)
	if err := tx.CheckLowS(); !errors.Is(err, ErrHighS) {
		t.Errorf("CheckLowS(S = N/2+1) = %v, want ErrHighS", err)
	}
}

func TestTransaction_CheckLowS_MalleatedSignature(t *testing.T) {
	key := mustKey(t)
	tx := transfer()
	if err := tx.Sign(key, 0); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// (r, N-s) with the opposite recovery parity is the malleated twin.
	n, _ := uint256.FromBig(secp256k1.Params().N)
	tx.Sig.S.Sub(n, &tx.Sig.S)
	tx.Sig.V = 55 - tx.Sig.V // 27 <-> 28
	if err := tx.CheckLowS(); !errors.Is(err, ErrHighS) {
		t.Fatalf("CheckLowS() on malleated signature = %v, want ErrHighS", err)
	}
}

func TestTransaction_Sender_BadV(t *testing.T) {
	tx := transfer()
	tx.Sig = &Signature{V: 30}
	tx.Sig.R.SetUint64(1)
	tx.Sig.S.SetUint64(1)
	if _, err := tx.Sender(); !errors.Is(err, ErrBadV) {
		t.Errorf("Sender() with V=30 = %v, want ErrBadV", err)
	}
}

func TestTransaction_Hash(t *testing.T) {
	a := transfer()
	b := transfer()
	if a.Hash() != b.Hash() {
		t.Error("Hash() should be deterministic")
	}
	b.Nonce++
	if a.Hash() == b.Hash() {
		t.Error("different transactions should have different hashes")
	}

	unsigned := a.Hash()
	if err := a.Sign(mustKey(t), 0); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a.Hash() == unsigned {
		t.Error("Hash() should cover the signature")
	}
	if a.SigningHash() == a.Hash() {
		t.Error("SigningHash() should exclude the signature")
	}
}

func TestTransaction_JSON(t *testing.T) {
	tx := transfer()
	tx.Data = []byte{0xde, 0xad}
	tx.Value.SetFromBig(new(big.Int).Lsh(big.NewInt(1), 200))
	if err := tx.Sign(mustKey(t), 5); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Hash() != tx.Hash() {
		t.Errorf("decoded hash = %s, want %s", got.Hash(), tx.Hash())
	}
	if !got.Value.Eq(&tx.Value) || got.Sig == nil || got.Sig.V != tx.Sig.V {
		t.Error("decoded fields do not match")
	}

	var unsigned Transaction
	if err := json.Unmarshal([]byte(`{"nonce":1,"gas":21000}`), &unsigned); err != nil {
		t.Fatalf("Unmarshal unsigned: %v", err)
	}
	if unsigned.HasSignature() || !unsigned.Value.IsZero() || !unsigned.IsContractCreation() {
		t.Error("minimal JSON should decode to an unsigned zero-value creation")
	}

	if err := json.Unmarshal([]byte(`{"value":"zz"}`), &unsigned); err == nil {
		t.Error("bad quantity should fail to decode")
	}
}
