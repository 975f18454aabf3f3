package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/types"
)

// Signature errors.
var (
	ErrUnsigned      = errors.New("transaction is unsigned")
	ErrHighS         = errors.New("signature S value above half the curve order")
	ErrBadV          = errors.New("invalid signature V value")
	ErrZeroSignature = errors.New("zero signature has no sender")
	ErrChainIDRange  = errors.New("chain id too large for a replay-protected signature")
)

// MaxChainID is the largest chain ID whose replay-protected V fits in a
// uint64.
const MaxChainID = (math.MaxUint64 - protectedVBase - 1) / 2

// Sign attaches a signature by key. chainID == 0 produces a legacy
// (unprotected) signature; any other value produces a replay-protected one.
func (t *Transaction) Sign(key *crypto.PrivateKey, chainID uint64) error {
	if chainID > MaxChainID {
		return fmt.Errorf("%w: %d", ErrChainIDRange, chainID)
	}
	hash := crypto.Keccak256(t.SigningBytes(chainID))
	raw, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	sig := &Signature{}
	sig.R.SetBytes(raw[:32])
	sig.S.SetBytes(raw[32:64])
	if chainID != 0 {
		sig.V = chainID*2 + protectedVBase + uint64(raw[64])
	} else {
		sig.V = legacyVBase + uint64(raw[64])
	}
	t.Sig = sig
	return nil
}

// recoveryID extracts the 0/1 recovery id from V.
func (t *Transaction) recoveryID() (byte, error) {
	v := t.Sig.V
	switch {
	case v == legacyVBase || v == legacyVBase+1:
		return byte(v - legacyVBase), nil
	case v >= protectedVBase:
		return byte((v - protectedVBase) % 2), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBadV, v)
	}
}

// Sender recovers the address that signed the transaction.
func (t *Transaction) Sender() (types.Address, error) {
	if t.Sig == nil {
		return types.Address{}, ErrUnsigned
	}
	if t.HasZeroSignature() {
		return types.Address{}, ErrZeroSignature
	}
	rec, err := t.recoveryID()
	if err != nil {
		return types.Address{}, err
	}
	raw := make([]byte, crypto.SignatureLength)
	r, s := t.Sig.R.Bytes32(), t.Sig.S.Bytes32()
	copy(raw[:32], r[:])
	copy(raw[32:64], s[:])
	raw[64] = rec

	hash := t.SigningHash()
	addr, err := crypto.RecoverAddress(hash[:], raw)
	if err != nil {
		return types.Address{}, fmt.Errorf("recover sender: %w", err)
	}
	return addr, nil
}

// CheckLowS fails if the signature's S exceeds floor(N/2).
func (t *Transaction) CheckLowS() error {
	if t.Sig == nil {
		return ErrUnsigned
	}
	if !crypto.IsLowS(t.Sig.S.Bytes32()) {
		return ErrHighS
	}
	return nil
}
