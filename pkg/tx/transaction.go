// Package tx defines the transaction envelope and the signature properties
// consensus rules inspect.
package tx

import (
	"encoding/binary"

	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// Transaction is a single account-model transaction.
type Transaction struct {
	Nonce    uint64
	GasPrice uint256.Int
	Gas      uint64
	To       *types.Address // nil for contract creation
	Value    uint256.Int
	Data     []byte

	// Sig is nil for unsigned transactions.
	Sig *Signature
}

// Signature is a recoverable secp256k1 signature.
//
// V carries the recovery id: 27/28 for legacy signatures, or
// chainID*2 + 35/36 for replay-protected ones.
type Signature struct {
	V uint64
	R uint256.Int
	S uint256.Int
}

// V offsets for the two signature encodings.
const (
	legacyVBase    = 27
	protectedVBase = 35
)

// IsContractCreation returns true if the transaction has no recipient.
func (t *Transaction) IsContractCreation() bool {
	return t.To == nil
}

// HasSignature returns true if any signature (including the zero one) is attached.
func (t *Transaction) HasSignature() bool {
	return t.Sig != nil
}

// HasZeroSignature returns true if the attached signature has R = S = 0.
func (t *Transaction) HasZeroSignature() bool {
	return t.Sig != nil && t.Sig.R.IsZero() && t.Sig.S.IsZero()
}

// IsReplayProtected returns true if the signature commits to a chain ID.
func (t *Transaction) IsReplayProtected() bool {
	return t.Sig != nil && t.Sig.V >= protectedVBase
}

// ChainID returns the chain ID the signature commits to, or 0 for
// unprotected or unsigned transactions.
func (t *Transaction) ChainID() uint64 {
	if !t.IsReplayProtected() {
		return 0
	}
	return (t.Sig.V - protectedVBase) / 2
}

// SigningBytes returns the canonical payload covered by the signature.
// Format: nonce(8) | gas_price(32) | gas(8) | has_to(1) [| to(20)] | value(32) | data_len(4) | data [| chain_id(8)]
// The chain ID suffix is present only when chainID != 0.
func (t *Transaction) SigningBytes(chainID uint64) []byte {
	buf := make([]byte, 0, 128+len(t.Data))
	buf = binary.LittleEndian.AppendUint64(buf, t.Nonce)
	gp := t.GasPrice.Bytes32()
	buf = append(buf, gp[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, t.Gas)
	if t.To != nil {
		buf = append(buf, 1)
		buf = append(buf, t.To[:]...)
	} else {
		buf = append(buf, 0)
	}
	v := t.Value.Bytes32()
	buf = append(buf, v[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Data)))
	buf = append(buf, t.Data...)
	if chainID != 0 {
		buf = binary.LittleEndian.AppendUint64(buf, chainID)
	}
	return buf
}

// SigningHash returns the Keccak-256 hash the signature is computed over.
func (t *Transaction) SigningHash() types.Hash {
	return crypto.Keccak256(t.SigningBytes(t.ChainID()))
}

// Hash returns the transaction ID: Keccak-256 of the payload and signature.
func (t *Transaction) Hash() types.Hash {
	payload := t.SigningBytes(t.ChainID())
	if t.Sig == nil {
		return crypto.Keccak256(payload)
	}
	var sig [8 + 64]byte
	binary.LittleEndian.PutUint64(sig[:8], t.Sig.V)
	r, s := t.Sig.R.Bytes32(), t.Sig.S.Bytes32()
	copy(sig[8:40], r[:])
	copy(sig[40:], s[:])
	return crypto.Keccak256(payload, sig[:])
}
