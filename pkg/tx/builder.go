package tx

import (
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// Nonce sets the sender nonce.
func (b *Builder) Nonce(n uint64) *Builder {
	b.tx.Nonce = n
	return b
}

// GasPrice sets the gas price.
func (b *Builder) GasPrice(p uint64) *Builder {
	b.tx.GasPrice.SetUint64(p)
	return b
}

// Gas sets the gas limit.
func (b *Builder) Gas(g uint64) *Builder {
	b.tx.Gas = g
	return b
}

// To sets the recipient.
func (b *Builder) To(addr types.Address) *Builder {
	b.tx.To = &addr
	return b
}

// Value sets the transferred amount.
func (b *Builder) Value(v *uint256.Int) *Builder {
	b.tx.Value.Set(v)
	return b
}

// Data sets the call data.
func (b *Builder) Data(d []byte) *Builder {
	b.tx.Data = d
	return b
}

// ZeroSignature attaches an all-zero signature with the given V.
func (b *Builder) ZeroSignature(v uint64) *Builder {
	b.tx.Sig = &Signature{V: v}
	return b
}

// Sign signs the transaction; chainID == 0 yields a legacy signature.
func (b *Builder) Sign(key *crypto.PrivateKey, chainID uint64) error {
	return b.tx.Sign(key, chainID)
}

// Build returns the constructed transaction.
func (b *Builder) Build() *Transaction {
	return b.tx
}
