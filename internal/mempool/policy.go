package mempool

import (
	"fmt"

	"github.com/Klingon-tech/sealcore/pkg/tx"
)

// DefaultMaxTxSize is the maximum transaction size in bytes (signing bytes).
const DefaultMaxTxSize = 100_000

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxSize int // Maximum transaction size in signing bytes.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize: DefaultMaxTxSize,
	}
}

// Check validates a transaction against policy rules and the pending block's
// gas limit. Policy rules can vary per node; the engine's admission rules
// cannot.
func (p *Policy) Check(transaction *tx.Transaction, gasLimit uint64) error {
	size := len(transaction.SigningBytes(transaction.ChainID()))
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if transaction.Gas > gasLimit {
		return fmt.Errorf("gas %d exceeds block gas limit %d", transaction.Gas, gasLimit)
	}
	return nil
}
