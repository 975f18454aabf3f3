package consensus

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/holiman/uint256"
)

// Engine errors.
var (
	ErrEngineNotFound = errors.New("seal engine not registered")
	ErrNotConfigured  = errors.New("seal engine has no chain params")
)

// Transaction admissibility errors.
var (
	ErrInvalidSignature       = errors.New("invalid transaction signature")
	ErrInvalidZeroSignatureTx = errors.New("zero-signature transaction must have zero gas price, value and nonce")
)

// ErrInvalidHeader is wrapped by every header rejection.
var ErrInvalidHeader = block.ErrInvalidHeader

// InvalidZeroSignatureTxError reports the economic fields of a rejected
// zero-signature transaction. It unwraps to ErrInvalidZeroSignatureTx.
type InvalidZeroSignatureTxError struct {
	GasPrice uint256.Int
	Value    uint256.Int
	Nonce    uint64
}

func (e *InvalidZeroSignatureTxError) Error() string {
	return fmt.Sprintf("%s: gas price %s, value %s, nonce %d",
		ErrInvalidZeroSignatureTx, e.GasPrice.Dec(), e.Value.Dec(), e.Nonce)
}

func (e *InvalidZeroSignatureTxError) Unwrap() error {
	return ErrInvalidZeroSignatureTx
}
