package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/pkg/tx"
)

// Strictness selects how much of a header is checked.
type Strictness int

const (
	// CheckEverything runs every generic and engine check.
	CheckEverything Strictness = iota
	// JustSeal checks only the engine seal.
	JustSeal
	// QuickNonce lets engines use a cheaper seal check where they have one.
	QuickNonce
	// IgnoreSeal runs every check except the engine seal.
	IgnoreSeal
	// CheckNothingNew skips checks that would only fail for newly produced
	// blocks; used when re-reading trusted headers.
	CheckNothingNew
)

func (s Strictness) String() string {
	switch s {
	case CheckEverything:
		return "check-everything"
	case JustSeal:
		return "just-seal"
	case QuickNonce:
		return "quick-nonce"
	case IgnoreSeal:
		return "ignore-seal"
	case CheckNothingNew:
		return "check-nothing-new"
	default:
		return fmt.Sprintf("strictness(%d)", int(s))
	}
}

// ChecksSeal reports whether the engine seal must be verified.
func (s Strictness) ChecksSeal() bool {
	return s != IgnoreSeal && s != CheckNothingNew
}

// MaxExtraSize is the largest Extra payload a new header may carry.
const MaxExtraSize = 32

// MaxBlockTxs caps the number of transactions in one block.
const MaxBlockTxs = 10_000

// ErrInvalidHeader is wrapped by every header rule violation.
var ErrInvalidHeader = errors.New("invalid header")

// Header rule violations.
var (
	ErrNilHeader      = errors.New("nil header")
	ErrTooMuchGasUsed = errors.New("gas used exceeds gas limit")
	ErrExtraTooLarge  = errors.New("extra data too large")
	ErrBadParentHash  = errors.New("parent hash mismatch")
	ErrBadNumber      = errors.New("number is not parent number + 1")
	ErrBadTimestamp   = errors.New("timestamp not after parent")
	ErrBadTxRoot      = errors.New("transaction root mismatch")
	ErrTooManyTxs     = errors.New("too many transactions in block")
	ErrNilTransaction = errors.New("nil transaction in block")
)

// Invalid wraps a specific header violation in ErrInvalidHeader.
func Invalid(err error, format string, args ...any) error {
	if format == "" {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	return fmt.Errorf("%w: %w: %s", ErrInvalidHeader, err, fmt.Sprintf(format, args...))
}

// Verify runs the engine-independent header checks. parent may be nil when
// the parent is unknown or not required; txs may be nil to skip the
// transaction root check. JustSeal leaves nothing for the generic rules.
func (h *Header) Verify(s Strictness, parent *Header, txs []*tx.Transaction) error {
	if s == JustSeal {
		return nil
	}
	if s != CheckNothingNew {
		if h.GasUsed > h.GasLimit {
			return Invalid(ErrTooMuchGasUsed, "used %d, limit %d", h.GasUsed, h.GasLimit)
		}
		if len(h.Extra) > MaxExtraSize {
			return Invalid(ErrExtraTooLarge, "%d bytes, max %d", len(h.Extra), MaxExtraSize)
		}
	}

	if parent != nil {
		if want := parent.Hash(); h.ParentHash != want {
			return Invalid(ErrBadParentHash, "header=%s parent=%s", h.ParentHash, want)
		}
		if h.Number != parent.Number+1 {
			return Invalid(ErrBadNumber, "got %d, parent %d", h.Number, parent.Number)
		}
		if h.Timestamp <= parent.Timestamp {
			return Invalid(ErrBadTimestamp, "got %d, parent %d", h.Timestamp, parent.Timestamp)
		}
	}

	if txs != nil {
		if len(txs) > MaxBlockTxs {
			return Invalid(ErrTooManyTxs, "%d txs, max %d", len(txs), MaxBlockTxs)
		}
		for i, t := range txs {
			if t == nil {
				return Invalid(ErrNilTransaction, "tx %d", i)
			}
		}
		if want := TxRoot(txs); h.TxRoot != want {
			return Invalid(ErrBadTxRoot, "header=%s computed=%s", h.TxRoot, want)
		}
	}
	return nil
}

// PopulateFromParent returns h linked onto parent: parent hash, number,
// inherited gas limit, reset gas used, and a unit difficulty that engines
// may replace. h is taken by value; the caller's copy is not modified.
func (h Header) PopulateFromParent(parent *Header) Header {
	h.ParentHash = parent.Hash()
	h.Number = parent.Number + 1
	h.GasLimit = parent.GasLimit
	h.GasUsed = 0
	h.Difficulty = 1
	return h
}

// Validate checks block structure: a header is present and consistent with
// the block's transactions.
func (b *Block) Validate() error {
	if b.Header == nil {
		return Invalid(ErrNilHeader, "")
	}
	txs := b.Transactions
	if txs == nil {
		txs = []*tx.Transaction{}
	}
	return b.Header.Verify(CheckEverything, nil, txs)
}
