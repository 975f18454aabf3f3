package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/params"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/Klingon-tech/sealcore/pkg/types"
)

// BasicAuthorityName is the registry name of the BasicAuthority engine.
const BasicAuthorityName = "BasicAuthority"

// Authority errors.
var (
	ErrNotAuthority   = errors.New("signer is not an authority")
	ErrMissingSeal    = errors.New("header missing authority seal")
	ErrBadSeal        = errors.New("malformed authority seal")
	ErrAuthorMismatch = errors.New("seal signer does not match header author")
	ErrNoSigner       = errors.New("no signer configured")
)

// BasicAuthority accepts headers sealed by any member of a fixed signer set.
// The seal is a recoverable signature over the header hash by the header's
// author.
type BasicAuthority struct {
	Base

	mu          sync.RWMutex
	authorities map[types.Address]struct{}

	// signer is the local authority key (nil if this node does not seal).
	signer *crypto.PrivateKey
}

// NewBasicAuthority creates an unconfigured BasicAuthority engine.
func NewBasicAuthority() *BasicAuthority {
	e := &BasicAuthority{authorities: make(map[types.Address]struct{})}
	e.name = BasicAuthorityName
	return e
}

// SetChainParams binds p and loads its authority set.
func (e *BasicAuthority) SetChainParams(p *params.ChainOperationParams) {
	e.Base.SetChainParams(p)
	if p == nil || e.ChainParams() != p {
		return
	}

	set := make(map[types.Address]struct{}, len(p.Authorities))
	for _, a := range p.Authorities {
		set[a] = struct{}{}
	}
	e.mu.Lock()
	e.authorities = set
	e.mu.Unlock()
}

// Authorities returns the signer set in ascending byte order.
func (e *BasicAuthority) Authorities() []types.Address {
	e.mu.RLock()
	out := make([]types.Address, 0, len(e.authorities))
	for a := range e.authorities {
		out = append(out, a)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// IsAuthority checks if addr is in the signer set.
func (e *BasicAuthority) IsAuthority(addr types.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.authorities[addr]
	return ok
}

// SetSigner sets the local authority key for sealing.
func (e *BasicAuthority) SetSigner(key *crypto.PrivateKey) error {
	addr := key.Address()
	if !e.IsAuthority(addr) {
		return fmt.Errorf("%w: %s", ErrNotAuthority, addr)
	}
	e.mu.Lock()
	e.signer = key
	e.mu.Unlock()
	return nil
}

// Signer returns the local signer key, or nil if not set.
func (e *BasicAuthority) Signer() *crypto.PrivateKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.signer
}

// Verify runs the generic header checks and, unless s skips the seal,
// requires the seal to come from the header's author and that author to be
// an authority.
func (e *BasicAuthority) Verify(s Strictness, header, parent *block.Header, txs []*tx.Transaction) error {
	if err := e.Base.Verify(s, header, parent, txs); err != nil {
		return err
	}
	if !s.ChecksSeal() {
		return nil
	}
	signer, err := e.SealSigner(header)
	if err != nil {
		return err
	}
	if signer != header.Author {
		return block.Invalid(ErrAuthorMismatch, "signer %s, author %s", signer, header.Author)
	}
	if !e.IsAuthority(signer) {
		return block.Invalid(ErrNotAuthority, "block %d signer %s", header.Number, signer)
	}
	return nil
}

// SealSigner recovers the address that sealed header.
func (e *BasicAuthority) SealSigner(header *block.Header) (types.Address, error) {
	if len(header.Seal) == 0 {
		return types.Address{}, block.Invalid(ErrMissingSeal, "block %d", header.Number)
	}
	if len(header.Seal) != crypto.SignatureLength {
		return types.Address{}, block.Invalid(ErrBadSeal, "%d bytes, want %d", len(header.Seal), crypto.SignatureLength)
	}
	hash := header.Hash()
	addr, err := crypto.RecoverAddress(hash[:], header.Seal)
	if err != nil {
		return types.Address{}, block.Invalid(ErrBadSeal, "%v", err)
	}
	return addr, nil
}

// Seal sets the header author to the local signer and signs the header hash.
func (e *BasicAuthority) Seal(ctx context.Context, header *block.Header) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	signer := e.Signer()
	if signer == nil {
		return ErrNoSigner
	}

	header.Author = signer.Address()
	hash := header.Hash()
	sig, err := signer.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("seal block: %w", err)
	}
	header.Seal = sig
	return nil
}
