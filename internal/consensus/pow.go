package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/tx"
	"github.com/holiman/uint256"
)

// ProofOfWorkName is the registry name of the ProofOfWork engine.
const ProofOfWorkName = "ProofOfWork"

// PoW errors.
var (
	ErrInsufficientWork = errors.New("seal hash does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty must be > 0")
	ErrBadDifficulty    = errors.New("block difficulty does not match expected")
	ErrNonceExhausted   = errors.New("nonce space exhausted")
)

// maxUint256 is 2^256 - 1.
var maxUint256 = new(uint256.Int).SetAllOne()

// ProofOfWork seals headers with a BLAKE3 nonce search. Difficulty is carried
// in each header and must follow from the parent by the chain's adjustment
// rule.
type ProofOfWork struct {
	Base

	// Threads controls the number of parallel sealing goroutines.
	// 0 or 1 = single-threaded. Each goroutine searches a strided
	// partition of the nonce space.
	Threads int
}

// NewProofOfWork creates an unconfigured ProofOfWork engine.
func NewProofOfWork() *ProofOfWork {
	e := &ProofOfWork{}
	e.name = ProofOfWorkName
	return e
}

// target returns MaxUint256 / difficulty.
func target(difficulty uint64) *uint256.Int {
	return new(uint256.Int).Div(maxUint256, uint256.NewInt(difficulty))
}

// meetsTarget reports whether the BLAKE3 hash of sealBytes is at or below t.
func meetsTarget(sealBytes []byte, t *uint256.Int, scratch *uint256.Int) bool {
	hash := crypto.Hash(sealBytes)
	scratch.SetBytes32(hash[:])
	return !scratch.Gt(t)
}

// CalculateDifficulty returns the difficulty a child with the given
// timestamp must carry. A child sealed within DurationLimit of its parent
// raises difficulty by parent/DifficultyBoundDivisor, otherwise it drops by
// the same step. The result never falls below MinimumDifficulty or 1.
func (e *ProofOfWork) CalculateDifficulty(timestamp uint64, parent *block.Header) uint64 {
	p := e.mustParams()

	var step uint64
	if p.DifficultyBoundDivisor > 0 {
		step = parent.Difficulty / p.DifficultyBoundDivisor
	}

	var d uint64
	if timestamp >= parent.Timestamp && timestamp-parent.Timestamp < p.DurationLimit {
		if parent.Difficulty > math.MaxUint64-step {
			d = math.MaxUint64
		} else {
			d = parent.Difficulty + step
		}
	} else {
		d = parent.Difficulty - step
	}

	if d < p.MinimumDifficulty {
		d = p.MinimumDifficulty
	}
	if d == 0 {
		d = 1
	}
	return d
}

// Verify runs the generic header checks, the difficulty rule when parent is
// known, and the seal check unless s skips it.
func (e *ProofOfWork) Verify(s Strictness, header, parent *block.Header, txs []*tx.Transaction) error {
	if err := e.Base.Verify(s, header, parent, txs); err != nil {
		return err
	}
	if header.Difficulty == 0 {
		return block.Invalid(ErrZeroDifficulty, "block %d", header.Number)
	}
	if parent != nil && s != CheckNothingNew && s != JustSeal {
		if want := e.CalculateDifficulty(header.Timestamp, parent); header.Difficulty != want {
			return block.Invalid(ErrBadDifficulty, "block %d has difficulty %d, want %d",
				header.Number, header.Difficulty, want)
		}
	}
	if s.ChecksSeal() && !e.VerifySeal(header) {
		return block.Invalid(ErrInsufficientWork, "block %d nonce %d difficulty %d",
			header.Number, header.Nonce, header.Difficulty)
	}
	return nil
}

// VerifySeal reports whether the header's nonce satisfies its difficulty.
func (e *ProofOfWork) VerifySeal(header *block.Header) bool {
	if header.Difficulty == 0 {
		return false
	}
	return meetsTarget(header.SigningBytes(), target(header.Difficulty), new(uint256.Int))
}

// PopulateFromParent links child onto parent and sets its difficulty.
func (e *ProofOfWork) PopulateFromParent(child block.Header, parent *block.Header) block.Header {
	out := e.Base.PopulateFromParent(child, parent)
	out.Difficulty = e.CalculateDifficulty(out.Timestamp, parent)
	return out
}

// Seal searches for a nonce that satisfies the header's difficulty and sets
// header.Nonce. When the context is cancelled, sealing stops and ctx.Err()
// is returned. If Threads > 1, the search runs in parallel goroutines.
func (e *ProofOfWork) Seal(ctx context.Context, header *block.Header) error {
	if header == nil {
		return fmt.Errorf("nil header")
	}
	if header.Difficulty == 0 {
		return ErrZeroDifficulty
	}

	threads := e.Threads
	if threads <= 1 {
		return e.sealSingle(ctx, header)
	}
	return e.sealParallel(ctx, header, threads)
}

// sealSingle searches with a single goroutine.
func (e *ProofOfWork) sealSingle(ctx context.Context, header *block.Header) error {
	t := target(header.Difficulty)
	prefix := header.SealPrefix()
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	scratch := new(uint256.Int)

	for nonce := uint64(0); ; nonce++ {
		// Check cancellation every 65536 iterations.
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
		if meetsTarget(buf, t, scratch) {
			header.Nonce = nonce
			return nil
		}
		if nonce == math.MaxUint64 {
			return ErrNonceExhausted
		}
	}
}

// sealParallel searches with multiple goroutines; goroutine i starts at
// nonce=i and steps by threads.
func (e *ProofOfWork) sealParallel(ctx context.Context, header *block.Header, threads int) error {
	t := target(header.Difficulty)
	prefix := header.SealPrefix()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	stride := uint64(threads)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(start uint64) {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8)
			copy(buf, prefix)
			scratch := new(uint256.Int)

			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
				if meetsTarget(buf, t, scratch) {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				// Would wrap around past max uint64.
				if nonce > math.MaxUint64-stride {
					select {
					case found <- result{err: ErrNonceExhausted}:
					default:
					}
					return
				}
			}
		}(uint64(i))
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return ErrNonceExhausted
		}
		if r.err != nil {
			return r.err
		}
		header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		// A winner may have cancelled ctx on its way out.
		select {
		case r, ok := <-found:
			if ok && r.err == nil {
				header.Nonce = r.nonce
				return nil
			}
		default:
		}
		return ctx.Err()
	}
}
