package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/internal/storage"
	"github.com/Klingon-tech/sealcore/pkg/block"
)

// setCanonical makes blk the head. The number and transaction indexes are
// rewritten from blk back to the fork point with the current canonical
// chain, in one batch. Caller must hold c.mu and must have stored blk.
func (c *Chain) setCanonical(blk *block.Block) error {
	// Walk the new branch back to a canonical ancestor.
	var branch []*block.Block
	cur := blk
	for {
		canon, err := c.blocks.GetHashByNumber(cur.Header.Number)
		if err == nil && canon == cur.Hash() {
			break
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("canonical hash at %d: %w", cur.Header.Number, err)
		}
		if cur.Header.Number == 0 {
			return fmt.Errorf("%w: branch reaches a different genesis %s", ErrGenesisMismatch, cur.Hash())
		}
		branch = append(branch, cur)

		parent, err := c.blocks.GetBlock(cur.Header.ParentHash)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownParent, cur.Header.ParentHash)
		}
		if err != nil {
			return fmt.Errorf("load ancestor: %w", err)
		}
		cur = parent
	}
	forkNumber := cur.Header.Number

	batch := c.blocks.NewBatch()

	// Retire the old branch's transaction index. Its number index entries
	// are all overwritten below since the new branch is taller.
	for n := forkNumber + 1; n <= c.state.Height; n++ {
		old, err := c.blocks.GetBlockByNumber(n)
		if err != nil {
			return fmt.Errorf("load retired block %d: %w", n, err)
		}
		if err := unindexTxs(batch, old); err != nil {
			return err
		}
	}

	for i := len(branch) - 1; i >= 0; i-- {
		if err := indexBlock(batch, branch[i]); err != nil {
			return err
		}
	}

	hash := blk.Hash()
	if err := putHead(batch, hash, blk.Header.Number); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit head %s: %w", hash, err)
	}

	if reverted := c.state.Height - forkNumber; reverted > 0 {
		log.Chain.Info().
			Uint64("fork_point", forkNumber).
			Uint64("reverted", reverted).
			Int("applied", len(branch)).
			Str("new_head", hash.String()).
			Msg("Chain reorganized")
	}

	c.state = &State{Height: blk.Header.Number, HeadHash: hash, HeadTimestamp: blk.Header.Timestamp}
	return nil
}
