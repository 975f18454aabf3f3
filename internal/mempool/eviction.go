package mempool

import (
	"sort"

	"github.com/Klingon-tech/sealcore/internal/log"
)

// Evict removes the cheapest transactions until the pool is at or below
// maxSize.
func (p *Pool) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.txs) <= p.maxSize {
		return 0
	}

	entries := p.sorted()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].tx.GasPrice.Lt(&entries[j].tx.GasPrice)
	})

	evicted := 0
	for len(p.txs) > p.maxSize && evicted < len(entries) {
		p.removeLocked(entries[evicted].txHash)
		evicted++
	}
	return evicted
}

// Revalidate screens every pending transaction against the block after the
// current head and drops those no longer admissible. A fork activating at
// the next height, or a reorg onto a shorter chain, can turn accepted
// transactions away.
func (p *Pool) Revalidate() (int, error) {
	pending, err := p.pendingHeader()
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	for h, e := range p.txs {
		if err := p.admit(e.tx, pending); err != nil {
			log.Mempool.Debug().
				Err(err).
				Str("tx", h.String()).
				Uint64("pending", pending.Number).
				Msg("Evicting inadmissible transaction")
			p.removeLocked(h)
			dropped++
		}
	}
	if dropped > 0 {
		log.Mempool.Info().
			Int("dropped", dropped).
			Uint64("pending", pending.Number).
			Msg("Mempool revalidated")
	}
	return dropped, nil
}
