package chain

import "github.com/Klingon-tech/sealcore/pkg/types"

// State holds the current chain head.
type State struct {
	Height        uint64
	HeadHash      types.Hash
	HeadTimestamp uint64
}

// IsGenesis returns true if no block has been stored yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.HeadHash.IsZero()
}
