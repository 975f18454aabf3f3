package chain

import (
	"fmt"

	"github.com/Klingon-tech/sealcore/config"
	"github.com/Klingon-tech/sealcore/pkg/block"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has number 0, a zero parent hash and no transactions.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return block.NewBlock(gen.Header(), nil), nil
}
