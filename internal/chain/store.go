package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/internal/storage"
	"github.com/Klingon-tech/sealcore/pkg/block"
	"github.com/Klingon-tech/sealcore/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixNumber = []byte("n/") // n/<number(8)> -> hash(32), canonical chain only
	prefixTx     = []byte("x/") // x/<txhash(32)> -> number(8) + blockHash(32)
	keyHeadHash  = []byte("s/head")
	keyHeight    = []byte("s/height")
)

// BlockStore persists blocks and the canonical chain index to a storage.DB.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// NewBatch starts an atomic write against the store's database.
func (bs *BlockStore) NewBatch() storage.Batch {
	return storage.NewBatch(bs.db)
}

// StoreBlock stores a block by its hash only, without touching the
// canonical indexes. Use this for blocks that are not (yet) canonical.
func (bs *BlockStore) StoreBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	hash := blk.Hash()
	if err := bs.db.Put(blockKey(hash), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	return nil
}

// PutBlock stores a block, indexes it as canonical at its number and makes
// it the head, in one batch.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	hash := blk.Hash()

	b := bs.NewBatch()
	if err := b.Put(blockKey(hash), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := indexBlock(b, blk); err != nil {
		return err
	}
	if err := putHead(b, hash, blk.Header.Number); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit block %s: %w", hash, err)
	}
	return nil
}

// indexBlock records blk as canonical at its number and indexes its
// transactions.
func indexBlock(b storage.Batch, blk *block.Block) error {
	hash := blk.Hash()
	number := blk.Header.Number
	if err := b.Put(numberKey(number), hash[:]); err != nil {
		return fmt.Errorf("number index put: %w", err)
	}
	for _, t := range blk.Transactions {
		txHash := t.Hash()
		val := make([]byte, 8+types.HashSize)
		binary.BigEndian.PutUint64(val[:8], number)
		copy(val[8:], hash[:])
		if err := b.Put(txKey(txHash), val); err != nil {
			return fmt.Errorf("tx index put %s: %w", txHash, err)
		}
	}
	return nil
}

// unindexTxs removes the transaction index entries of blk.
func unindexTxs(b storage.Batch, blk *block.Block) error {
	for _, t := range blk.Transactions {
		if err := b.Delete(txKey(t.Hash())); err != nil {
			return fmt.Errorf("tx index delete: %w", err)
		}
	}
	return nil
}

func putHead(b storage.Batch, hash types.Hash, number uint64) error {
	if err := b.Put(keyHeadHash, hash[:]); err != nil {
		return fmt.Errorf("set head hash: %w", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	if err := b.Put(keyHeight, buf[:]); err != nil {
		return fmt.Errorf("set head height: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash. Wraps storage.ErrNotFound when the
// block is unknown.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block get %s: %w", hash, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	if blk.Header == nil {
		return nil, fmt.Errorf("corrupt block %s: missing header", hash)
	}
	return &blk, nil
}

// GetHeader retrieves a block header by block hash.
func (bs *BlockStore) GetHeader(hash types.Hash) (*block.Header, error) {
	blk, err := bs.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return blk.Header, nil
}

// GetHashByNumber returns the canonical block hash at number.
func (bs *BlockStore) GetHashByNumber(number uint64) (types.Hash, error) {
	hashBytes, err := bs.db.Get(numberKey(number))
	if err != nil {
		return types.Hash{}, fmt.Errorf("number index get %d: %w", number, err)
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, fmt.Errorf("corrupt number index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, nil
}

// GetBlockByNumber retrieves the canonical block at number.
func (bs *BlockStore) GetBlockByNumber(number uint64) (*block.Block, error) {
	hash, err := bs.GetHashByNumber(number)
	if err != nil {
		return nil, err
	}
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// GetHead returns the canonical head hash and number. found is false on a
// fresh store.
func (bs *BlockStore) GetHead() (hash types.Hash, number uint64, found bool, err error) {
	hashBytes, err := bs.db.Get(keyHeadHash)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, 0, false, nil
	}
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("head hash get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, 0, false, fmt.Errorf("corrupt head hash: got %d bytes", len(hashBytes))
	}

	heightBytes, err := bs.db.Get(keyHeight)
	if err != nil {
		return types.Hash{}, 0, false, fmt.Errorf("head height missing: %w", err)
	}
	if len(heightBytes) != 8 {
		return types.Hash{}, 0, false, fmt.Errorf("corrupt head height: got %d bytes", len(heightBytes))
	}

	copy(hash[:], hashBytes)
	return hash, binary.BigEndian.Uint64(heightBytes), true, nil
}

// GetTxLocation returns the number and hash of the canonical block that
// contains the given transaction.
func (bs *BlockStore) GetTxLocation(txHash types.Hash) (uint64, types.Hash, error) {
	data, err := bs.db.Get(txKey(txHash))
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	if len(data) != 8+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("corrupt tx index: got %d bytes, want %d", len(data), 8+types.HashSize)
	}
	number := binary.BigEndian.Uint64(data[:8])
	var blockHash types.Hash
	copy(blockHash[:], data[8:])
	return number, blockHash, nil
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func numberKey(number uint64) []byte {
	key := make([]byte, len(prefixNumber)+8)
	copy(key, prefixNumber)
	binary.BigEndian.PutUint64(key[len(prefixNumber):], number)
	return key
}

func txKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}
