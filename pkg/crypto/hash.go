// Package crypto provides hashing and secp256k1 signature primitives.
package crypto

import (
	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Hash computes a BLAKE3-256 hash of the input data.
// Used for header hashes, seal hashes and transaction roots.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// Keccak256 computes the legacy Keccak-256 hash of the concatenated inputs.
// Used for transaction signing hashes and address derivation.
func Keccak256(data ...[]byte) types.Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h types.Hash
	d.Sum(h[:0])
	return h
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
