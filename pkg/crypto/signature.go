package crypto

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is the size of a recoverable signature: R(32) | S(32) | recovery id(1).
const SignatureLength = 65

// compactMagic is the offset decred adds to the recovery code of an
// uncompressed-key compact signature.
const compactMagic = 27

// Signature errors.
var (
	ErrBadSignatureLength = errors.New("signature must be 65 bytes")
	ErrBadHashLength      = errors.New("hash must be 32 bytes")
	ErrRecoveryFailed     = errors.New("public key recovery failed")
)

// PrivateKey wraps a secp256k1 private key for recoverable ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a recoverable signature over a 32-byte hash.
// The result is always canonical (S <= N/2).
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w, got %d", ErrBadHashLength, len(hash))
	}
	compact := ecdsa.SignCompact(pk.key, hash, false)
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0] - compactMagic
	return sig, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address returns the account address controlled by this key.
func (pk *PrivateKey) Address() types.Address {
	return PubKeyToAddress(pk.key.PubKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// PubKeyToAddress derives an address as Keccak256(X || Y)[12:].
func PubKeyToAddress(pub *secp256k1.PublicKey) types.Address {
	uncompressed := pub.SerializeUncompressed()
	h := Keccak256(uncompressed[1:])
	return types.BytesToAddress(h[12:])
}

// RecoverPubKey recovers the public key that produced sig over hash.
func RecoverPubKey(hash, sig []byte) (*secp256k1.PublicKey, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w, got %d", ErrBadHashLength, len(hash))
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w, got %d", ErrBadSignatureLength, len(sig))
	}
	if sig[64] > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrRecoveryFailed, sig[64])
	}
	compact := make([]byte, SignatureLength)
	compact[0] = sig[64] + compactMagic
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return pub, nil
}

// RecoverAddress recovers the signer address of sig over hash.
func RecoverAddress(hash, sig []byte) (types.Address, error) {
	pub, err := RecoverPubKey(hash, sig)
	if err != nil {
		return types.Address{}, err
	}
	return PubKeyToAddress(pub), nil
}

// IsLowS reports whether the big-endian scalar s is below the group order
// and no greater than half of it.
func IsLowS(s [32]byte) bool {
	var sc secp256k1.ModNScalar
	if overflow := sc.SetByteSlice(s[:]); overflow {
		return false
	}
	return !sc.IsOverHalfOrder()
}
