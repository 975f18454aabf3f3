package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/Klingon-tech/sealcore/pkg/crypto"
	"github.com/Klingon-tech/sealcore/pkg/types"
)

// Header contains block metadata.
type Header struct {
	ParentHash types.Hash    `json:"parent_hash"`
	Author     types.Address `json:"author"`
	TxRoot     types.Hash    `json:"tx_root"`
	Number     uint64        `json:"number"`
	Timestamp  uint64        `json:"timestamp"`
	Difficulty uint64        `json:"difficulty"`
	GasLimit   uint64        `json:"gas_limit"`
	GasUsed    uint64        `json:"gas_used"`
	Extra      []byte        `json:"extra,omitempty"`
	Nonce      uint64        `json:"nonce"`
	Seal       []byte        `json:"seal,omitempty"` // engine-specific, excluded from Hash
}

// headerJSON is the JSON representation of Header with hex-encoded byte fields.
type headerJSON struct {
	ParentHash types.Hash    `json:"parent_hash"`
	Author     types.Address `json:"author"`
	TxRoot     types.Hash    `json:"tx_root"`
	Number     uint64        `json:"number"`
	Timestamp  uint64        `json:"timestamp"`
	Difficulty uint64        `json:"difficulty"`
	GasLimit   uint64        `json:"gas_limit"`
	GasUsed    uint64        `json:"gas_used"`
	Extra      string        `json:"extra,omitempty"`
	Nonce      uint64        `json:"nonce"`
	Seal       string        `json:"seal,omitempty"`
}

// MarshalJSON encodes the header with hex-encoded extra data and seal.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		ParentHash: h.ParentHash,
		Author:     h.Author,
		TxRoot:     h.TxRoot,
		Number:     h.Number,
		Timestamp:  h.Timestamp,
		Difficulty: h.Difficulty,
		GasLimit:   h.GasLimit,
		GasUsed:    h.GasUsed,
		Nonce:      h.Nonce,
	}
	if h.Extra != nil {
		j.Extra = hex.EncodeToString(h.Extra)
	}
	if h.Seal != nil {
		j.Seal = hex.EncodeToString(h.Seal)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with hex-encoded extra data and seal.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*h = Header{
		ParentHash: j.ParentHash,
		Author:     j.Author,
		TxRoot:     j.TxRoot,
		Number:     j.Number,
		Timestamp:  j.Timestamp,
		Difficulty: j.Difficulty,
		GasLimit:   j.GasLimit,
		GasUsed:    j.GasUsed,
		Nonce:      j.Nonce,
	}
	if j.Extra != "" {
		b, err := hex.DecodeString(j.Extra)
		if err != nil {
			return err
		}
		h.Extra = b
	}
	if j.Seal != "" {
		b, err := hex.DecodeString(j.Seal)
		if err != nil {
			return err
		}
		h.Seal = b
	}
	return nil
}

// Hash computes the block header hash. Excludes Seal so the hash is stable
// for signing.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SealPrefix returns the signing bytes without the trailing nonce. Nonce
// search hashes this prefix once and appends each candidate nonce.
// Format: parent_hash(32) | author(20) | tx_root(32) | number(8) | timestamp(8) | difficulty(8) | gas_limit(8) | gas_used(8) | extra_len(4) | extra
func (h *Header) SealPrefix() []byte {
	buf := make([]byte, 0, 136+len(h.Extra)+8)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.Author[:]...)
	buf = append(buf, h.TxRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Number)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Difficulty)
	buf = binary.LittleEndian.AppendUint64(buf, h.GasLimit)
	buf = binary.LittleEndian.AppendUint64(buf, h.GasUsed)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(h.Extra)))
	buf = append(buf, h.Extra...)
	return buf
}

// SigningBytes returns the canonical bytes for hashing/signing:
// SealPrefix() | nonce(8).
func (h *Header) SigningBytes() []byte {
	return binary.LittleEndian.AppendUint64(h.SealPrefix(), h.Nonce)
}

// Copy returns a deep copy of the header.
func (h *Header) Copy() *Header {
	cp := *h
	if h.Extra != nil {
		cp.Extra = append([]byte(nil), h.Extra...)
	}
	if h.Seal != nil {
		cp.Seal = append([]byte(nil), h.Seal...)
	}
	return &cp
}
