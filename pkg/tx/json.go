package tx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Klingon-tech/sealcore/pkg/types"
	"github.com/holiman/uint256"
)

// txJSON is the JSON representation of Transaction with hex-encoded
// 256-bit quantities and data.
type txJSON struct {
	Nonce    uint64         `json:"nonce"`
	GasPrice string         `json:"gas_price"`
	Gas      uint64         `json:"gas"`
	To       *types.Address `json:"to,omitempty"`
	Value    string         `json:"value"`
	Data     string         `json:"data,omitempty"`
	V        *uint64        `json:"v,omitempty"`
	R        string         `json:"r,omitempty"`
	S        string         `json:"s,omitempty"`
}

// MarshalJSON encodes the transaction with hex quantities.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	j := txJSON{
		Nonce:    t.Nonce,
		GasPrice: t.GasPrice.Hex(),
		Gas:      t.Gas,
		To:       t.To,
		Value:    t.Value.Hex(),
	}
	if len(t.Data) > 0 {
		j.Data = hex.EncodeToString(t.Data)
	}
	if t.Sig != nil {
		v := t.Sig.V
		j.V = &v
		j.R = t.Sig.R.Hex()
		j.S = t.Sig.S.Hex()
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a transaction with hex quantities. A signature is
// attached only when "v" is present.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*t = Transaction{Nonce: j.Nonce, Gas: j.Gas, To: j.To}
	if err := parseQuantity(&t.GasPrice, j.GasPrice); err != nil {
		return fmt.Errorf("gas_price: %w", err)
	}
	if err := parseQuantity(&t.Value, j.Value); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if j.Data != "" {
		b, err := hex.DecodeString(strings.TrimPrefix(j.Data, "0x"))
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		t.Data = b
	}
	if j.V != nil {
		sig := &Signature{V: *j.V}
		if err := parseQuantity(&sig.R, j.R); err != nil {
			return fmt.Errorf("r: %w", err)
		}
		if err := parseQuantity(&sig.S, j.S); err != nil {
			return fmt.Errorf("s: %w", err)
		}
		t.Sig = sig
	}
	return nil
}

// parseQuantity decodes a 0x-prefixed hex quantity; empty means zero.
func parseQuantity(dst *uint256.Int, s string) error {
	if s == "" {
		dst.Clear()
		return nil
	}
	v, err := uint256.FromHex(s)
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}
