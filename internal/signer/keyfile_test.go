package signer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/sealcore/pkg/crypto"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	for _, plaintext := range [][]byte{{}, []byte("sealing key"), bytes.Repeat([]byte{7}, 10000)} {
		enc, err := Encrypt(plaintext, []byte("pass"), fastParams())
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		dec, err := Decrypt(enc, []byte("pass"))
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}
		if !bytes.Equal(dec, plaintext) {
			t.Errorf("roundtrip of %d bytes failed", len(plaintext))
		}
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	enc, err := Encrypt([]byte("secret"), []byte("correct"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := Decrypt(enc, []byte("wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Decrypt() error = %v, want ErrWrongPassphrase", err)
	}
}

func TestDecrypt_CorruptedOrTruncated(t *testing.T) {
	if _, err := Decrypt([]byte("too short"), []byte("pass")); err == nil {
		t.Error("truncated data should fail")
	}

	enc, err := Encrypt([]byte("data"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	enc[len(enc)-1] ^= 0xFF
	if _, err := Decrypt(enc, []byte("pass")); err == nil {
		t.Error("corrupted ciphertext should fail")
	}
}

func TestEncrypt_RandomizedOutput(t *testing.T) {
	e1, _ := Encrypt([]byte("same"), []byte("pass"), fastParams())
	e2, _ := Encrypt([]byte("same"), []byte("pass"), fastParams())
	if bytes.Equal(e1, e2) {
		t.Error("salt and nonce should make each encryption unique")
	}
	if want := headerSize + 24 + 4 + 16; len(e1) != want {
		t.Errorf("encrypted length = %d, want %d", len(e1), want)
	}
}

func TestKeyFile_SaveLoad(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "authority.key")

	if err := SaveKeyFile(path, key, []byte("hunter2"), fastParams()); err != nil {
		t.Fatalf("SaveKeyFile() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	loaded, err := LoadKeyFile(path, []byte("hunter2"))
	if err != nil {
		t.Fatalf("LoadKeyFile() error: %v", err)
	}
	if !bytes.Equal(loaded.Serialize(), key.Serialize()) {
		t.Error("loaded key differs from saved key")
	}

	if _, err := LoadKeyFile(path, []byte("wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("LoadKeyFile(wrong) error = %v, want ErrWrongPassphrase", err)
	}
}

func TestLoadKeyFile_Missing(t *testing.T) {
	if _, err := LoadKeyFile(filepath.Join(t.TempDir(), "nope"), []byte("x")); err == nil {
		t.Error("missing key file should fail")
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Memory != 64*1024 || p.Iterations != 3 || p.Parallelism != 4 {
		t.Errorf("DefaultParams() = %+v", p)
	}
}
