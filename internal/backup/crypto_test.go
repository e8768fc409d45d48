package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testPassphrase = "correct horse battery"

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 tracked shows")
	sealed, err := Seal(plaintext, testPassphrase)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed output contains plaintext")
	}
	if len(sealed) != saltSize+nonceSize+len(plaintext)+16 {
		t.Errorf("sealed length = %d", len(sealed))
	}

	got, err := Open(sealed, testPassphrase)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, _ := Seal([]byte("same"), testPassphrase)
	b, _ := Seal([]byte("same"), testPassphrase)
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two seals share a salt")
	}
}

func TestOpenRejects(t *testing.T) {
	sealed, err := Seal([]byte("payload"), testPassphrase)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := map[string]struct {
		data       []byte
		passphrase string
	}{
		"wrong passphrase": {sealed, "not the passphrase"},
		"tampered":         {tampered, testPassphrase},
		"truncated":        {sealed[:10], testPassphrase},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Open(tt.data, tt.passphrase); !errors.Is(err, ErrDecrypt) {
				t.Errorf("err = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.db")
	enc := filepath.Join(dir, "plain.db.enc")
	out := filepath.Join(dir, "restored.db")
	if err := os.WriteFile(src, []byte("database bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := EncryptFile(src, enc, testPassphrase); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}
	if err := DecryptFile(enc, out, testPassphrase); err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "database bytes" {
		t.Errorf("restored = %q", got)
	}
}
