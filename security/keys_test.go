package security_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/teleinfo-cn/idpointer/security"
)

func TestSignVerify(t *testing.T) {
	key, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("challenge:88.111/test:42")
	sig, err := security.Sign(data, key)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if !security.Verify(data, &key.PublicKey, sig) {
		t.Fatal("signature did not verify")
	}
	if security.Verify([]byte("tampered"), &key.PublicKey, sig) {
		t.Fatal("signature verified over tampered data")
	}
}

func TestSaveLoadPrivateKey(t *testing.T) {
	key, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "admin.key")

	if err := security.SavePrivateKey(path, key, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	loaded, err := security.LoadPrivateKey(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if loaded.D.Cmp(key.D) != 0 {
		t.Fatal("loaded key does not match saved key")
	}
}

func TestSaveLoadPrivateKey_Encrypted(t *testing.T) {
	key, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "admin.key")
	passphrase := []byte("correct horse")

	if err := security.SavePrivateKey(path, key, passphrase); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, err := security.LoadPrivateKey(path, nil); !errors.Is(err, security.ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
	if _, err := security.LoadPrivateKey(path, []byte("wrong")); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}

	loaded, err := security.LoadPrivateKey(path, passphrase)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if loaded.D.Cmp(key.D) != 0 {
		t.Fatal("loaded key does not match saved key")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	key, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	data, err := security.MarshalPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := security.ParsePublicKey(data)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("parsed public key does not match")
	}
}
