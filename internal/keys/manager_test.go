package keys

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerSignAndVerify(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("a message to sign")
	sig, err := m.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(m.CurrentPublicKeys()[0], msg, sig) {
		t.Fatal("signature should verify against the current public key")
	}
	if Verify(m.CurrentPublicKeys()[0], []byte("tampered"), sig) {
		t.Fatal("signature should not verify against different data")
	}
}

func TestManagerRotateAdvancesCommitment(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	preRotateNextDigest := m.NextKeyDigest()
	newDigest, err := m.Rotate()
	if err != nil {
		t.Fatal(err)
	}

	if !preRotateNextDigest.VerifyBinding(m.CurrentPublicKeys()[0]) {
		t.Fatal("post-rotation current key should be the pre-rotation committed next key")
	}
	if newDigest != m.NextKeyDigest() {
		t.Fatal("Rotate's returned digest should equal the manager's new NextKeyDigest")
	}

	msg := []byte("signed after rotation")
	sig, err := m.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(m.CurrentPublicKeys()[0], msg, sig) {
		t.Fatal("signature after rotation should verify against the rotated-in key")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("persisted key")
	sig, err := loaded.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(m.CurrentPublicKeys()[0], msg, sig) {
		t.Fatal("key loaded from disk should produce signatures verifiable against the original public key")
	}
}

func TestLoadOrNewCreatesThenReuses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")

	m1, created, err := LoadOrNew(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created=true on first call")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected key file to be written: %v", err)
	}

	m2, created, err := LoadOrNew(path)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("expected created=false on second call")
	}
	if string(m1.CurrentPublicKeys()[0]) != string(m2.CurrentPublicKeys()[0]) {
		t.Fatal("second LoadOrNew should reuse the persisted key material")
	}
}
