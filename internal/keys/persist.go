package keys

import (
	"crypto/ed25519"
	"os"

	"github.com/karasz/kelissuer/internal/errs"
)

// persistedSize is the fixed on-disk layout: curPub(32) + curPriv(64) +
// nextPub(32) + nextPriv(64).
const persistedSize = ed25519.PublicKeySize*2 + ed25519.PrivateKeySize*2

// Save writes m's current and next keypairs to path. File permissions are
// restricted to the owner since this is secret key material.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf := make([]byte, 0, persistedSize)
	buf = append(buf, m.curPub...)
	buf = append(buf, m.curPriv...)
	buf = append(buf, m.nextPub...)
	buf = append(buf, m.nextPriv...)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	return nil
}

// Load reads a Manager previously written by Save.
func Load(path string) (*Manager, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, err)
	}
	if len(buf) != persistedSize {
		return nil, errs.Newf(errs.KindParse, "key file has wrong size: %d", len(buf))
	}
	m := &Manager{}
	off := 0
	m.curPub = append(ed25519.PublicKey(nil), buf[off:off+ed25519.PublicKeySize]...)
	off += ed25519.PublicKeySize
	m.curPriv = append(ed25519.PrivateKey(nil), buf[off:off+ed25519.PrivateKeySize]...)
	off += ed25519.PrivateKeySize
	m.nextPub = append(ed25519.PublicKey(nil), buf[off:off+ed25519.PublicKeySize]...)
	off += ed25519.PublicKeySize
	m.nextPriv = append(ed25519.PrivateKey(nil), buf[off:off+ed25519.PrivateKeySize]...)
	return m, nil
}

// LoadOrNew loads the Manager at path if it exists, or generates and
// persists a fresh one.
func LoadOrNew(path string) (m *Manager, created bool, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		m, err = Load(path)
		return m, false, err
	}
	m, err = New()
	if err != nil {
		return nil, false, err
	}
	if err := m.Save(path); err != nil {
		return nil, false, err
	}
	return m, true, nil
}
