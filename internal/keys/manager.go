// Package keys provides the one concrete KeyManager the controller needs to
// run: an ed25519 keypair that rotates a pre-committed next key into place
// on demand. Key material generation sits outside the spec's scope, so this
// stays a thin, swappable implementation behind the KeyManager interface
// the kel package depends on.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"

	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/model"
)

// Manager is a single-sig ed25519 KeyManager: it holds the current signing
// keypair and a pre-generated next keypair, committing only to the next
// key's digest until Rotate folds it in.
type Manager struct {
	mu sync.RWMutex

	curPub  ed25519.PublicKey
	curPriv ed25519.PrivateKey

	nextPub  ed25519.PublicKey
	nextPriv ed25519.PrivateKey
}

// New generates a fresh current keypair and its committed successor.
func New() (*Manager, error) {
	curPub, curPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.KindCrypto, err)
	}
	nextPub, nextPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.KindCrypto, err)
	}
	return &Manager{
		curPub:   curPub,
		curPriv:  curPriv,
		nextPub:  nextPub,
		nextPriv: nextPriv,
	}, nil
}

// CurrentPublicKeys returns the current signing key(s). This implementation
// is single-sig: the slice always has length 1.
func (m *Manager) CurrentPublicKeys() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return [][]byte{append([]byte(nil), m.curPub...)}
}

// NextKeyDigest returns the digest the establishment event commits to,
// derived over the canonical concatenation of the next public key set.
func (m *Manager) NextKeyDigest() model.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.DeriveDefault(m.nextPub)
}

// Sign signs data with the current private key and wraps the result as a
// single-sig, index-0 Signature.
func (m *Manager) Sign(data []byte) (model.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.curPriv == nil {
		return model.Signature{}, errs.New(errs.KindCrypto, "key manager has no current private key")
	}
	sig := ed25519.Sign(m.curPriv, data)
	return model.NewSignature(sig), nil
}

// Verify checks sig against data using pub, independent of which keypair
// produced it. Used by the controller's verify path against a historical
// IdentifierState's public keys, never against the manager's own keys.
func Verify(pub []byte, data []byte, sig model.Signature) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig.Raw)
}

// Rotate advances next to current and generates a fresh next keypair,
// returning the new commitment digest the caller's Rot event must carry.
// It does not touch the KEL; the caller is responsible for generating and
// processing the Rot event against the digest this returns.
func (m *Manager) Rotate() (model.Digest, error) {
	nextPub, nextPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return model.Digest{}, errs.Wrap(errs.KindCrypto, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.curPub, m.curPriv = m.nextPub, m.nextPriv
	m.nextPub, m.nextPriv = nextPub, nextPriv
	return model.DeriveDefault(m.nextPub), nil
}
