// Package controller implements the single owner of the KEL, the TEL, and
// the KeyManager: init, issue, revoke, rotate, sign, and verify. Grounded
// on the original source's controller/mod.rs (init/update/get_tel/
// get_kerl/sign), generalized from its single hard-coded UpdateType enum
// into the full issue/revoke/rotate/verify/update_backers surface the spec
// names.
package controller

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/karasz/kelissuer/internal/anchor"
	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/kel"
	"github.com/karasz/kelissuer/internal/keys"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/store"
	"github.com/karasz/kelissuer/internal/tel"
	"github.com/karasz/kelissuer/internal/wire"
)

// prefixFileName records the controller's own KEL prefix alongside the
// stores it was incepted into, so a later process can reopen the same
// identifier without re-deriving it from the stream — the stores
// themselves are keyed by prefix string with no index of what prefixes
// they hold.
const prefixFileName = "prefix.txt"

// Controller holds exactly one KeyManager, one KEL engine, and one TEL
// engine, and is the sole component permitted to call the Anchoring
// Protocol.
type Controller struct {
	km       kel.KeyManager
	kelStore store.Store
	telStore store.Store
	kel      *kel.Engine
	tel      *tel.Engine
	anchor   *anchor.Protocol
	log      *zap.SugaredLogger
}

// SetLogger attaches a structured logger to the controller and the
// Anchoring Protocol it drives. Issue, Revoke, Rotate, and UpdateBackers
// each log one Info line on success and a Warn/Error line on failure,
// tagged with the controller's own KEL prefix.
func (c *Controller) SetLogger(log *zap.SugaredLogger) {
	c.log = log
	c.anchor.SetLogger(log)
}

// Init opens/creates KEL and TEL stores under dbDir/kel and dbDir/tel,
// incepts the KEL, then incepts the management TEL anchored through the
// Anchoring Protocol. Returns an error if dbDir already holds an incepted
// controller (its prefix file is present).
func Init(km kel.KeyManager, dbDir string) (*Controller, error) {
	if _, err := os.Stat(filepath.Join(dbDir, prefixFileName)); err == nil {
		return nil, errs.New(errs.KindState, "controller already incepted in "+dbDir)
	}
	for _, sub := range []string{"kel", "tel"} {
		if err := os.MkdirAll(filepath.Join(dbDir, sub), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindStore, err)
		}
	}
	kelStore, err := store.OpenSQLite(filepath.Join(dbDir, "kel", "kel.db"))
	if err != nil {
		return nil, err
	}
	telStore, err := store.OpenSQLite(filepath.Join(dbDir, "tel", "tel.db"))
	if err != nil {
		_ = kelStore.Close()
		return nil, err
	}

	c := &Controller{
		km:       km,
		kelStore: kelStore,
		telStore: telStore,
		kel:      kel.New(kelStore, model.ZeroPrefix),
		tel:      tel.New(telStore),
		log:      zap.NewNop().Sugar(),
	}
	c.anchor = anchor.New(c.kel, c.tel)

	if _, err := c.kel.Incept(km); err != nil {
		return nil, err
	}

	vcp, err := c.tel.MakeInceptionEvent(c.kel.Prefix(), tel.Config{NoBackers: true})
	if err != nil {
		return nil, err
	}
	_, ve, err := c.anchor.Anchor(vcp, km)
	if err != nil {
		return nil, err
	}
	if _, err := c.tel.Process(ve); err != nil {
		return nil, err
	}

	if err := writePrefixFile(dbDir, c.kel.Prefix(), c.tel.TelPrefix()); err != nil {
		return nil, err
	}
	return c, nil
}

// Open reopens an already-incepted controller's stores under dbDir,
// without running inception again. It is the counterpart to Init for
// every process invocation after the first.
func Open(km kel.KeyManager, dbDir string) (*Controller, error) {
	kelPrefix, telPrefix, err := readPrefixFile(dbDir)
	if err != nil {
		return nil, err
	}
	kelStore, err := store.OpenSQLite(filepath.Join(dbDir, "kel", "kel.db"))
	if err != nil {
		return nil, err
	}
	telStore, err := store.OpenSQLite(filepath.Join(dbDir, "tel", "tel.db"))
	if err != nil {
		_ = kelStore.Close()
		return nil, err
	}

	c := &Controller{
		km:       km,
		kelStore: kelStore,
		telStore: telStore,
		kel:      kel.New(kelStore, kelPrefix),
		tel:      tel.New(telStore),
		log:      zap.NewNop().Sugar(),
	}
	c.tel.SetTelPrefix(telPrefix)
	c.anchor = anchor.New(c.kel, c.tel)
	return c, nil
}

func writePrefixFile(dbDir string, kelPrefix, telPrefix model.Prefix) error {
	content := kelPrefix.String() + "\n" + telPrefix.String() + "\n"
	if err := os.WriteFile(filepath.Join(dbDir, prefixFileName), []byte(content), 0o644); err != nil {
		return errs.Wrap(errs.KindStore, err)
	}
	return nil
}

func readPrefixFile(dbDir string) (kelPrefix, telPrefix model.Prefix, err error) {
	data, err := os.ReadFile(filepath.Join(dbDir, prefixFileName))
	if err != nil {
		return model.Prefix{}, model.Prefix{}, errs.Wrap(errs.KindStore, err)
	}
	lines := splitLines(string(data))
	if len(lines) < 2 {
		return model.Prefix{}, model.Prefix{}, errs.New(errs.KindParse, "malformed prefix file")
	}
	kelPrefix, err = model.ParsePrefix(lines[0])
	if err != nil {
		return model.Prefix{}, model.Prefix{}, errs.Wrap(errs.KindParse, err)
	}
	telPrefix, err = model.ParsePrefix(lines[1])
	if err != nil {
		return model.Prefix{}, model.Prefix{}, errs.Wrap(errs.KindParse, err)
	}
	return kelPrefix, telPrefix, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// Close flushes and releases both stores.
func (c *Controller) Close() error {
	kelErr := c.kelStore.Close()
	telErr := c.telStore.Close()
	if kelErr != nil {
		return kelErr
	}
	return telErr
}

// Issue runs the Anchoring Protocol for an Iss event and returns the
// signature of the raw message bytes. The signature is not stored — the
// caller publishes it alongside the credential.
func (c *Controller) Issue(message []byte) (model.Signature, error) {
	digest := model.DeriveDefault(message)
	iss, err := c.tel.MakeIssuanceEvent(digest)
	if err != nil {
		c.log.Warnw("issue: make issuance event", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return model.Signature{}, err
	}
	if _, ve, err := c.anchor.Anchor(iss, c.km); err != nil {
		c.log.Warnw("issue: anchor", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return model.Signature{}, err
	} else if _, err := c.tel.Process(ve); err != nil {
		c.log.Errorw("issue: process tel event", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return model.Signature{}, err
	}
	sig, err := c.km.Sign(message)
	if err != nil {
		return model.Signature{}, err
	}
	c.log.Infow("issue", "prefix", c.kel.Prefix(), "digest", digest)
	return sig, nil
}

// Revoke runs the Anchoring Protocol for a Rev event over the credential
// identified by digest.
func (c *Controller) Revoke(digest model.Digest) error {
	rev, err := c.tel.MakeRevokeEvent(digest)
	if err != nil {
		c.log.Warnw("revoke: make revoke event", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return err
	}
	_, ve, err := c.anchor.Anchor(rev, c.km)
	if err != nil {
		c.log.Warnw("revoke: anchor", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return err
	}
	if _, err := c.tel.Process(ve); err != nil {
		c.log.Errorw("revoke: process tel event", "prefix", c.kel.Prefix(), "digest", digest, "error", err)
		return err
	}
	c.log.Infow("revoke", "prefix", c.kel.Prefix(), "digest", digest)
	return nil
}

// Rotate advances the KeyManager then generates and processes a KEL Rot
// event.
func (c *Controller) Rotate() (kel.SignedEvent, error) {
	mgr, ok := c.km.(*keys.Manager)
	if !ok {
		err := errs.New(errs.KindCrypto, "key manager does not support rotation")
		c.log.Warnw("rotate", "prefix", c.kel.Prefix(), "error", err)
		return kel.SignedEvent{}, err
	}
	if _, err := mgr.Rotate(); err != nil {
		c.log.Warnw("rotate: manager rotate", "prefix", c.kel.Prefix(), "error", err)
		return kel.SignedEvent{}, err
	}
	rot, err := c.kel.Rotate(c.km)
	if err != nil {
		c.log.Errorw("rotate: kel rotate", "prefix", c.kel.Prefix(), "error", err)
		return kel.SignedEvent{}, err
	}
	c.log.Infow("rotate", "prefix", c.kel.Prefix(), "sn", rot.Event.Sn)
	return rot, nil
}

// UpdateBackers runs the Anchoring Protocol for a Vrt event adding/removing
// management TEL backers. Supplements the distilled spec's Iss/Rev-only
// surface with the backer-rotation operation the original source's
// teliox Config type exposes.
func (c *Controller) UpdateBackers(add, remove []model.Prefix) error {
	vrt, err := c.tel.MakeRotationEvent(add, remove)
	if err != nil {
		c.log.Warnw("update_backers: make rotation event", "prefix", c.kel.Prefix(), "error", err)
		return err
	}
	_, ve, err := c.anchor.Anchor(vrt, c.km)
	if err != nil {
		c.log.Warnw("update_backers: anchor", "prefix", c.kel.Prefix(), "error", err)
		return err
	}
	if _, err := c.tel.Process(ve); err != nil {
		c.log.Errorw("update_backers: process tel event", "prefix", c.kel.Prefix(), "error", err)
		return err
	}
	c.log.Infow("update_backers", "prefix", c.kel.Prefix(), "add", add, "remove", remove)
	return nil
}

// Respond parses a serialized foreign KEL event stream (without checking
// its signatures or hash chain) and returns a receipt stream, echoing this controller's own KERL the first time a
// given foreign identifier's inception event is sighted. Mutates this
// controller's own KEL (each receipt is an ordinary Rct event appended to
// it), so it runs under the same single-writer discipline as Issue/Revoke/
// Rotate.
func (c *Controller) Respond(foreignStream []byte) ([]byte, error) {
	resp, err := c.kel.Respond(foreignStream, c.km)
	if err != nil {
		c.log.Warnw("respond", "prefix", c.kel.Prefix(), "error", err)
		return nil, err
	}
	c.log.Infow("respond", "prefix", c.kel.Prefix(), "foreign_bytes", len(foreignStream))
	return resp, nil
}

// GetTel returns the canonical concatenation of every VerifiableEvent for
// the credential identified by digest.
func (c *Controller) GetTel(digest model.Digest) ([]byte, error) {
	events, err := c.tel.GetTel(digest)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, ve := range events {
		raw, err := wire.Compose(ve)
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

// GetKERL returns the canonical concatenation of every signed event in the
// controller's own KEL.
func (c *Controller) GetKERL() ([]byte, error) {
	return c.kel.GetKERL()
}

// Sign signs bytes with the controller's current key.
func (c *Controller) Sign(message []byte) (model.Signature, error) {
	return c.km.Sign(message)
}

// Verify resolves message's credential state, checks the Iss event's
// cross-anchor seal, folds the IdentifierState as of the anchoring sn, and
// verifies sig against that historical key state — not the current one —
// so post-issuance rotation never invalidates a previously issued
// credential, and revocation always fails verification.
func (c *Controller) Verify(message []byte, sig model.Signature) (bool, error) {
	digest := model.DeriveDefault(message)
	state, err := c.resolveHistoricalState(digest)
	if err != nil {
		return false, err
	}
	return verifySignature(state, message, sig), nil
}

// ResolveSigningKeys resolves a credential's message digest back to the
// historical signer set and threshold that was authoritative at issuance
// time — the same historical-state resolution Verify performs internally,
// exposed standalone the way the original source's get_pub_key does.
func (c *Controller) ResolveSigningKeys(digest model.Digest) ([]model.Prefix, uint64, error) {
	state, err := c.resolveHistoricalState(digest)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Prefix, len(state.CurrentKeys))
	for i, k := range state.CurrentKeys {
		out[i] = model.BasicPrefixFromKey(k)
	}
	return out, state.Threshold, nil
}

// resolveHistoricalState resolves digest's credential state, fails for a
// credential that is not issued or is revoked, checks the Iss event's
// cross-anchor seal, and folds the IdentifierState as of that event's
// anchoring sn.
func (c *Controller) resolveHistoricalState(digest model.Digest) (kel.IdentifierState, error) {
	st, err := c.tel.GetVCState(digest)
	if err != nil {
		return kel.IdentifierState{}, err
	}
	switch st.Status {
	case tel.StatusNotIssued:
		return kel.IdentifierState{}, errs.New(errs.KindState, "credential not issued")
	case tel.StatusRevoked:
		return kel.IdentifierState{}, errs.New(errs.KindState, "VC was revoked")
	}

	ve := st.LastEvent
	issuer := c.kel.Prefix()
	ok, err := c.anchor.VerifyAnchor(issuer, *ve)
	if err != nil {
		return kel.IdentifierState{}, err
	}
	if !ok {
		return kel.IdentifierState{}, errs.New(errs.KindValidation, "TEL event is not anchored in the issuer's KEL")
	}

	return c.kel.GetStateForSeal(issuer, ve.SourceSeal.Sn, ve.SourceSeal.Digest)
}

// verifySignature checks sig against message using state's current keys
// and threshold. Threshold is the minimum number of positionally-indexed
// valid signatures; the common single-sig case needs exactly one.
func verifySignature(state kel.IdentifierState, message []byte, sig model.Signature) bool {
	// One signature is supplied, so it can satisfy a threshold of at most 1.
	if state.Threshold > 1 {
		return false
	}
	if int(sig.Index) >= len(state.CurrentKeys) {
		return false
	}
	return keys.Verify(state.CurrentKeys[sig.Index], message, sig)
}
