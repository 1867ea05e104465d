package kel

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/store"
	"github.com/karasz/kelissuer/internal/wire"
)

// KeyManager is the external signer this engine depends on: it owns the
// current and next keypairs, signs on request, and exposes the digest the
// next establishment event must commit to.
type KeyManager interface {
	CurrentPublicKeys() [][]byte
	NextKeyDigest() model.Digest
	Sign(data []byte) (model.Signature, error)
}

// Engine holds one identifier's KEL over a Store. It is safe for
// concurrent use: the Controller is expected to serialize mutating calls
// (per §5 of the spec) but the engine's own mutex makes misuse harmless
// rather than a race.
type Engine struct {
	mu     sync.RWMutex
	store  store.Store
	prefix model.Prefix
}

// New opens an Engine over st for prefix. Pass model.ZeroPrefix before
// Incept has run; Incept fills in the self-addressing prefix it derives.
func New(st store.Store, prefix model.Prefix) *Engine {
	return &Engine{store: st, prefix: prefix}
}

// Prefix returns the identifier prefix, valid once Incept has succeeded.
func (e *Engine) Prefix() model.Prefix {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prefix
}

// Incept generates, signs, and processes the inception event. Fails if
// this engine already has an sn 0 event.
func (e *Engine) Incept(km KeyManager) (SignedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.prefix.IsZero() {
		if _, ok, err := e.store.TailSn(e.prefix.String()); err != nil {
			return SignedEvent{}, errs.Wrap(errs.KindStore, err)
		} else if ok {
			return SignedEvent{}, errs.New(errs.KindState, "identifier already incepted")
		}
	}

	keys := km.CurrentPublicKeys()
	est := &Establishment{
		Keys:          keys,
		NextKeyDigest: km.NextKeyDigest(),
		Threshold:     1,
	}
	// The self-addressing prefix commits to the inception event's own
	// establishment data; derive it from the establishment payload alone
	// (prefix is zero at digest time, filled in once derived).
	seed, err := json.Marshal(est)
	if err != nil {
		return SignedEvent{}, errs.Wrap(errs.KindParse, err)
	}
	prefix := model.SelfAddressingPrefixFromDigest(model.DeriveDefault(seed))

	ev := Event{Prefix: prefix, Sn: 0, Kind: KindIcp, Establishment: est}
	signed, err := e.signAndProcess(ev, km, IdentifierState{})
	if err != nil {
		return SignedEvent{}, err
	}
	e.prefix = prefix
	return signed, nil
}

// Rotate generates, signs, and processes a rotation event. The KeyManager
// must have already advanced next→current (keys.Manager.Rotate does this);
// the engine verifies that derive(current_public_keys) matches the
// next_key_digest the prior establishment event committed to.
func (e *Engine) Rotate(km KeyManager) (SignedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.currentStateLocked()
	if err != nil {
		return SignedEvent{}, err
	}

	keys := km.CurrentPublicKeys()
	// The commitment is over the concatenation of the raw public keys, the
	// same bytes keys.Manager.NextKeyDigest derives it from.
	if !state.NextKeyDigest.VerifyBinding(bytes.Join(keys, nil)) {
		return SignedEvent{}, errs.New(errs.KindValidation, "rotated keys do not match committed next-key digest")
	}

	est := &Establishment{
		Keys:          keys,
		NextKeyDigest: km.NextKeyDigest(),
		Threshold:     1,
		Witnesses:     state.Witnesses,
	}
	ev := Event{
		Prefix:        e.prefix,
		Sn:            state.Sn + 1,
		Kind:          KindRot,
		PriorDigest:   state.LastEventDigest,
		Establishment: est,
	}
	return e.signAndProcess(ev, km, state)
}

// MakeIxnWithSeal generates, signs, and processes an interaction event
// carrying seals in its data section.
func (e *Engine) MakeIxnWithSeal(seals []model.Seal, km KeyManager) (SignedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.currentStateLocked()
	if err != nil {
		return SignedEvent{}, err
	}
	ev := Event{
		Prefix:      e.prefix,
		Sn:          state.Sn + 1,
		Kind:        KindIxn,
		PriorDigest: state.LastEventDigest,
		Ixn:         &IxnData{Seals: seals},
	}
	return e.signAndProcess(ev, km, state)
}

// Respond parses a serialized foreign event stream and issues a Rct for
// each event in it, appended to this engine's own KEL (Rct is an ordinary
// KEL event kind, so a receipt simply advances this controller's own sn the
// same way an Ixn would). The foreign events are only decoded: their
// signatures and hash chain are not checked. The first time a given foreign
// prefix's Icp is seen, the response also carries this engine's own KERL
// after the receipt stream, as it stood before this call's receipts were
// appended.
func (e *Engine) Respond(foreignStream []byte, km KeyManager) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var foreign []SignedEvent
	rest := foreignStream
	for len(rest) > 0 {
		var signed SignedEvent
		var err error
		rest, err = wire.Decode(rest, &signed)
		if err != nil {
			return nil, errs.Wrap(errs.KindParse, err)
		}
		foreign = append(foreign, signed)
	}

	ownKerl, err := e.getKERLLocked()
	if err != nil {
		return nil, err
	}

	var receiptStream []byte
	newPrefixes := make(map[model.Prefix]bool)
	for _, fe := range foreign {
		if fe.Event.Kind == KindIcp {
			seen, err := e.hasReceiptedLocked(fe.Event.Prefix, 0)
			if err != nil {
				return nil, err
			}
			if !seen {
				newPrefixes[fe.Event.Prefix] = true
			}
		}

		raw, err := json.Marshal(fe.Event)
		if err != nil {
			return nil, errs.Wrap(errs.KindParse, err)
		}
		rct, err := e.makeRct(fe.Event.Prefix, fe.Event.Sn, model.DeriveDefault(raw), km)
		if err != nil {
			return nil, err
		}
		wireBytes, err := wire.Compose(rct)
		if err != nil {
			return nil, err
		}
		receiptStream = append(receiptStream, wireBytes...)
	}

	if len(newPrefixes) > 0 {
		receiptStream = append(receiptStream, ownKerl...)
	}
	return receiptStream, nil
}

// makeRct builds, signs, and appends a single receipt for the foreign event
// (ofPrefix, ofSn, ofDigest) to this engine's own KEL.
func (e *Engine) makeRct(ofPrefix model.Prefix, ofSn uint64, ofDigest model.Digest, km KeyManager) (SignedEvent, error) {
	state, err := e.currentStateLocked()
	if err != nil {
		return SignedEvent{}, err
	}
	ev := Event{
		Prefix:      e.prefix,
		Sn:          state.Sn + 1,
		Kind:        KindRct,
		PriorDigest: state.LastEventDigest,
		Rct:         &RctData{OfPrefix: ofPrefix, OfSn: ofSn, OfDigest: ofDigest},
	}
	return e.signAndProcess(ev, km, state)
}

// hasReceiptedLocked reports whether this engine's own KEL already carries
// a Rct for (prefix, sn). Caller must hold e.mu.
func (e *Engine) hasReceiptedLocked(prefix model.Prefix, sn uint64) (bool, error) {
	out, cancel, err := e.store.Iter(e.prefix.String(), 0)
	if err != nil {
		return false, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	for rec := range out {
		var signed SignedEvent
		if _, err := wire.Decode(rec.Data, &signed); err != nil {
			return false, err
		}
		if signed.Event.Kind == KindRct && signed.Event.Rct != nil &&
			signed.Event.Rct.OfPrefix == prefix && signed.Event.Rct.OfSn == sn {
			return true, nil
		}
	}
	return false, nil
}

// getKERLLocked is GetKERL's body for callers already holding e.mu.
func (e *Engine) getKERLLocked() ([]byte, error) {
	out, cancel, err := e.store.Iter(e.prefix.String(), 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	var all []byte
	for rec := range out {
		all = append(all, rec.Data...)
	}
	return all, nil
}

// signAndProcess serializes ev, signs it, validates it against prior
// (chain continuity and, for establishment events, the rotation
// commitment already checked by the caller), and appends it. Validation
// failure never mutates storage.
func (e *Engine) signAndProcess(ev Event, km KeyManager, prior IdentifierState) (SignedEvent, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return SignedEvent{}, errs.Wrap(errs.KindParse, err)
	}
	sig, err := km.Sign(raw)
	if err != nil {
		return SignedEvent{}, errs.Wrap(errs.KindCrypto, err)
	}
	signed := SignedEvent{Event: ev, Raw: raw, Signatures: []model.Signature{sig}}

	if err := validateChain(ev, prior); err != nil {
		return SignedEvent{}, err
	}

	wireBytes, err := wire.Compose(signed)
	if err != nil {
		return SignedEvent{}, err
	}
	if err := e.store.Append(store.Record{Prefix: ev.Prefix.String(), Sn: ev.Sn, Data: wireBytes}); err != nil {
		return SignedEvent{}, errs.Wrap(errs.KindStore, err)
	}
	return signed, nil
}

func validateChain(ev Event, prior IdentifierState) error {
	if ev.Sn == 0 {
		return nil
	}
	if ev.Sn != prior.Sn+1 {
		return errs.Newf(errs.KindValidation, "sn gap: expected %d, got %d", prior.Sn+1, ev.Sn)
	}
	if ev.PriorDigest != prior.LastEventDigest {
		return errs.New(errs.KindValidation, "prior digest does not chain to current state")
	}
	return nil
}

// currentStateLocked folds the full KEL for e.prefix. Caller must hold
// e.mu.
func (e *Engine) currentStateLocked() (IdentifierState, error) {
	tailSn, ok, err := e.store.TailSn(e.prefix.String())
	if err != nil {
		return IdentifierState{}, errs.Wrap(errs.KindStore, err)
	}
	if !ok {
		return IdentifierState{}, errs.New(errs.KindState, "no establishment event: identifier not incepted")
	}
	return e.foldUpTo(e.prefix, tailSn)
}

func (e *Engine) foldUpTo(prefix model.Prefix, sn uint64) (IdentifierState, error) {
	var state IdentifierState
	out, cancel, err := e.store.Iter(prefix.String(), 0)
	if err != nil {
		return IdentifierState{}, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	for rec := range out {
		if rec.Sn > sn {
			break
		}
		var signed SignedEvent
		if _, err := wire.Decode(rec.Data, &signed); err != nil {
			return IdentifierState{}, err
		}
		raw, err := json.Marshal(signed.Event)
		if err != nil {
			return IdentifierState{}, errs.Wrap(errs.KindParse, err)
		}
		state = fold(state, signed.Event, raw)
		if rec.Sn == sn {
			break
		}
	}
	return state, nil
}

// GetState returns the current folded IdentifierState.
func (e *Engine) GetState() (IdentifierState, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tailSn, ok, err := e.store.TailSn(e.prefix.String())
	if err != nil {
		return IdentifierState{}, false, errs.Wrap(errs.KindStore, err)
	}
	if !ok {
		return IdentifierState{}, false, nil
	}
	st, err := e.foldUpTo(e.prefix, tailSn)
	if err != nil {
		return IdentifierState{}, false, err
	}
	return st, true, nil
}

// GetStateForSeal returns the IdentifierState as of sn, verifying that
// digest binds to the event at that sn before returning it.
func (e *Engine) GetStateForSeal(prefix model.Prefix, sn uint64, digest model.Digest) (IdentifierState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, raw, ok, err := e.eventAt(prefix, sn)
	if err != nil {
		return IdentifierState{}, err
	}
	if !ok {
		return IdentifierState{}, errs.Newf(errs.KindStore, "no event at sn %d for %s", sn, prefix)
	}
	if !digest.VerifyBinding(raw) {
		return IdentifierState{}, errs.New(errs.KindValidation, "event digest does not match requested seal")
	}
	return e.foldUpTo(prefix, sn)
}

// GetEventAtSn returns the event at (prefix, sn).
func (e *Engine) GetEventAtSn(prefix model.Prefix, sn uint64) (Event, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ev, _, ok, err := e.eventAt(prefix, sn)
	return ev, ok, err
}

// eventAt loads and decodes the event at (prefix, sn), returning both the
// decoded Event and its serialized event-message bytes (the digest/sign
// target).
func (e *Engine) eventAt(prefix model.Prefix, sn uint64) (Event, []byte, bool, error) {
	data, ok, err := e.store.Get(prefix.String(), sn)
	if err != nil {
		return Event{}, nil, false, errs.Wrap(errs.KindStore, err)
	}
	if !ok {
		return Event{}, nil, false, nil
	}
	var signed SignedEvent
	if _, err := wire.Decode(data, &signed); err != nil {
		return Event{}, nil, false, err
	}
	raw, err := json.Marshal(signed.Event)
	if err != nil {
		return Event{}, nil, false, errs.Wrap(errs.KindParse, err)
	}
	return signed.Event, raw, true, nil
}

// GetKERL returns the canonical concatenation of every signed event for
// this engine's own prefix, in sn order.
func (e *Engine) GetKERL() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getKERLLocked()
}

// CheckSeal loads the KEL event for issuer at sn and asserts that some
// Seal::Event in its data section identifies (telEv's prefix, sn) and
// binds to telEv's serialized bytes. This is the verifier's cross-anchor
// check the Controller's verify() and the Anchoring Protocol both depend
// on.
func (e *Engine) CheckSeal(sn uint64, issuer model.Prefix, telPrefix model.Prefix, telSn uint64, telEvSerialized []byte) (bool, error) {
	ev, ok, err := e.GetEventAtSn(issuer, sn)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errs.Newf(errs.KindValidation, "no KEL event at sn %d for %s", sn, issuer)
	}
	if ev.Kind != KindIxn || ev.Ixn == nil || len(ev.Ixn.Seals) == 0 {
		return false, errs.New(errs.KindValidation, "KEL event has no seal data")
	}
	for _, seal := range ev.Ixn.Seals {
		if seal.MatchesEvent(telPrefix, telSn, telEvSerialized) {
			return true, nil
		}
	}
	return false, nil
}
