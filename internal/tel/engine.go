package tel

import (
	"encoding/json"
	"sync"

	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/store"
	"github.com/karasz/kelissuer/internal/wire"
)

// Engine holds the management sub-TEL and every per-credential sub-TEL
// over a Store. Its own prefix (tel_prefix) is set the first time a Vcp
// event is processed — the one-shot bootstrap the original source's
// incept_tel performs.
type Engine struct {
	mu        sync.RWMutex
	store     store.Store
	telPrefix model.Prefix
}

// New opens an Engine over st. telPrefix is model.ZeroPrefix until the
// management inception event is processed.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// TelPrefix returns the management sub-TEL's own prefix, valid once the
// Vcp event has been processed.
func (e *Engine) TelPrefix() model.Prefix {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.telPrefix
}

// SetTelPrefix binds an already-incepted management sub-TEL's prefix to
// this engine. Used when reopening a controller's stores in a fresh
// process, where the one-shot bootstrap in Process never runs again.
func (e *Engine) SetTelPrefix(p model.Prefix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.telPrefix = p
}

// MakeInceptionEvent builds the management sub-TEL's Vcp event, unsigned
// and unanchored: the caller runs it through the Anchoring Protocol before
// Process ever sees it.
func (e *Engine) MakeInceptionEvent(issuer model.Prefix, cfg Config) (Event, error) {
	vcp := &VcpData{Issuer: issuer, Backers: cfg.Backers, Threshold: cfg.Threshold, NoBackers: cfg.NoBackers}
	seed, err := json.Marshal(vcp)
	if err != nil {
		return Event{}, errs.Wrap(errs.KindParse, err)
	}
	prefix := model.SelfAddressingPrefixFromDigest(model.DeriveDefault(seed))
	return Event{Prefix: prefix, Sn: 0, Kind: KindVcp, Vcp: vcp}, nil
}

// MakeRotationEvent builds a Vrt event adding/removing backers. Fails with
// a validation error if the management TEL was configured NoBackers.
func (e *Engine) MakeRotationEvent(add, remove []model.Prefix) (Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	mgmt, err := e.managementStateLocked()
	if err != nil {
		return Event{}, err
	}
	if mgmt.NoBackers {
		return Event{}, errs.New(errs.KindValidation, "improper config: management TEL has no backers, rotation is forbidden")
	}
	return Event{
		Prefix:      mgmt.Prefix,
		Sn:          mgmt.Sn + 1,
		Kind:        KindVrt,
		PriorDigest: mgmt.LastEventDigest,
		Vrt:         &VrtData{Add: add, Remove: remove},
	}, nil
}

// MakeIssuanceEvent builds the Iss event that opens a credential's
// sub-TEL. The credential's own TEL prefix is its self-addressing message
// digest.
func (e *Engine) MakeIssuanceEvent(messageDigest model.Digest) (Event, error) {
	prefix := model.SelfAddressingPrefixFromDigest(messageDigest)
	return Event{
		Prefix: prefix,
		Sn:     0,
		Kind:   KindIss,
		Iss:    &IssData{MessageDigest: messageDigest},
	}, nil
}

// MakeRevokeEvent builds the Rev event for an already-issued credential.
// Fails if the credential is not currently Issued.
func (e *Engine) MakeRevokeEvent(messageDigest model.Digest) (Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	prefix := model.SelfAddressingPrefixFromDigest(messageDigest)
	st, err := e.vcStateLocked(prefix)
	if err != nil {
		return Event{}, err
	}
	if st.Status != StatusIssued {
		return Event{}, errs.Newf(errs.KindState, "improper vc state for revoke: %v", st.Status)
	}
	return Event{
		Prefix:      prefix,
		Sn:          st.LastEvent.Event.Sn + 1,
		Kind:        KindRev,
		PriorDigest: st.LastEventDigest,
		Rev:         &RevData{MessageDigest: messageDigest},
	}, nil
}

// Process validates chain continuity for ve and appends it. ve.SourceSeal
// must already be populated by the Anchoring Protocol — Process does not
// check that the seal actually resolves against the KEL; that's the
// Anchoring Protocol's and the verifier's job (CheckSeal), not the TEL
// engine's.
func (e *Engine) Process(ve VerifiableEvent) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ve.Event.Kind {
	case KindVcp, KindVrt:
		return e.processManagement(ve)
	case KindIss, KindRev:
		return e.processVC(ve)
	default:
		return nil, errs.New(errs.KindValidation, "unknown TEL event kind")
	}
}

func (e *Engine) processManagement(ve VerifiableEvent) (ManagerTelState, error) {
	var prior ManagerTelState
	if ve.Event.Kind == KindVrt {
		var err error
		prior, err = e.managementStateLocked()
		if err != nil {
			return ManagerTelState{}, err
		}
		if ve.Event.Sn != prior.Sn+1 || ve.Event.PriorDigest != prior.LastEventDigest {
			return ManagerTelState{}, errs.New(errs.KindValidation, "management TEL chain mismatch")
		}
	}

	raw, err := json.Marshal(ve.Event)
	if err != nil {
		return ManagerTelState{}, errs.Wrap(errs.KindParse, err)
	}
	wireBytes, err := wire.Compose(ve)
	if err != nil {
		return ManagerTelState{}, err
	}
	if err := e.store.Append(store.Record{Prefix: ve.Event.Prefix.String(), Sn: ve.Event.Sn, Data: wireBytes}); err != nil {
		return ManagerTelState{}, errs.Wrap(errs.KindStore, err)
	}
	if ve.Event.Kind == KindVcp && e.telPrefix.IsZero() {
		e.telPrefix = ve.Event.Prefix
	}
	return foldManager(prior, ve.Event, raw), nil
}

func (e *Engine) processVC(ve VerifiableEvent) (TelState, error) {
	prior, err := e.vcStateLocked(ve.Event.Prefix)
	if err != nil {
		return TelState{}, err
	}
	switch ve.Event.Kind {
	case KindIss:
		if prior.Status != StatusNotIssued {
			return TelState{}, errs.New(errs.KindState, "credential already has a sub-TEL")
		}
	case KindRev:
		if prior.Status != StatusIssued {
			return TelState{}, errs.Newf(errs.KindState, "cannot revoke from state %v", prior.Status)
		}
		if ve.Event.Sn != prior.LastEvent.Event.Sn+1 || ve.Event.PriorDigest != prior.LastEventDigest {
			return TelState{}, errs.New(errs.KindValidation, "credential sub-TEL chain mismatch")
		}
	}

	raw, err := json.Marshal(ve.Event)
	if err != nil {
		return TelState{}, errs.Wrap(errs.KindParse, err)
	}
	wireBytes, err := wire.Compose(ve)
	if err != nil {
		return TelState{}, err
	}
	if err := e.store.Append(store.Record{Prefix: ve.Event.Prefix.String(), Sn: ve.Event.Sn, Data: wireBytes}); err != nil {
		return TelState{}, errs.Wrap(errs.KindStore, err)
	}
	return foldVC(prior, ve, raw), nil
}

// GetVCState returns the current TelState for the credential identified by
// messageDigest.
func (e *Engine) GetVCState(messageDigest model.Digest) (TelState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vcStateLocked(model.SelfAddressingPrefixFromDigest(messageDigest))
}

func (e *Engine) vcStateLocked(prefix model.Prefix) (TelState, error) {
	tailSn, ok, err := e.store.TailSn(prefix.String())
	if err != nil {
		return TelState{}, errs.Wrap(errs.KindStore, err)
	}
	if !ok {
		return TelState{Status: StatusNotIssued}, nil
	}
	var state TelState
	out, cancel, err := e.store.Iter(prefix.String(), 0)
	if err != nil {
		return TelState{}, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	for rec := range out {
		var ve VerifiableEvent
		if _, err := wire.Decode(rec.Data, &ve); err != nil {
			return TelState{}, err
		}
		raw, err := json.Marshal(ve.Event)
		if err != nil {
			return TelState{}, errs.Wrap(errs.KindParse, err)
		}
		state = foldVC(state, ve, raw)
		if rec.Sn == tailSn {
			break
		}
	}
	return state, nil
}

// GetTel returns every VerifiableEvent in sn order for the credential
// identified by messageDigest.
func (e *Engine) GetTel(messageDigest model.Digest) ([]VerifiableEvent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	prefix := model.SelfAddressingPrefixFromDigest(messageDigest)
	out, cancel, err := e.store.Iter(prefix.String(), 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	var events []VerifiableEvent
	for rec := range out {
		var ve VerifiableEvent
		if _, err := wire.Decode(rec.Data, &ve); err != nil {
			return nil, err
		}
		events = append(events, ve)
	}
	return events, nil
}

// GetManagementTelState returns the current ManagerTelState.
func (e *Engine) GetManagementTelState() (ManagerTelState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.managementStateLocked()
}

func (e *Engine) managementStateLocked() (ManagerTelState, error) {
	if e.telPrefix.IsZero() {
		return ManagerTelState{}, errs.New(errs.KindState, "management TEL not yet incepted")
	}
	tailSn, ok, err := e.store.TailSn(e.telPrefix.String())
	if err != nil {
		return ManagerTelState{}, errs.Wrap(errs.KindStore, err)
	}
	if !ok {
		return ManagerTelState{}, errs.New(errs.KindState, "management TEL not yet incepted")
	}
	var state ManagerTelState
	out, cancel, err := e.store.Iter(e.telPrefix.String(), 0)
	if err != nil {
		return ManagerTelState{}, errs.Wrap(errs.KindStore, err)
	}
	defer cancel()
	for rec := range out {
		var ve VerifiableEvent
		if _, err := wire.Decode(rec.Data, &ve); err != nil {
			return ManagerTelState{}, err
		}
		raw, err := json.Marshal(ve.Event)
		if err != nil {
			return ManagerTelState{}, errs.Wrap(errs.KindParse, err)
		}
		state = foldManager(state, ve.Event, raw)
		if rec.Sn == tailSn {
			break
		}
	}
	return state, nil
}

// GetIssuer returns the KEL prefix this management TEL is bound to.
func (e *Engine) GetIssuer() (model.Prefix, error) {
	mgmt, err := e.GetManagementTelState()
	if err != nil {
		return model.Prefix{}, err
	}
	return mgmt.Issuer, nil
}
