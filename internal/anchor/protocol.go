// Package anchor implements the Anchoring Protocol: the only component
// permitted to mutate both the KEL and the TEL, and the one that
// guarantees the cross-anchor invariant between them. Grounded on the
// original source's controller/mod.rs, which inlines this same five-step
// procedure ahead of every TEL-mutating Controller method (incept_tel,
// issue, revoke, update_backers).
package anchor

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/karasz/kelissuer/internal/errs"
	"github.com/karasz/kelissuer/internal/kel"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/tel"
)

// Protocol orchestrates KEL/TEL cross-references. It holds no log state of
// its own — both engines are owned by the Controller and handed to New by
// reference.
type Protocol struct {
	KEL *kel.Engine
	TEL *tel.Engine

	log *zap.SugaredLogger
}

// New builds a Protocol over the given engines.
func New(k *kel.Engine, t *tel.Engine) *Protocol {
	return &Protocol{KEL: k, TEL: t, log: zap.NewNop().Sugar()}
}

// SetLogger attaches a structured logger. Anchor logs one Info line per
// successful anchor and a Warn line per failure, both tagged with the
// anchored event's prefix and sn.
func (p *Protocol) SetLogger(log *zap.SugaredLogger) {
	p.log = log
}

// Anchor runs the five-step procedure for one unsigned TEL event t,
// anchoring it through a KEL interaction event and returning both the
// signed Ixn and the fully anchored VerifiableEvent — the latter not yet
// processed into the TEL engine, so the caller can process management and
// VC events through their own validated paths.
func (p *Protocol) Anchor(t tel.Event, km kel.KeyManager) (kel.SignedEvent, tel.VerifiableEvent, error) {
	// Step 1: t is already built by the caller via the TEL engine's
	// make_*_event.
	tRaw, err := json.Marshal(t)
	if err != nil {
		p.log.Warnw("anchor: marshal tel event", "prefix", t.Prefix, "sn", t.Sn, "error", err)
		return kel.SignedEvent{}, tel.VerifiableEvent{}, errs.Wrap(errs.KindParse, err)
	}

	// Step 2: event_seal = {prefix: t.prefix, sn: t.sn, digest: derive(serialize(t))}.
	eventSeal := model.NewEventSeal(t.Prefix, t.Sn, model.DeriveDefault(tRaw))

	// Step 3: ask the KEL engine to sign an Ixn carrying that seal. The
	// KEL engine assigns sn, signs, validates, and persists it.
	ixn, err := p.KEL.MakeIxnWithSeal([]model.Seal{eventSeal}, km)
	if err != nil {
		p.log.Warnw("anchor: make ixn", "prefix", t.Prefix, "sn", t.Sn, "error", err)
		return kel.SignedEvent{}, tel.VerifiableEvent{}, err
	}

	// Step 4: source_seal = {sn: ixn.sn, digest: derive(serialize(ixn))},
	// where serialize(ixn) is the unsigned event message — the same bytes
	// check_seal binds against (see DESIGN.md).
	sourceSeal := model.EventSourceSeal{Sn: ixn.Event.Sn, Digest: model.DeriveDefault(ixn.Raw)}

	// Step 5: bundle t with its source seal; the caller submits this to
	// the TEL engine's Process.
	ve := tel.VerifiableEvent{Event: t, SourceSeal: sourceSeal}
	p.log.Infow("anchored", "tel_prefix", t.Prefix, "tel_sn", t.Sn, "kel_sn", ixn.Event.Sn)
	return ixn, ve, nil
}

// VerifyAnchor re-derives t's event seal and checks it against the KEL
// engine's issuer log at the source seal's sn — the cross-anchor check the
// Controller's verify() procedure runs.
func (p *Protocol) VerifyAnchor(issuer model.Prefix, ve tel.VerifiableEvent) (bool, error) {
	tRaw, err := json.Marshal(ve.Event)
	if err != nil {
		return false, errs.Wrap(errs.KindParse, err)
	}
	return p.KEL.CheckSeal(ve.SourceSeal.Sn, issuer, ve.Event.Prefix, ve.Event.Sn, tRaw)
}
