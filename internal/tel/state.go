package tel

import "github.com/karasz/kelissuer/internal/model"

// VCStatus is the per-credential state machine the spec names:
// NotIssued -> Issued -> Revoked, one-way.
type VCStatus uint8

const (
	StatusNotIssued VCStatus = iota
	StatusIssued
	StatusRevoked
)

// TelState folds a credential's sub-TEL: its current status and, once
// issued, the last VerifiableEvent (the Iss, or the Rev once revoked) a
// verifier needs to check the cross-anchor seal against, plus the digest
// of that event's own serialized bytes for chaining the next event.
type TelState struct {
	Status          VCStatus
	LastEvent       *VerifiableEvent
	LastEventDigest model.Digest
}

// ManagerTelState folds the management sub-TEL: the backer configuration
// currently in force plus chain position.
type ManagerTelState struct {
	Prefix          model.Prefix
	Issuer          model.Prefix
	Sn              uint64
	LastEventDigest model.Digest
	Backers         []model.Prefix
	Threshold       uint64
	NoBackers       bool
}

func foldManager(state ManagerTelState, ev Event, raw []byte) ManagerTelState {
	next := state
	next.Sn = ev.Sn
	next.LastEventDigest = model.DeriveDefault(raw)
	switch ev.Kind {
	case KindVcp:
		next.Prefix = ev.Prefix
		next.Issuer = ev.Vcp.Issuer
		next.Backers = ev.Vcp.Backers
		next.Threshold = ev.Vcp.Threshold
		next.NoBackers = ev.Vcp.NoBackers
	case KindVrt:
		next.Backers = applyBackerDelta(next.Backers, ev.Vrt.Add, ev.Vrt.Remove)
	}
	return next
}

func applyBackerDelta(current []model.Prefix, add, remove []model.Prefix) []model.Prefix {
	out := make([]model.Prefix, 0, len(current)+len(add))
	removed := make(map[model.Prefix]bool, len(remove))
	for _, r := range remove {
		removed[r] = true
	}
	for _, c := range current {
		if !removed[c] {
			out = append(out, c)
		}
	}
	out = append(out, add...)
	return out
}

func foldVC(state TelState, ve VerifiableEvent, raw []byte) TelState {
	next := state
	next.LastEventDigest = model.DeriveDefault(raw)
	switch ve.Event.Kind {
	case KindIss:
		next.Status = StatusIssued
		next.LastEvent = &ve
	case KindRev:
		next.Status = StatusRevoked
		next.LastEvent = &ve
	}
	return next
}
