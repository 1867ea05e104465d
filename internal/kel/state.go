package kel

import "github.com/karasz/kelissuer/internal/model"

// IdentifierState is the fold of a KEL up to some sn: the information a
// verifier needs to check a signature or a subsequent establishment event
// without replaying the whole log.
type IdentifierState struct {
	Prefix          model.Prefix
	Sn              uint64
	LastEventDigest model.Digest
	CurrentKeys     [][]byte
	NextKeyDigest   model.Digest
	Threshold       uint64
	Witnesses       []model.Prefix
}

// fold applies one validated event on top of state, returning the updated
// state. The caller is responsible for having already validated ev (chain
// continuity, signature, rotation commitment) before folding it in.
func fold(state IdentifierState, ev Event, raw []byte) IdentifierState {
	next := state
	next.Sn = ev.Sn
	next.LastEventDigest = model.DeriveDefault(raw)
	switch ev.Kind {
	case KindIcp, KindRot:
		next.Prefix = ev.Prefix
		next.CurrentKeys = ev.Establishment.Keys
		next.NextKeyDigest = ev.Establishment.NextKeyDigest
		next.Threshold = ev.Establishment.Threshold
		next.Witnesses = ev.Establishment.Witnesses
	}
	return next
}
