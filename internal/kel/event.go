// Package kel implements the Key Event Log engine: inception, rotation,
// and interaction events over a self-certifying identifier, folded into an
// IdentifierState, with the receipt and cross-anchor primitives the
// Anchoring Protocol and Controller build on. Grounded on the original
// source's kerl/mod.rs, reworked from a sled-backed single-process KERL
// into a Store-backed engine with the same incept/rotate/make_ixn_with_seal
// /respond/get_state surface.
package kel

import (
	"github.com/karasz/kelissuer/internal/model"
)

// Kind discriminates the four KEL event-data variants the spec names.
type Kind uint8

const (
	KindIcp Kind = iota
	KindRot
	KindIxn
	KindRct
)

func (k Kind) String() string {
	switch k {
	case KindIcp:
		return "icp"
	case KindRot:
		return "rot"
	case KindIxn:
		return "ixn"
	case KindRct:
		return "rct"
	default:
		return "unknown"
	}
}

// Establishment carries the signing configuration an Icp or Rot event
// commits to: the current keys, the digest of the next key set, the
// signing threshold, and an optional witness set.
type Establishment struct {
	Keys          [][]byte      `json:"k"`
	NextKeyDigest model.Digest  `json:"n"`
	Threshold     uint64        `json:"kt"`
	Witnesses     []model.Prefix `json:"b,omitempty"`
}

// IxnData carries the seal list an interaction event anchors.
type IxnData struct {
	Seals []model.Seal `json:"a"`
}

// RctData identifies the event a receipt attests to.
type RctData struct {
	OfPrefix model.Prefix `json:"ri"`
	OfSn     uint64       `json:"rs"`
	OfDigest model.Digest `json:"rd"`
}

// Event is the ordered KEL record `{prefix, sn, event_data, ...}` the spec
// describes, with exactly one of Establishment/Ixn/Rct populated according
// to Kind.
type Event struct {
	Prefix      model.Prefix `json:"i"`
	Sn          uint64       `json:"s"`
	Kind        Kind         `json:"t"`
	PriorDigest model.Digest `json:"p,omitempty"`

	Establishment *Establishment `json:"ee,omitempty"`
	Ixn           *IxnData       `json:"ix,omitempty"`
	Rct           *RctData       `json:"rc,omitempty"`
}

// SignedEvent is an Event together with the canonical bytes it was signed
// over and its attached signatures.
type SignedEvent struct {
	Event      Event             `json:"event"`
	Raw        []byte            `json:"-"`
	Signatures []model.Signature `json:"sigs"`
}
