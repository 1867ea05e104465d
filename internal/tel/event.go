// Package tel implements the Transaction Event Log engine: a management
// sub-TEL holding the backer set and threshold, and one per-credential
// sub-TEL per issued verifiable credential, folded into TelState /
// ManagerTelState. Grounded on the original source's tel/mod.rs, reworked
// from a teliox-backed single process Tel into a Store-backed engine
// exposing the same make_*_event/process/get_vc_state surface.
package tel

import "github.com/karasz/kelissuer/internal/model"

// Kind discriminates the TEL event-data variants the spec names.
type Kind uint8

const (
	// KindVcp is the management sub-TEL's inception event.
	KindVcp Kind = iota
	// KindVrt rotates the backer set.
	KindVrt
	// KindIss issues a credential.
	KindIss
	// KindRev revokes a credential.
	KindRev
)

func (k Kind) String() string {
	switch k {
	case KindVcp:
		return "vcp"
	case KindVrt:
		return "vrt"
	case KindIss:
		return "iss"
	case KindRev:
		return "rev"
	default:
		return "unknown"
	}
}

// NoBackers marks a management TEL as backerless; make_rotation_event
// fails against a config built this way.
const NoBackers = true

// Config is the management sub-TEL's backer policy.
type Config struct {
	Backers   []model.Prefix
	Threshold uint64
	NoBackers bool
}

// VcpData is the management inception event's payload: the issuer KEL
// prefix this TEL is bound to, plus the initial backer configuration.
type VcpData struct {
	Issuer    model.Prefix   `json:"ii"`
	Backers   []model.Prefix `json:"b,omitempty"`
	Threshold uint64         `json:"bt"`
	NoBackers bool           `json:"nb"`
}

// VrtData adds and removes backers from the management sub-TEL.
type VrtData struct {
	Add    []model.Prefix `json:"ba,omitempty"`
	Remove []model.Prefix `json:"br,omitempty"`
}

// IssData records the credential digest an Iss event issues.
type IssData struct {
	MessageDigest model.Digest `json:"d"`
}

// RevData records the credential digest a Rev event revokes, chaining to
// the Iss event it revokes via PriorDigest on the enclosing Event.
type RevData struct {
	MessageDigest model.Digest `json:"d"`
}

// Event is the ordered TEL record `{prefix, sn, event_data}` the spec
// describes. Prefix is the management tel_prefix for Vcp/Vrt, and the
// credential digest (as a self-addressing Prefix) for Iss/Rev.
type Event struct {
	Prefix      model.Prefix `json:"i"`
	Sn          uint64       `json:"s"`
	Kind        Kind         `json:"t"`
	PriorDigest model.Digest `json:"p,omitempty"`

	Vcp *VcpData `json:"vcp,omitempty"`
	Vrt *VrtData `json:"vrt,omitempty"`
	Iss *IssData `json:"iss,omitempty"`
	Rev *RevData `json:"rev,omitempty"`
}

// VerifiableEvent is a TEL event together with the EventSourceSeal that
// anchors it to the KEL Ixn carrying the matching Seal::Event. Process
// stores SourceSeal as given without checking it; an event whose seal does
// not resolve to an anchoring Ixn fails the cross-anchor check
// (kel.Engine.CheckSeal) when it is verified.
type VerifiableEvent struct {
	Event      Event                  `json:"event"`
	SourceSeal model.EventSourceSeal  `json:"source_seal"`
}
