package model

// SealKind distinguishes the two Seal variants an Ixn's data section may
// carry.
type SealKind uint8

const (
	// SealKindDigest binds to content only.
	SealKindDigest SealKind = iota
	// SealKindEvent binds to a specific (prefix, sn, digest).
	SealKindEvent
)

// DigestSeal binds to content by digest alone.
type DigestSeal struct {
	Digest Digest `json:"d"`
}

// EventSeal binds to a specific event: the prefix and sn that produced it
// plus the digest of its serialized bytes.
type EventSeal struct {
	Prefix      Prefix `json:"i"`
	Sn          uint64 `json:"s"`
	EventDigest Digest `json:"d"`
}

// Seal is a value-typed reference carried in an Ixn event's data section.
// Exactly one of Digest/Event is meaningful, selected by Kind.
type Seal struct {
	Kind   SealKind    `json:"kind"`
	Digest *DigestSeal `json:"digest,omitempty"`
	Event  *EventSeal  `json:"event,omitempty"`
}

// NewDigestSeal builds a digest-kind Seal.
func NewDigestSeal(d Digest) Seal {
	return Seal{Kind: SealKindDigest, Digest: &DigestSeal{Digest: d}}
}

// NewEventSeal builds an event-kind Seal.
func NewEventSeal(prefix Prefix, sn uint64, digest Digest) Seal {
	return Seal{Kind: SealKindEvent, Event: &EventSeal{Prefix: prefix, Sn: sn, EventDigest: digest}}
}

// MatchesEvent reports whether this seal is an EventSeal identifying the
// given (prefix, sn) whose digest binds to serialized. This is the
// predicate check_seal evaluates against every seal in a KEL event's data
// section.
func (s Seal) MatchesEvent(prefix Prefix, sn uint64, serialized []byte) bool {
	if s.Kind != SealKindEvent || s.Event == nil {
		return false
	}
	return s.Event.Prefix == prefix && s.Event.Sn == sn && s.Event.EventDigest.VerifyBinding(serialized)
}

// EventSourceSeal is the seal a TEL event carries pointing back at the KEL
// Ixn that anchors it: the Ixn's sn and the digest of its unsigned event
// message (never the signed form — see DESIGN.md on the source-seal digest
// ambiguity in the original source).
type EventSourceSeal struct {
	Sn     uint64 `json:"sn"`
	Digest Digest `json:"digest"`
}
