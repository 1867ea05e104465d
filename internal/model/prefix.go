// Package model defines the wire-level value types shared by the KEL and
// TEL engines: identifier prefixes, self-addressing digests, signatures,
// and seals.
package model

import (
	"encoding/hex"
	"fmt"
)

// PrefixKind distinguishes the two identifier prefix variants in use.
type PrefixKind uint8

const (
	// PrefixBasic is a public-key fingerprint prefix.
	PrefixBasic PrefixKind = iota
	// PrefixSelfAddressing is a digest-of-inception-data prefix.
	PrefixSelfAddressing
)

func (k PrefixKind) String() string {
	switch k {
	case PrefixBasic:
		return "B"
	case PrefixSelfAddressing:
		return "D"
	default:
		return "?"
	}
}

// Prefix is a self-certifying identifier prefix. Equality and ordering are
// byte-exact over the canonical string form (kind tag + hex payload).
type Prefix struct {
	Kind    PrefixKind
	Payload [32]byte
}

// ZeroPrefix is the sentinel "not yet set" prefix, used by the TEL engine's
// one-shot tel_prefix bootstrap.
var ZeroPrefix = Prefix{}

// IsZero reports whether p is the unset sentinel value.
func (p Prefix) IsZero() bool {
	return p == ZeroPrefix
}

// String renders the canonical form: a one-letter kind tag followed by the
// hex-encoded payload.
func (p Prefix) String() string {
	return p.Kind.String() + hex.EncodeToString(p.Payload[:])
}

// ParsePrefix parses the canonical string form produced by String.
func ParsePrefix(s string) (Prefix, error) {
	var p Prefix
	if len(s) < 1 {
		return p, fmt.Errorf("empty prefix")
	}
	switch s[0] {
	case 'B':
		p.Kind = PrefixBasic
	case 'D':
		p.Kind = PrefixSelfAddressing
	default:
		return p, fmt.Errorf("unknown prefix kind tag %q", s[0])
	}
	raw, err := hex.DecodeString(s[1:])
	if err != nil {
		return p, fmt.Errorf("decode prefix payload: %w", err)
	}
	if len(raw) != 32 {
		return p, fmt.Errorf("prefix payload must be 32 bytes, got %d", len(raw))
	}
	copy(p.Payload[:], raw)
	return p, nil
}

// BasicPrefixFromKey derives a basic prefix from a public key by copying it
// into the fixed 32-byte payload: longer keys are truncated, shorter ones
// zero-padded. A 32-byte Ed25519 public key fits exactly.
func BasicPrefixFromKey(pub []byte) Prefix {
	var p Prefix
	p.Kind = PrefixBasic
	copy(p.Payload[:], pub)
	return p
}

// SelfAddressingPrefixFromDigest builds a self-addressing prefix from a
// derived digest.
func SelfAddressingPrefixFromDigest(d Digest) Prefix {
	return Prefix{Kind: PrefixSelfAddressing, Payload: d.Value}
}
