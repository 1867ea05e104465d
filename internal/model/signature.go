package model

import "encoding/json"

// SigAlgo identifies the signing algorithm a Signature was produced with.
type SigAlgo uint8

const (
	// SigEd25519 is the only algorithm this implementation's KeyManager
	// produces; the tag is carried on the wire so a future algorithm can
	// be added without breaking existing signed events.
	SigEd25519 SigAlgo = iota
)

// Signature is a typed self-signing prefix: an algorithm tag, the raw
// signature bytes, and the positional index of the signer within the
// signer set of the establishment event in force. Single-sig controllers
// always use index 0; multi-sig controllers index by signer order.
type Signature struct {
	Algo  SigAlgo
	Raw   []byte
	Index uint16
}

// NewSignature builds a Signature for the common single-sig case.
func NewSignature(raw []byte) Signature {
	return Signature{Algo: SigEd25519, Raw: raw, Index: 0}
}

type signatureWire struct {
	Algo  SigAlgo `json:"algo"`
	Index uint16  `json:"index"`
	Raw   []byte  `json:"raw"`
}

// MarshalJSON renders the signature with its raw bytes base64-encoded,
// keeping the canonical event JSON free of embedded binary.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureWire{Algo: s.Algo, Index: s.Index, Raw: s.Raw})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Signature) UnmarshalJSON(b []byte) error {
	var w signatureWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	s.Algo = w.Algo
	s.Index = w.Index
	s.Raw = w.Raw
	return nil
}
