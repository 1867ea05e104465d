package model

import "testing"

func TestSignatureJSONRoundTrip(t *testing.T) {
	sig := Signature{Algo: SigEd25519, Raw: []byte{1, 2, 3, 4}, Index: 2}
	b, err := sig.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var out Signature
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if out.Algo != sig.Algo || out.Index != sig.Index || string(out.Raw) != string(sig.Raw) {
		t.Fatalf("unmarshaled %+v != original %+v", out, sig)
	}
}

func TestNewSignatureDefaultsToIndexZero(t *testing.T) {
	sig := NewSignature([]byte{9})
	if sig.Index != 0 {
		t.Fatalf("expected index 0, got %d", sig.Index)
	}
	if sig.Algo != SigEd25519 {
		t.Fatalf("expected SigEd25519, got %v", sig.Algo)
	}
}
