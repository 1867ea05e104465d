package model

import "testing"

func TestDigestVerifyBinding(t *testing.T) {
	data := []byte("credential payload")
	d := DeriveDefault(data)
	if !d.VerifyBinding(data) {
		t.Fatal("digest should bind to the data it was derived from")
	}
	if d.VerifyBinding([]byte("different payload")) {
		t.Fatal("digest should not bind to unrelated data")
	}
}

func TestDigestStringRoundTrip(t *testing.T) {
	d := DeriveDefault([]byte("round trip me"))
	parsed, err := ParseDigest(d.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != d {
		t.Fatalf("parsed digest %v != original %v", parsed, d)
	}
}

func TestDigestJSONRoundTrip(t *testing.T) {
	d := DeriveDefault([]byte("json me"))
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var out Digest
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if out != d {
		t.Fatalf("unmarshaled %v != original %v", out, d)
	}
}

func TestParseDigestRejectsWrongTag(t *testing.T) {
	if _, err := ParseDigest("X0011"); err == nil {
		t.Fatal("expected error for wrong kind tag")
	}
}
