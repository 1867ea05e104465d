package wire

import (
	"bytes"
	"testing"
)

type sample struct {
	A string `json:"a"`
	B int    `json:"b"`
}

func TestComposeParseRoundTrip(t *testing.T) {
	in := sample{A: "hello", B: 42}
	composed, err := Compose(in)
	if err != nil {
		t.Fatal(err)
	}

	h, err := ParseHeader(composed)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != versionTag {
		t.Errorf("version = %q, want %q", h.Version, versionTag)
	}

	var out sample
	rest, err := Decode(composed, &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no remainder, got %d bytes", len(rest))
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestNextSplitsConcatenatedMessages(t *testing.T) {
	a, err := Compose(sample{A: "one", B: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compose(sample{A: "two", B: 2})
	if err != nil {
		t.Fatal(err)
	}
	stream := Concat([][]byte{a, b})

	var first sample
	rest, err := Decode(stream, &first)
	if err != nil {
		t.Fatal(err)
	}
	if first.A != "one" || first.B != 1 {
		t.Fatalf("unexpected first message: %+v", first)
	}

	var second sample
	rest, err = Decode(rest, &second)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Errorf("expected stream exhausted, got %d bytes left", len(rest))
	}
	if second.A != "two" || second.B != 2 {
		t.Fatalf("unexpected second message: %+v", second)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	if _, err := ParseHeader([]byte("NOT-A-VALID-HEADER-AT-ALL")); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParseHeaderRejectsShortInput(t *testing.T) {
	if _, err := ParseHeader([]byte("KELI")); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestDecodeRejectsTruncatedBody(t *testing.T) {
	composed, err := Compose(sample{A: "x", B: 1})
	if err != nil {
		t.Fatal(err)
	}
	truncated := composed[:len(composed)-2]
	var out sample
	if _, err := Decode(truncated, &out); err == nil {
		t.Fatal("expected error decoding truncated message")
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	in := sample{A: "repeat", B: 7}
	a, err := Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical bytes for identical input")
	}
}
