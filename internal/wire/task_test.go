package wire

import "testing"

func TestTaskEncodeDecodeRoundTrip(t *testing.T) {
	in := Task{ID: "t1", Kind: TaskIssue, Payload: []byte("credential body")}
	out, err := DecodeTask(EncodeTask(in))
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Kind != in.Kind || string(out.Payload) != string(in.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestTaskEncodeDecodeEmptyPayload(t *testing.T) {
	in := Task{ID: "t2", Kind: TaskGetKEL}
	out, err := DecodeTask(EncodeTask(in))
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Kind != in.Kind || len(out.Payload) != 0 {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestResultEncodeDecodeRoundTrip(t *testing.T) {
	in := Result{ID: "t1", OK: true, Payload: []byte("sig-bytes")}
	out, err := DecodeResult(EncodeResult(in))
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.OK != in.OK || string(out.Payload) != string(in.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestResultEncodeDecodeFailure(t *testing.T) {
	in := Result{ID: "t3", OK: false, ErrKind: "validation", ErrMsg: "sn gap"}
	out, err := DecodeResult(EncodeResult(in))
	if err != nil {
		t.Fatal(err)
	}
	if out.OK || out.ErrKind != in.ErrKind || out.ErrMsg != in.ErrMsg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}
