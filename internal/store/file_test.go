package store

import (
	"os"
	"testing"
)

func TestFileStore_AppendGetTail(t *testing.T) {
	dir, err := os.MkdirTemp("", "kelissuer-filestore-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	for sn := uint64(0); sn < 3; sn++ {
		if err := st.Append(Record{Prefix: "EABC", Sn: sn, Data: []byte{byte(sn)}}); err != nil {
			t.Fatalf("append sn %d: %v", sn, err)
		}
	}

	data, ok, err := st.Get("EABC", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || len(data) != 1 || data[0] != 1 {
		t.Fatalf("unexpected record at sn 1: %v ok=%v", data, ok)
	}

	tail, ok, err := st.TailSn("EABC")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || tail != 2 {
		t.Fatalf("want tail 2, got %d ok=%v", tail, ok)
	}

	_, ok, err = st.Get("EABC", 99)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for unknown sn")
	}
}

func TestFileStore_NonContiguousAppendFails(t *testing.T) {
	dir, err := os.MkdirTemp("", "kelissuer-filestore-gap-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.Append(Record{Prefix: "EABC", Sn: 0, Data: []byte("first")}); err != nil {
		t.Fatal(err)
	}
	if err := st.Append(Record{Prefix: "EABC", Sn: 2, Data: []byte("gap")}); err == nil {
		t.Fatal("expected error on non-contiguous sn")
	}
}

func TestFileStore_IterSeparatesPrefixes(t *testing.T) {
	dir, err := os.MkdirTemp("", "kelissuer-filestore-iter-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	for sn := uint64(0); sn < 4; sn++ {
		if err := st.Append(Record{Prefix: "kel", Sn: sn, Data: []byte{byte(sn)}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Append(Record{Prefix: "tel", Sn: 0, Data: []byte("x")}); err != nil {
		t.Fatal(err)
	}

	out, cancel, err := st.Iter("kel", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	var sns []uint64
	for r := range out {
		sns = append(sns, r.Sn)
	}
	if len(sns) != 2 || sns[0] != 2 || sns[1] != 3 {
		t.Fatalf("unexpected iteration result: %v", sns)
	}
}
