package tel

import (
	"testing"

	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func sourceSealFor(t *testing.T, ev Event, sn uint64) model.EventSourceSeal {
	t.Helper()
	return model.EventSourceSeal{Sn: sn, Digest: model.DeriveDefault([]byte("fake-anchoring-ixn"))}
}

func TestManagementInceptionSetsTelPrefix(t *testing.T) {
	e := newTestEngine(t)
	issuer := model.SelfAddressingPrefixFromDigest(model.DeriveDefault([]byte("issuer")))

	vcp, err := e.MakeInceptionEvent(issuer, Config{NoBackers: true})
	if err != nil {
		t.Fatal(err)
	}
	if vcp.Kind != KindVcp || vcp.Sn != 0 {
		t.Fatalf("unexpected vcp event: %+v", vcp)
	}

	ve := VerifiableEvent{Event: vcp, SourceSeal: sourceSealFor(t, vcp, 1)}
	if _, err := e.Process(ve); err != nil {
		t.Fatal(err)
	}
	if e.TelPrefix() != vcp.Prefix {
		t.Fatal("processing the Vcp event should bind the management tel_prefix")
	}
}

func TestIssueThenRevokeLifecycle(t *testing.T) {
	e := newTestEngine(t)
	issuer := model.SelfAddressingPrefixFromDigest(model.DeriveDefault([]byte("issuer")))
	vcp, err := e.MakeInceptionEvent(issuer, Config{NoBackers: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(VerifiableEvent{Event: vcp, SourceSeal: sourceSealFor(t, vcp, 1)}); err != nil {
		t.Fatal(err)
	}

	msgDigest := model.DeriveDefault([]byte("vc2"))
	st, err := e.GetVCState(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusNotIssued {
		t.Fatalf("expected NotIssued before any event, got %v", st.Status)
	}

	iss, err := e.MakeIssuanceEvent(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(VerifiableEvent{Event: iss, SourceSeal: sourceSealFor(t, iss, 2)}); err != nil {
		t.Fatal(err)
	}

	st, err = e.GetVCState(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusIssued {
		t.Fatalf("expected Issued after Iss, got %v", st.Status)
	}

	rev, err := e.MakeRevokeEvent(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if rev.Sn != 1 {
		t.Fatalf("expected revoke sn 1, got %d", rev.Sn)
	}
	if _, err := e.Process(VerifiableEvent{Event: rev, SourceSeal: sourceSealFor(t, rev, 3)}); err != nil {
		t.Fatal(err)
	}

	st, err = e.GetVCState(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusRevoked {
		t.Fatalf("expected Revoked after Rev, got %v", st.Status)
	}

	events, err := e.GetTel(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 TEL events (Iss, Rev), got %d", len(events))
	}
}

func TestRevokeBeforeIssueFails(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.MakeRevokeEvent(model.DeriveDefault([]byte("never issued"))); err == nil {
		t.Fatal("expected error revoking an unissued credential")
	}
}

func TestDoubleIssueFails(t *testing.T) {
	e := newTestEngine(t)
	msgDigest := model.DeriveDefault([]byte("vc2"))
	iss, err := e.MakeIssuanceEvent(msgDigest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(VerifiableEvent{Event: iss, SourceSeal: sourceSealFor(t, iss, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(VerifiableEvent{Event: iss, SourceSeal: sourceSealFor(t, iss, 1)}); err == nil {
		t.Fatal("expected error re-issuing an already-issued credential")
	}
}

func TestRotationForbiddenWithoutBackers(t *testing.T) {
	e := newTestEngine(t)
	issuer := model.SelfAddressingPrefixFromDigest(model.DeriveDefault([]byte("issuer")))
	vcp, err := e.MakeInceptionEvent(issuer, Config{NoBackers: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(VerifiableEvent{Event: vcp, SourceSeal: sourceSealFor(t, vcp, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MakeRotationEvent(nil, nil); err == nil {
		t.Fatal("expected error rotating backers on a no-backers management TEL")
	}
}
