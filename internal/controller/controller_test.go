package controller

import (
	"testing"

	"github.com/karasz/kelissuer/internal/kel"
	"github.com/karasz/kelissuer/internal/keys"
	"github.com/karasz/kelissuer/internal/model"
	"github.com/karasz/kelissuer/internal/tel"
	"github.com/karasz/kelissuer/internal/wire"
)

func newTestController(t *testing.T) (*Controller, *keys.Manager) {
	t.Helper()
	km, err := keys.New()
	if err != nil {
		t.Fatal(err)
	}
	c, err := Init(km, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, km
}

func TestHappyPathIssueVerify(t *testing.T) {
	c, _ := newTestController(t)

	sig, err := c.Issue([]byte("vc2"))
	if err != nil {
		t.Fatal(err)
	}

	ok, err := c.Verify([]byte("vc2"), sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature over an issued credential to verify")
	}

	kerl, err := c.GetKERL()
	if err != nil {
		t.Fatal(err)
	}
	var kinds []kel.Kind
	rest := kerl
	for len(rest) > 0 {
		var signed kel.SignedEvent
		var err error
		rest, err = wire.Decode(rest, &signed)
		if err != nil {
			t.Fatal(err)
		}
		kinds = append(kinds, signed.Event.Kind)
	}
	// Icp, then the management-TEL-anchoring Ixn from Init, then the
	// Iss-anchoring Ixn from Issue.
	if len(kinds) != 3 || kinds[0] != kel.KindIcp || kinds[1] != kel.KindIxn || kinds[2] != kel.KindIxn {
		t.Fatalf("unexpected kel shape after issue: %v", kinds)
	}
}

func TestVerifyStillPassesAfterRotate(t *testing.T) {
	c, _ := newTestController(t)

	sig, err := c.Issue([]byte("vc2"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Rotate(); err != nil {
		t.Fatal(err)
	}

	ok, err := c.Verify([]byte("vc2"), sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("verification should check the historical key state as of issuance, surviving a later rotation")
	}

	// A second issuance after rotation should sign with, and verify
	// against, the rotated-in key.
	sig2, err := c.Issue([]byte("vc3"))
	if err != nil {
		t.Fatal(err)
	}
	ok, err = c.Verify([]byte("vc3"), sig2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected post-rotation issuance to verify")
	}
}

func TestVerifyFailsAfterRevoke(t *testing.T) {
	c, _ := newTestController(t)

	sig, err := c.Issue([]byte("vc2"))
	if err != nil {
		t.Fatal(err)
	}
	digest := model.DeriveDefault([]byte("vc2"))
	if err := c.Revoke(digest); err != nil {
		t.Fatal(err)
	}

	_, err = c.Verify([]byte("vc2"), sig)
	if err == nil {
		t.Fatal("expected verify to fail once the credential is revoked")
	}

	telBytes, err := c.GetTel(digest)
	if err != nil {
		t.Fatal(err)
	}
	var count int
	rest := telBytes
	for len(rest) > 0 {
		var ve tel.VerifiableEvent
		var derr error
		rest, derr = wire.Decode(rest, &ve)
		if derr != nil {
			t.Fatal(derr)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 tel events (Iss, Rev), got %d", count)
	}
}

func TestResolveSigningKeysMatchesIssuanceKey(t *testing.T) {
	c, km := newTestController(t)

	digest := model.DeriveDefault([]byte("vc2"))
	if _, err := c.Issue([]byte("vc2")); err != nil {
		t.Fatal(err)
	}

	prefixes, threshold, err := c.ResolveSigningKeys(digest)
	if err != nil {
		t.Fatal(err)
	}
	if threshold != 1 {
		t.Fatalf("expected threshold 1, got %d", threshold)
	}
	if len(prefixes) != 1 {
		t.Fatalf("expected exactly one signer prefix, got %d", len(prefixes))
	}
	want := model.BasicPrefixFromKey(km.CurrentPublicKeys()[0])
	if prefixes[0] != want {
		t.Fatal("resolved signer prefix should match the key that signed at issuance time")
	}

	// Rotating afterwards must not change the resolved signer for a
	// credential already issued.
	if _, err := c.Rotate(); err != nil {
		t.Fatal(err)
	}
	prefixesAfter, _, err := c.ResolveSigningKeys(digest)
	if err != nil {
		t.Fatal(err)
	}
	if prefixesAfter[0] != want {
		t.Fatal("resolved signer prefix should stay the historical one after rotation")
	}
}

func TestVerifyUnknownCredentialFails(t *testing.T) {
	c, _ := newTestController(t)
	sig, err := c.Sign([]byte("never issued"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Verify([]byte("never issued"), sig); err == nil {
		t.Fatal("expected verify to fail for a credential that was never issued")
	}
}

func TestRespondReceiptsForeignControllerKerl(t *testing.T) {
	c, _ := newTestController(t)
	foreign, _ := newTestController(t)

	foreignKerl, err := foreign.GetKERL()
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Respond(foreignKerl)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) == 0 {
		t.Fatal("expected a non-empty response to a foreign KERL")
	}

	// Our own KEL should have grown by one Rct event per foreign event
	// receipted (foreign controller's Icp and its management-TEL-anchoring
	// Ixn).
	kerl, err := c.GetKERL()
	if err != nil {
		t.Fatal(err)
	}
	var rcts int
	rest := kerl
	for len(rest) > 0 {
		var signed kel.SignedEvent
		var derr error
		rest, derr = wire.Decode(rest, &signed)
		if derr != nil {
			t.Fatal(derr)
		}
		if signed.Event.Kind == kel.KindRct {
			rcts++
		}
	}
	if rcts != 2 {
		t.Fatalf("expected 2 receipts (Icp, Ixn), got %d", rcts)
	}
}

func TestOpenReopensExistingController(t *testing.T) {
	dir := t.TempDir()
	km, err := keys.New()
	if err != nil {
		t.Fatal(err)
	}
	c1, err := Init(km, dir)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := c1.Issue([]byte("vc2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	km2, err := keys.New()
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Open(km2, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	ok, err := c2.Verify([]byte("vc2"), sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("reopened controller should still verify credentials issued before restart")
	}
}
