package webhook

import "testing"

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"type":"cancellation.completed"}`)

	first := Sign(payload, "super-secret-value")
	second := Sign(payload, "super-secret-value")
	if first != second {
		t.Fatalf("expected identical signatures, got %q and %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256 signature of 64 chars, got %d", len(first))
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"order_id":"ord-1"}`)
	signature := Sign(payload, "super-secret-value")

	if !VerifySignature(payload, "super-secret-value", signature) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(payload, "another-secret", signature) {
		t.Fatal("expected wrong secret to fail verification")
	}
	if VerifySignature([]byte(`{"order_id":"ord-2"}`), "super-secret-value", signature) {
		t.Fatal("expected mutated payload to fail verification")
	}
	if VerifySignature(payload, "super-secret-value", signature[:len(signature)-2]+"00") {
		t.Fatal("expected mutated signature to fail verification")
	}
}
