package payments

import (
	"fmt"
	"testing"
	"time"
)

func TestVerifySignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	if err := VerifySignature(payload, header, "whsec_test"); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	if err := VerifySignature([]byte(`{"id":"evt_2"}`), header, "whsec_test"); err == nil {
		t.Error("tampered payload should fail verification")
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	if err := VerifySignature(payload, header, "whsec_other"); err == nil {
		t.Error("wrong secret should fail verification")
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, "whsec_test", time.Now().Add(-10*time.Minute))

	if err := VerifySignature(payload, header, "whsec_test"); err == nil {
		t.Error("timestamp outside the tolerance window should fail")
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	headers := []string{
		"",
		"garbage",
		"t=123",
		"v1=deadbeef",
		fmt.Sprintf("t=notanumber,v1=%s", computeSignature("notanumber", payload, "whsec_test")),
	}

	for _, header := range headers {
		if err := VerifySignature(payload, header, "whsec_test"); err == nil {
			t.Errorf("header %q should fail verification", header)
		}
	}
}
