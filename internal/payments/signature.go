package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the gateway signs webhook deliveries with,
// formatted "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 over "<t>.<rawBody>".
// Verification runs against the raw request bytes before any JSON parsing.
const SignatureHeader = "Gateway-Signature"

const signatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("invalid webhook signature")

func computeSignature(timestamp string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a signature header value for payload. Production only
// verifies; signing is here so tests and local gateway stubs share the exact
// scheme.
func SignPayload(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, computeSignature(timestamp, payload, secret))
}

// VerifySignature checks header against the raw payload bytes. It rejects
// malformed headers, signature mismatches, and timestamps outside the
// tolerance window (replay protection).
func VerifySignature(payload []byte, header, secret string) error {
	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := time.Since(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	expected := computeSignature(timestamp, payload, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
