package billing

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

// signatureTolerance bounds how old a webhook timestamp may be. Stripe
// recommends five minutes to blunt replay attacks.
const signatureTolerance = 5 * time.Minute

// ErrInvalidSignature is surfaced verbatim as the webhook 400 detail.
var ErrInvalidSignature = errors.New("Invalid signature")

// VerifySignature checks a Stripe-Signature header against the payload.
// The header carries `t=<unix>,v1=<hex>` pairs; the signed message is
// "<t>.<payload>" under HMAC-SHA256 with the endpoint secret. Any one
// matching v1 signature passes.
// Parameters:
//   - payload: raw request body, before any parsing.
//   - header: Stripe-Signature header value.
//   - secret: webhook endpoint secret (whsec_...).
//   - now: current time, for timestamp tolerance.
//
// Returns:
//   - error: ErrInvalidSignature on any mismatch, stale timestamp, or
//     malformed header.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" || secret == "" {
		return ErrInvalidSignature
	}

	var timestamp int64
	var signatures [][]byte
	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload builds a Stripe-Signature header value for payload. Webhook
// tests and local replay tooling use it; verification never does.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
