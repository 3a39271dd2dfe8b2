package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the accepted age of a signed payload.
const DefaultTolerance = 300 * time.Second

// Verification failure reasons.
const (
	ReasonMissingHeader     = "missing_header"
	ReasonMalformedHeader   = "malformed_header"
	ReasonSignatureMismatch = "signature_mismatch"
	ReasonStaleTimestamp    = "stale_timestamp"
)

// VerificationError describes why a payload was rejected. The reason is safe
// to log and return; it never echoes payload or secret material.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %s", e.Reason)
}

// Verifier checks that a raw webhook body was signed by the processor with
// the shared secret, within the freshness window.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the shared secret. A zero tolerance
// falls back to DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify validates the signature header against the exact request bytes and
// returns the parsed event envelope. The signature is computed over
// "{timestamp}.{rawBody}" with HMAC-SHA256; comparison is constant time.
func (v *Verifier) Verify(rawBody []byte, sigHeader string) (*Event, error) {
	if sigHeader == "" {
		return nil, &VerificationError{Reason: ReasonMissingHeader}
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, &VerificationError{Reason: ReasonMalformedHeader}
	}

	if v.now().Sub(time.Unix(timestamp, 0)) > v.tolerance {
		return nil, &VerificationError{Reason: ReasonStaleTimestamp}
	}

	expected := computeSignature(timestamp, rawBody, v.secret)
	match := false
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			match = true
			break
		}
	}
	if !match {
		return nil, &VerificationError{Reason: ReasonSignatureMismatch}
	}

	return ParseEvent(rawBody)
}

// parseSignatureHeader splits "t=<unix_ts>,v1=<hex>[,v1=<hex>...]". The
// processor sends multiple v1 entries during secret rotation; any match
// counts. Other schemes (v0) are ignored.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		timestamp  int64
		hasT       bool
		signatures [][]byte
	)

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return 0, nil, fmt.Errorf("malformed signature header element %q", pair)
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed timestamp: %w", err)
			}
			timestamp = ts
			hasT = true
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil || len(sig) == 0 {
				return 0, nil, fmt.Errorf("malformed v1 signature")
			}
			signatures = append(signatures, sig)
		}
	}

	if !hasT || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("signature header missing t= or v1=")
	}

	return timestamp, signatures, nil
}

func computeSignature(timestamp int64, body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return mac.Sum(nil)
}
