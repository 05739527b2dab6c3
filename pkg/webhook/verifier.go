package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const secretPrefix = "whsec_"

var (
	// ErrMissingHeaders indicates a delivery without the required signature headers
	ErrMissingHeaders = errors.New("missing webhook signature headers")

	// ErrInvalidTimestamp indicates a malformed or out-of-window timestamp
	ErrInvalidTimestamp = errors.New("invalid webhook timestamp")

	// ErrInvalidSignature indicates no signature candidate matched
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Verifier checks provider webhook signatures. The scheme signs
// "<id>.<timestamp>.<body>" with HMAC-SHA256; the signature header carries
// space-separated "v1,<base64>" candidates to allow secret rotation.
type Verifier struct {
	key  []byte
	skew time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewVerifier creates a verifier from a "whsec_" prefixed base64 secret
func NewVerifier(secret string, skew time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook secret: %w", err)
	}

	return &Verifier{
		key:  key,
		skew: skew,
		now:  time.Now,
	}, nil
}

// Verify checks the delivery's signature headers against the raw body.
// Returns nil only when a candidate signature matches and the timestamp is
// within the skew window.
func (v *Verifier) Verify(headers http.Header, body []byte) error {
	messageID := headers.Get("Webhook-Id")
	timestamp := headers.Get("Webhook-Timestamp")
	signatures := headers.Get("Webhook-Signature")
	if messageID == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}
	drift := v.now().UTC().Sub(time.Unix(ts, 0))
	if drift > v.skew || drift < -v.skew {
		return fmt.Errorf("%w: outside tolerance", ErrInvalidTimestamp)
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", messageID, timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Split(signatures, " ") {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		sig, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if hmac.Equal(sig, expected) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// Sign produces a "v1,<base64>" signature for the given delivery. Used by
// tests and by local tooling that emits synthetic deliveries.
func (v *Verifier) Sign(messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", messageID, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
