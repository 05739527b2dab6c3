package webhook

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLWtleQ==" // "test-signing-key"

func newTestVerifier(t *testing.T) *Verifier {
	v, err := NewVerifier(testSecret, 5*time.Minute)
	require.NoError(t, err)
	return v
}

func signedHeaders(v *Verifier, messageID string, at time.Time, body []byte) http.Header {
	timestamp := fmt.Sprintf("%d", at.Unix())
	headers := http.Header{}
	headers.Set("Webhook-Id", messageID)
	headers.Set("Webhook-Timestamp", timestamp)
	headers.Set("Webhook-Signature", v.Sign(messageID, timestamp, body))
	return headers
}

func TestNewVerifier(t *testing.T) {
	t.Run("decodes prefixed secret", func(t *testing.T) {
		v, err := NewVerifier(testSecret, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []byte("test-signing-key"), v.key)
	})

	t.Run("accepts unprefixed secret", func(t *testing.T) {
		v, err := NewVerifier(base64.StdEncoding.EncodeToString([]byte("raw-key")), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, []byte("raw-key"), v.key)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewVerifier("", time.Minute)
		assert.Error(t, err)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := NewVerifier("whsec_!!!not-base64!!!", time.Minute)
		assert.Error(t, err)
	})
}

func TestVerifier_Verify(t *testing.T) {
	body := []byte(`{"type":"user.created","data":{"id":"user_123"}}`)

	t.Run("valid signature", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		assert.NoError(t, v.Verify(headers, body))
	})

	t.Run("multiple candidates, one valid", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		valid := headers.Get("Webhook-Signature")
		headers.Set("Webhook-Signature",
			"v1,"+base64.StdEncoding.EncodeToString([]byte("wrong-signature-aaaa"))+" "+valid)
		assert.NoError(t, v.Verify(headers, body))
	})

	t.Run("tampered body", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		err := v.Verify(headers, []byte(`{"type":"user.created","data":{"id":"user_999"}}`))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong key", func(t *testing.T) {
		v := newTestVerifier(t)
		other, err := NewVerifier("whsec_"+base64.StdEncoding.EncodeToString([]byte("other-key")), 5*time.Minute)
		require.NoError(t, err)

		headers := signedHeaders(other, "msg_1", time.Now(), body)
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := http.Header{}
		headers.Set("Webhook-Id", "msg_1")
		assert.ErrorIs(t, v.Verify(headers, body), ErrMissingHeaders)
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		headers.Set("Webhook-Timestamp", "not-a-number")
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidTimestamp)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now().Add(-10*time.Minute), body)
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidTimestamp)
	})

	t.Run("future timestamp", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now().Add(10*time.Minute), body)
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidTimestamp)
	})

	t.Run("unknown version candidates only", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		sig := headers.Get("Webhook-Signature")
		headers.Set("Webhook-Signature", "v2,"+sig[3:])
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidSignature)
	})

	t.Run("signature over different message id", func(t *testing.T) {
		v := newTestVerifier(t)
		headers := signedHeaders(v, "msg_1", time.Now(), body)
		headers.Set("Webhook-Id", "msg_2")
		assert.ErrorIs(t, v.Verify(headers, body), ErrInvalidSignature)
	})
}
