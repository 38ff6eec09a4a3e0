package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// SignatureHeaders carries the signature of one request.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Headers returns the signature as HTTP header values.
func (s SignatureHeaders) Headers() map[string]string {
	return map[string]string{
		HeaderSignature: s.Signature,
		HeaderTimestamp: strconv.FormatInt(s.Timestamp, 10),
		HeaderID:        s.ID,
	}
}

// SignPayload signs HMAC-SHA256(secret, "<unix timestamp>.<payload>").
func SignPayload(secret string, payload []byte) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts := time.Now().Unix()
	return SignatureHeaders{
		Signature: sign(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.NewString(),
	}, nil
}

// VerifySignature checks the signature and, when maxAge > 0, rejects stale
// timestamps and timestamps more than a minute in the future.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidConfiguration)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signature timestamp too old: %v", ErrInvalidConfiguration, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: signature timestamp is in the future", ErrInvalidConfiguration)
		}
	}

	expected := sign(secret, headers.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidConfiguration)
	}
	return nil
}

// ExtractSignatureHeaders reads signature headers from an HTTP request header.
func ExtractSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}
	if ts := h.Get(HeaderTimestamp); ts != "" {
		v, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return SignatureHeaders{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidConfiguration)
		}
		sig.Timestamp = v
	}
	if sig.Signature == "" || sig.Timestamp == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: missing required signature headers", ErrInvalidConfiguration)
	}
	return sig, nil
}

func sign(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", ts, payload)
	return hex.EncodeToString(h.Sum(nil))
}
