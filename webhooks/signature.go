package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goliatone/go-autohook/core"
)

const (
	// SignatureHeader carries sha256=<base64> on every inbound request.
	SignatureHeader = "x-twitter-webhooks-signature"
	SignaturePrefix = "sha256="
	CRCTokenParam   = "crc_token"
)

// ChallengeResponse is the JSON answer to a CRC handshake.
type ChallengeResponse struct {
	ResponseToken string `json:"response_token"`
}

// ComputeChallengeResponse returns sha256=<base64 HMAC-SHA256(crcToken)>.
func ComputeChallengeResponse(crcToken, consumerSecret string) string {
	return SignaturePrefix + digest(consumerSecret, []byte(crcToken))
}

// ValidateWebhook answers a CRC handshake without a controller.
func ValidateWebhook(crcToken, consumerSecret string) ChallengeResponse {
	return ChallengeResponse{ResponseToken: ComputeChallengeResponse(crcToken, consumerSecret)}
}

// Verify recomputes the signature of rawBody and compares it to headerValue
// in constant time.
func Verify(headerValue, consumerSecret string, rawBody []byte) bool {
	expected := ComputeChallengeResponse(string(rawBody), consumerSecret)
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(headerValue)), []byte(expected)) == 1
}

// ValidateSignature checks the signature header of a request whose headers
// are already collected. A missing header is a KindMissingHeader error.
func ValidateSignature(headers map[string]string, consumerSecret string, rawBody []byte) (bool, error) {
	header := headerValue(headers, SignatureHeader)
	if header == "" {
		return false, core.NewError(core.KindMissingHeader, fmt.Sprintf("webhooks: %s header is required", SignatureHeader))
	}
	return Verify(header, consumerSecret, rawBody), nil
}

// SignatureVerifier verifies inbound requests for one consumer secret.
type SignatureVerifier struct {
	ConsumerSecret string
}

func NewSignatureVerifier(consumerSecret string) SignatureVerifier {
	return SignatureVerifier{ConsumerSecret: consumerSecret}
}

// Verify signs the body, or the raw query string when the body is empty, as
// CRC pings carry their payload in the query.
func (v SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	if strings.TrimSpace(v.ConsumerSecret) == "" {
		return core.NewError(core.KindTypeConstraint, "webhooks: consumer secret is required")
	}
	payload := SignedPayload(req)
	ok, err := ValidateSignature(req.Headers, v.ConsumerSecret, payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}

// SignedPayload returns the bytes covered by the inbound signature.
func SignedPayload(req core.InboundRequest) []byte {
	if len(req.Body) == 0 && req.RawQuery != "" {
		return []byte(req.RawQuery)
	}
	return req.Body
}

// ErrSignatureMismatch reports a present but invalid signature.
var ErrSignatureMismatch = core.NewError(core.KindAuthentication, "webhooks: signature verification failed")

func digest(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
