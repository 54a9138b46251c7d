package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the payload signature on inbound webhook requests.
const SignatureHeader = "X-Stitch-Signature-256"

const signaturePrefix = "sha256="

// Sign computes the signature header value for a payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against the payload in constant time.
// An empty secret skips verification entirely.
func Verify(secret string, payload []byte, signatureHeader string) bool {
	if secret == "" {
		return true
	}

	expected := Sign(secret, payload)

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
