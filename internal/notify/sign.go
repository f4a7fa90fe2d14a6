package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the X-Headwind-Signature header value for body under
// secret: "sha256=" followed by the hex-encoded HMAC-SHA256 (spec.md §6).
// No third-party signer exists in the retrieval pack for this narrow
// concern, so this uses the standard library directly (see DESIGN.md).
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the HMAC-SHA256 of body under
// secret, per spec.md §8's "Signature round-trip" property.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
