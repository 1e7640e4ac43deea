// Package webhook implements the inbound side of provider integration:
// signature verification, payload normalization, and the HTTP receiver.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifySignature checks an HMAC-SHA256 signature header against the raw
// request body. An empty secret means verification is not configured for
// this deployment tier and the body is accepted as-is. A configured secret
// with a missing header is a rejection. Comparison is constant time; a
// length mismatch rejects without an early-exit byte compare.
func VerifySignature(secret, signature string, body []byte) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	// Providers vary on "sha256=" prefixes and hex casing.
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	signature = strings.ToLower(signature)

	if len(signature) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(signature)) == 1
}
