package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "wh-secret"
	body := []byte(`{"activities":[{"activityId":1}]}`)

	t.Run("valid", func(t *testing.T) {
		assert.True(t, VerifySignature(secret, sign(secret, body), body))
	})

	t.Run("sha256 prefix accepted", func(t *testing.T) {
		assert.True(t, VerifySignature(secret, "sha256="+sign(secret, body), body))
	})

	t.Run("tampered body", func(t *testing.T) {
		tampered := append([]byte{}, body...)
		tampered[0] = '['
		assert.False(t, VerifySignature(secret, sign(secret, body), tampered))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, sign("other", body), body))
	})

	t.Run("length mismatch", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "abcd", body))
	})

	t.Run("missing header with secret configured", func(t *testing.T) {
		assert.False(t, VerifySignature(secret, "", body))
	})

	t.Run("no secret configured skips verification", func(t *testing.T) {
		assert.True(t, VerifySignature("", "", body))
		assert.True(t, VerifySignature("", "garbage", body))
	})
}
