package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const SignatureHeader = "X-Webhook-Signature"

// SignWebhook returns the hex HMAC-SHA256 of body under secret.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature reports whether sign authenticates body. An empty
// secret or signature never verifies.
func VerifyWebhookSignature(secret string, body []byte, sign string) bool {
	if secret == "" || sign == "" {
		return false
	}
	expected := SignWebhook(secret, body)
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(sign))), []byte(expected))
}
