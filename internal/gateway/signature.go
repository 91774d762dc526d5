// internal/gateway/signature.go
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

const hashField = "hash"

// Sign computes the uppercase hex HMAC-SHA512 over the concatenation of every
// field value except the hash itself, in wire order.
func Sign(values Values, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	for _, f := range values {
		if strings.EqualFold(f.Key, hashField) {
			continue
		}
		mac.Write([]byte(f.Value))
	}
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Verify reports whether values carry a hash matching their content.
func Verify(values Values, secret string) bool {
	got := values.Get(hashField)
	if got == "" {
		return false
	}
	want := Sign(values, secret)
	return hmac.Equal([]byte(strings.ToUpper(got)), []byte(want))
}

// VerifyWebhookSignature recomputes the hash over the webhook's reference,
// external reference, amount, status and poll URL and compares it in constant
// time. A mismatch or missing hash yields false, never an error.
func VerifyWebhookSignature(p WebhookPayload, secret string) bool {
	if p.Hash == "" {
		return false
	}
	want := Sign(p.signedValues(), secret)
	return hmac.Equal([]byte(strings.ToUpper(p.Hash)), []byte(want))
}
