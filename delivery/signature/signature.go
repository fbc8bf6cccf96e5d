package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

/* HMAC-SHA256 request signing for outbound webhooks.
 * The signature covers the exact serialized bytes placed on the wire,
 * never a re-serialization, so subscribers verifying against the raw
 * request body cannot hit field-ordering mismatches.
 * A subscription without a secret sends unsigned requests; that is a
 * per-subscriber opt-out, not an error.
 */

const (
	// Prefix identifies the scheme in the signature header value
	Prefix = "sha256="

	// Algorithm is the value of the signature algorithm header
	Algorithm = "sha256"
)

// Sign computes "sha256=" + hex(HMAC-SHA256(secret, payload))
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time
func Verify(payload []byte, sig, secret string) bool {
	if !strings.HasPrefix(sig, Prefix) {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(sig, Prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// hmac.Equal is constant time, preventing timing side-channels
	return hmac.Equal(expected, mac.Sum(nil))
}
