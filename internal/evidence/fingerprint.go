package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SlipFingerprint identifies an uploaded slip image by content.
func SlipFingerprint(image []byte) string {
	sum := sha256.Sum256(image)
	return "slip:" + hex.EncodeToString(sum[:])
}

// GatewayFingerprint identifies a gateway charge by provider and charge id.
func GatewayFingerprint(provider, chargeID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(provider)) + ":" + strings.TrimSpace(chargeID)))
	return "gateway:" + hex.EncodeToString(sum[:])
}
