package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SquareSignatureHeader carries base64(HMAC-SHA256(key, notificationURL + body)).
const SquareSignatureHeader = "X-Square-Hmacsha256-Signature"

func VerifySquareSignature(signatureKey, notificationURL string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || signatureKey == "" {
		return false
	}
	return hmac.Equal([]byte(SignSquare(signatureKey, notificationURL, body)), []byte(header))
}

// SignSquare computes the signature Square would send for the payload.
func SignSquare(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
