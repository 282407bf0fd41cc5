package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// failedSuffix is appended to the signed message of a declined payment, so a
// failure notice never verifies as a success and the other way round.
const failedSuffix = "|failed"

// Sign returns hex(HMAC_SHA256(secret, orderRef + "|" + paymentRef)), the
// provider's documented callback signature.
func Sign(secret, orderRef, paymentRef string) string {
	return sign(secret, orderRef+"|"+paymentRef)
}

// SignFailure signs a declined-payment notice over orderRef|paymentRef|failed.
func SignFailure(secret, orderRef, paymentRef string) string {
	return sign(secret, orderRef+"|"+paymentRef+failedSuffix)
}

// VerifySignature compares in constant time. Malformed hex never verifies.
func VerifySignature(secret, orderRef, paymentRef, signature string) bool {
	return verify(secret, orderRef+"|"+paymentRef, signature)
}

// VerifyFailureSignature checks a signature produced by SignFailure.
func VerifyFailureSignature(secret, orderRef, paymentRef, signature string) bool {
	return verify(secret, orderRef+"|"+paymentRef+failedSuffix, signature)
}

func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, message, signature string) bool {
	if secret == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hmac.Equal(got, mac.Sum(nil))
}
