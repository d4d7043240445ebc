package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMACSignatureService implements ports.SignatureService using the provider's
// scheme: base64(HMAC-SHA256(channel secret, raw body)). Verification runs
// over the raw, unparsed body.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes the signature for a raw body.
func (s *HMACSignatureService) Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func (s *HMACSignatureService) Verify(channelSecret string, body []byte, signature string) bool {
	expected := s.Sign(channelSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
