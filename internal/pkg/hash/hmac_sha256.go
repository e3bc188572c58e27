package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HMACSHA256 implements Hash with a hex-encoded HMAC-SHA256, optionally
// truncated to a fixed number of hex characters.
type HMACSHA256 struct {
	secret []byte
	size   int
}

// NewHMACSHA256 creates a hasher keyed with secret. A size between 1 and 64
// truncates the hex digest to that many characters; any other value keeps
// the full digest.
func NewHMACSHA256(secret []byte, size int) *HMACSHA256 {
	if size <= 0 || size > hex.EncodedLen(sha256.Size) {
		size = hex.EncodedLen(sha256.Size)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &HMACSHA256{secret: key, size: size}
}

// Hash returns the (possibly truncated) hex digest of str.
func (s *HMACSHA256) Hash(str string) ([]byte, error) {
	return s.gen(str), nil
}

// Verify checks whether the plaintext string matches the given hash.
func (s *HMACSHA256) Verify(hashed, str string) bool {
	expected := s.gen(str)
	return subtle.ConstantTimeCompare([]byte(hashed), expected) == 1
}

func (s *HMACSHA256) gen(str string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(str))
	sum := h.Sum(nil)
	result := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(result, sum)
	return result[:s.size]
}
