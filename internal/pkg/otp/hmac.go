package otp

import "crypto/sha1" //nolint:gosec // HOTP/TOTP are defined over HMAC-SHA1

const (
	sha1BlockSize = 64
	ipad          = 0x36
	opad          = 0x5c
)

// HMACSHA1 computes the RFC 2104 keyed hash of msg.
//
// Keys longer than the SHA-1 block are hashed first; shorter keys are
// zero padded to the block size.
func HMACSHA1(key, msg []byte) []byte {
	if len(key) > sha1BlockSize {
		sum := sha1.Sum(key) //nolint:gosec // see package import
		key = sum[:]
	}

	var block [sha1BlockSize]byte
	copy(block[:], key)

	inner := sha1.New() //nolint:gosec // see package import
	outer := sha1.New() //nolint:gosec // see package import

	var pad [sha1BlockSize]byte
	for i, b := range block {
		pad[i] = b ^ ipad
	}
	inner.Write(pad[:])
	inner.Write(msg)
	innerSum := inner.Sum(nil)

	for i, b := range block {
		pad[i] = b ^ opad
	}
	outer.Write(pad[:])
	outer.Write(innerSum)

	return outer.Sum(nil)
}
