package otp

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
)

// Mode is the OTP algorithm a principal is enrolled with.
type Mode string

const (
	// ModeTOTP is the time-based algorithm (RFC 6238).
	ModeTOTP Mode = "totp"
	// ModeHOTP is the counter-based algorithm (RFC 4226).
	ModeHOTP Mode = "hotp"
)

// ParseMode maps a stored value to a Mode. Anything other than "hotp" is TOTP.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeHOTP)) {
		return ModeHOTP
	}
	return ModeTOTP
}

const (
	// Digits is the length of every generated code.
	Digits = 6
	// DefaultStep is the TOTP time step in seconds.
	DefaultStep int64 = 30

	modulo = 1_000_000
)

// NormalizeStep returns step, or DefaultStep when step is not positive.
func NormalizeStep(step int64) int64 {
	if step <= 0 {
		return DefaultStep
	}
	return step
}

// HOTP returns the 6 digit code for counter.
func HOTP(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	sum := HMACSHA1(key, msg[:])

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := strconv.FormatUint(uint64(bin%modulo), 10)
	if len(code) < Digits {
		code = strings.Repeat("0", Digits-len(code)) + code
	}
	return code
}

// TOTP returns the 6 digit code for the step containing unix.
func TOTP(key []byte, unix, step int64) string {
	return HOTP(key, timeCounter(unix, NormalizeStep(step)))
}

// VerifyTOTP reports whether code matches secret in the step containing at,
// or in the step directly before or after it. Wider drift is rejected.
func VerifyTOTP(secret, code string, at time.Time, step int64) bool {
	key := DecodeBase32(secret)
	if len(key) == 0 {
		return false
	}

	step = NormalizeStep(step)
	current := timeCounter(at.Unix(), step)

	match := false
	for _, delta := range []int64{0, -1, 1} {
		c := int64(current) + delta
		if c < 0 {
			continue
		}
		// no early return: every window is always computed
		if Equal(HOTP(key, uint64(c)), code) {
			match = true
		}
	}
	return match
}

// VerifyHOTP reports whether code matches secret at exactly counter. The
// caller advances the stored counter only when this returns true.
func VerifyHOTP(secret, code string, counter uint64) bool {
	key := DecodeBase32(secret)
	if len(key) == 0 {
		return false
	}
	return Equal(HOTP(key, counter), code)
}

// Equal compares two codes in time that depends only on their length.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// IsCode reports whether s is exactly Digits ASCII digits.
func IsCode(s string) bool {
	if len(s) != Digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func timeCounter(unix, step int64) uint64 {
	if unix < 0 {
		return 0
	}
	return uint64(unix / step)
}
