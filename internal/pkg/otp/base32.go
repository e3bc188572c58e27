package otp

import "strings"

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// DecodeBase32 decodes an RFC 4648 base32 secret.
//
// Padding and whitespace are stripped and lowercase letters are accepted.
// Characters outside the alphabet are skipped instead of failing, so a
// mangled secret yields a short or empty key rather than an error.
func DecodeBase32(secret string) []byte {
	out := make([]byte, 0, len(secret)*5/8)

	var buffer uint32
	var bits uint
	for i := 0; i < len(secret); i++ {
		c := secret[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}

		var val uint32
		switch {
		case c >= 'A' && c <= 'Z':
			val = uint32(c - 'A')
		case c >= '2' && c <= '7':
			val = uint32(c-'2') + 26
		default:
			continue
		}

		buffer = buffer<<5 | val
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>bits))
			buffer &= 1<<bits - 1
		}
	}

	return out
}

// EncodeBase32 encodes b with the RFC 4648 alphabet and no padding.
func EncodeBase32(b []byte) string {
	var sb strings.Builder
	sb.Grow((len(b)*8 + 4) / 5)

	var buffer uint32
	var bits uint
	for _, v := range b {
		buffer = buffer<<8 | uint32(v)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buffer>>bits)&0x1f])
		}
		buffer &= 1<<bits - 1
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buffer<<(5-bits))&0x1f])
	}

	return sb.String()
}

// IsBase32 reports whether s is a non-empty secret made only of RFC 4648
// alphabet characters (case-insensitive) with optional trailing padding.
func IsBase32(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if !strings.ContainsRune(base32Alphabet, rune(c)) {
			return false
		}
	}
	return true
}
