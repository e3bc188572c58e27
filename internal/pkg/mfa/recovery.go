package mfa

import (
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// RecoveryCodeGenerator defines an interface for generating MFA recovery codes.
type RecoveryCodeGenerator interface {
	// Generate returns count unique recovery codes.
	Generate(count int) ([]string, error)
}

// alphabet is the character set used for recovery code generation.
//
// 32 symbols: digits and uppercase letters without the confusable 0, O, I
// and 1. A power of two keeps byte-to-symbol mapping unbiased.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	// MaxCodes bounds how many codes one batch may contain.
	MaxCodes = 10
	// GroupLen is the length of each dash-separated group.
	GroupLen = 4
	// CodeLen is the number of symbols in a code, excluding the dash.
	CodeLen = 2 * GroupLen
)

// ErrInvalidCount indicates a batch size outside 1..MaxCodes.
var ErrInvalidCount = errors.New("mfa: recovery code count must be between 1 and 10")

// RecoveryCode generates MFA recovery codes formatted as:
//
//	XXXX-XXXX
//
// Symbols come from crypto/rand. When the random source fails, a
// time-seeded linear congruential generator is used instead so recovery
// codes can still be issued.
type RecoveryCode struct {
	random io.Reader

	mu  sync.Mutex
	lcg uint64
}

// NewRecoveryCode returns a new RecoveryCode generator.
func NewRecoveryCode() *RecoveryCode {
	return NewRecoveryCodeFrom(rand.Reader)
}

// NewRecoveryCodeFrom returns a generator reading entropy from r.
func NewRecoveryCodeFrom(r io.Reader) *RecoveryCode {
	return &RecoveryCode{random: r}
}

// Generate produces count unique recovery codes.
func (rc *RecoveryCode) Generate(count int) ([]string, error) {
	if count < 1 || count > MaxCodes {
		return nil, ErrInvalidCount
	}

	out := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(out) < count {
		code := rc.generateCode()

		// extremely unlikely, but prevents accidental duplicates
		if _, ok := seen[code]; ok {
			continue
		}

		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out, nil
}

func (rc *RecoveryCode) generateCode() string {
	raw := make([]byte, CodeLen)
	if rc.random == nil {
		rc.fallback(raw)
	} else if _, err := io.ReadFull(rc.random, raw); err != nil {
		rc.fallback(raw)
	}

	for i, b := range raw {
		raw[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(raw[:GroupLen]) + "-" + string(raw[GroupLen:])
}

// fallback fills b from a 64-bit LCG (Knuth MMIX constants) seeded from the
// wall clock on first use.
func (rc *RecoveryCode) fallback(b []byte) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.lcg == 0 {
		rc.lcg = uint64(time.Now().UnixNano()) | 1
	}
	for i := range b {
		rc.lcg = rc.lcg*6364136223846793005 + 1442695040888963407
		b[i] = byte(rc.lcg >> 56)
	}
}

// Normalize canonicalises user input: dashes and spaces removed, upper
// cased, and a dash re-inserted after the first group. Input that does not
// have CodeLen symbols is returned upper cased without a dash.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.NewReplacer("-", "", " ", "").Replace(code)
	if len(code) != CodeLen {
		return code
	}
	return code[:GroupLen] + "-" + code[GroupLen:]
}

// LooksLikeCode reports whether s is shaped like a recovery code: CodeLen
// ASCII letters or digits, optionally split 4+4 by a single dash.
func LooksLikeCode(s string) bool {
	s = strings.TrimSpace(s)
	switch len(s) {
	case CodeLen:
	case CodeLen + 1:
		if s[GroupLen] != '-' {
			return false
		}
		s = s[:GroupLen] + s[GroupLen+1:]
	default:
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
