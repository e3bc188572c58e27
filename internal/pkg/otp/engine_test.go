package otp

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // test vectors are SHA-1
	"encoding/hex"
	"testing"
	"time"

	libotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// rfcSecret is base32("12345678901234567890"), the RFC 4226/6238 test key.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestHMACSHA1(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
		msg  []byte
		want string
	}{
		{
			name: "rfc2202 case 1",
			key:  bytes.Repeat([]byte{0x0b}, 20),
			msg:  []byte("Hi There"),
			want: "b617318655057264e28bc0b6fb378c8ef146be00",
		},
		{
			name: "rfc2202 case 2",
			key:  []byte("Jefe"),
			msg:  []byte("what do ya want for nothing?"),
			want: "effcdf6ae5eb2fa2d27416d5f184df9c259a7c79",
		},
		{
			name: "rfc2202 case 6 key larger than block",
			key:  bytes.Repeat([]byte{0xaa}, 80),
			msg:  []byte("Test Using Larger Than Block-Size Key - Hash Key First"),
			want: "aa4ae5e15272d00e95705637ce8a3b55ed402112",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(HMACSHA1(tt.key, tt.msg))
			if got != tt.want {
				t.Fatalf("HMACSHA1() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHMACSHA1MatchesStdlib(t *testing.T) {
	for _, size := range []int{0, 1, 20, 63, 64, 65, 200} {
		key := make([]byte, size)
		msg := make([]byte, size*3+1)
		if _, err := rand.Read(key); err != nil {
			t.Fatalf("rand: %v", err)
		}
		if _, err := rand.Read(msg); err != nil {
			t.Fatalf("rand: %v", err)
		}

		mac := hmac.New(sha1.New, key)
		mac.Write(msg)
		if want := mac.Sum(nil); !bytes.Equal(HMACSHA1(key, msg), want) {
			t.Fatalf("key size %d: digest mismatch", size)
		}
	}
}

func TestHOTPRFC4226(t *testing.T) {
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	key := DecodeBase32(rfcSecret)
	for counter, code := range want {
		if got := HOTP(key, uint64(counter)); got != code {
			t.Errorf("HOTP(counter=%d) = %s, want %s", counter, got, code)
		}
	}
}

func TestTOTPRFC6238(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{unix: 59, want: "287082"},
		{unix: 1111111109, want: "081804"},
		{unix: 1111111111, want: "050471"},
		{unix: 1234567890, want: "005924"},
		{unix: 2000000000, want: "279037"},
		{unix: 20000000000, want: "353130"},
	}

	key := DecodeBase32(rfcSecret)
	for _, tt := range tests {
		if got := TOTP(key, tt.unix, 30); got != tt.want {
			t.Errorf("TOTP(%d) = %s, want %s", tt.unix, got, tt.want)
		}
	}
}

func TestTOTPMatchesPquerna(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	at := time.Unix(1700000000, 0).UTC()

	want, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    libotp.DigitsSix,
		Algorithm: libotp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("pquerna generate: %v", err)
	}

	if got := TOTP(DecodeBase32(secret), at.Unix(), 30); got != want {
		t.Fatalf("TOTP() = %s, want %s", got, want)
	}
}

func TestTOTPNonPositiveStep(t *testing.T) {
	key := DecodeBase32(rfcSecret)
	if TOTP(key, 59, 0) != TOTP(key, 59, 30) || TOTP(key, 59, -5) != TOTP(key, 59, 30) {
		t.Fatalf("non-positive step must behave as 30")
	}
}

func TestVerifyTOTPWindow(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	const step = 30
	base := time.Unix(1700000010, 0)
	code := TOTP(DecodeBase32(secret), base.Unix(), step)

	tests := []struct {
		name   string
		offset int64
		want   bool
	}{
		{name: "same step", offset: 0, want: true},
		{name: "one step behind", offset: -step, want: true},
		{name: "one step ahead", offset: step, want: true},
		{name: "two steps behind", offset: -2 * step, want: false},
		{name: "two steps ahead", offset: 2 * step, want: false},
		{name: "ten steps ahead", offset: 10 * step, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := base.Add(time.Duration(tt.offset) * time.Second)
			if got := VerifyTOTP(secret, code, at, step); got != tt.want {
				t.Fatalf("VerifyTOTP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyTOTPRejects(t *testing.T) {
	at := time.Unix(1700000010, 0)

	if VerifyTOTP("", "123456", at, 30) {
		t.Fatalf("empty secret must not verify")
	}
	if VerifyTOTP("!!!!", "123456", at, 30) {
		t.Fatalf("undecodable secret must not verify")
	}

	code := TOTP(DecodeBase32(rfcSecret), at.Unix(), 30)
	if VerifyTOTP(rfcSecret, code[:5], at, 30) {
		t.Fatalf("truncated code must not verify")
	}
}

func TestVerifyHOTP(t *testing.T) {
	key := DecodeBase32(rfcSecret)

	if !VerifyHOTP(rfcSecret, HOTP(key, 7), 7) {
		t.Fatalf("expected code for counter 7 to verify at 7")
	}
	if VerifyHOTP(rfcSecret, HOTP(key, 8), 7) {
		t.Fatalf("code for counter 8 must not verify at 7")
	}
	if VerifyHOTP(rfcSecret, HOTP(key, 6), 7) {
		t.Fatalf("code for counter 6 must not verify at 7")
	}
}

func TestBase32RoundTrip(t *testing.T) {
	for size := 0; size < 64; size++ {
		b := make([]byte, size)
		if _, err := rand.Read(b); err != nil {
			t.Fatalf("rand: %v", err)
		}

		if got := DecodeBase32(EncodeBase32(b)); !bytes.Equal(got, b) {
			t.Fatalf("size %d: round trip mismatch: %x != %x", size, got, b)
		}
	}
}

func TestDecodeBase32Lenient(t *testing.T) {
	want := DecodeBase32("JBSWY3DPEHPK3PXP")

	tests := []string{
		"jbswy3dpehpk3pxp",
		"JBSW Y3DP EHPK 3PXP",
		"JBSWY3DPEHPK3PXP====",
		"JBSW-Y3DP!EHPK3PXP",
	}
	for _, in := range tests {
		if got := DecodeBase32(in); !bytes.Equal(got, want) {
			t.Errorf("DecodeBase32(%q) = %x, want %x", in, got, want)
		}
	}

	if got := DecodeBase32("0189"); len(got) != 0 {
		t.Errorf("expected empty key for foreign characters, got %x", got)
	}
}

func TestIsBase32(t *testing.T) {
	tests := map[string]bool{
		"JBSWY3DPEHPK3PXP":   true,
		"jbswy3dpehpk3pxp":   true,
		"JBSWY3DPEHPK3PXP==": true,
		"":                   false,
		"JBSWY3DP1":          false,
		"JBSW Y3DP":          false,
	}
	for in, want := range tests {
		if got := IsBase32(in); got != want {
			t.Errorf("IsBase32(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("123456", "123456") {
		t.Fatalf("equal strings must compare equal")
	}
	if Equal("123456", "123457") || Equal("123456", "12345") || Equal("", "1") {
		t.Fatalf("different strings must not compare equal")
	}
}

func TestIsCode(t *testing.T) {
	tests := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		" 23456":  false,
	}
	for in, want := range tests {
		if got := IsCode(in); got != want {
			t.Errorf("IsCode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("HOTP") != ModeHOTP || ParseMode("hotp") != ModeHOTP {
		t.Fatalf("expected hotp")
	}
	if ParseMode("totp") != ModeTOTP || ParseMode("") != ModeTOTP || ParseMode("weird") != ModeTOTP {
		t.Fatalf("expected totp default")
	}
}
