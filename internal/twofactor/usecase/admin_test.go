package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

func assertCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	var ge *goerror.Error
	if !errors.As(err, &ge) {
		t.Fatalf("error = %v, want *goerror.Error", err)
	}
	if ge.Code() != want {
		t.Fatalf("code = %s, want %s", ge.Code(), want)
	}
}

func TestGenerateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("TOTPDefaults", func(t *testing.T) {
		// Arrange
		f := newFixture(t)

		// Act
		out, err := f.uc.GenerateKey(ctx, GenerateKeyInput{Principal: " root "})

		// Assert
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		if out.Mode != otp.ModeTOTP || out.Step != 30 {
			t.Fatalf("got mode %s step %d, want totp/30", out.Mode, out.Step)
		}
		if !otp.IsBase32(out.Secret) || len(out.Secret) < 16 {
			t.Fatalf("secret %q is not a usable base32 key", out.Secret)
		}
		if !strings.HasPrefix(out.URI, "otpauth://totp/") || !strings.Contains(out.URI, "secret="+out.Secret) {
			t.Fatalf("unexpected uri %q", out.URI)
		}

		stored := f.repo.factor("root")
		if stored.Secret != out.Secret || stored.Mode != otp.ModeTOTP {
			t.Fatalf("factor not persisted: %+v", stored)
		}

		resp := f.uc.Verify(ctx, authplugin.VerifyRequest{
			Principal: "root",
			Address:   testAddr,
			Code:      otp.TOTP(otp.DecodeBase32(out.Secret), testNow, 30),
		})
		if !resp.Success {
			t.Fatalf("freshly generated key must verify: %+v", resp)
		}
	})

	t.Run("HOTPRestartsCounter", func(t *testing.T) {
		f := newFixture(t)
		f.enrol("router", otp.ModeHOTP, 42)

		out, err := f.uc.GenerateKey(ctx, GenerateKeyInput{Principal: "router", Mode: "HOTP"})
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		if out.Mode != otp.ModeHOTP || !strings.HasPrefix(out.URI, "otpauth://hotp/") {
			t.Fatalf("unexpected output %+v", out)
		}
		if got := f.repo.factor("router").Counter; got != 0 {
			t.Fatalf("counter = %d, want 0", got)
		}
	})

	t.Run("KeepsBackupCodes", func(t *testing.T) {
		f := newFixture(t)
		f.enrol("root", otp.ModeTOTP, 0)
		if _, err := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "root", Count: 4}); err != nil {
			t.Fatalf("RegenerateBackupCodes() error = %v", err)
		}

		if _, err := f.uc.GenerateKey(ctx, GenerateKeyInput{Principal: "root"}); err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		if got := len(f.repo.factor("root").BackupCodes); got != 4 {
			t.Fatalf("backup codes = %d, want 4", got)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		tests := map[string]GenerateKeyInput{
			"EmptyPrincipal": {},
			"BadPrincipal":   {Principal: "root;reboot"},
			"BadMode":        {Principal: "root", Mode: "sms"},
			"StepTooLarge":   {Principal: "root", Step: 301},
		}
		for name, in := range tests {
			t.Run(name, func(t *testing.T) {
				f := newFixture(t)

				_, err := f.uc.GenerateKey(ctx, in)

				assertCode(t, err, goerror.CodeInvalidInput)
				if len(f.repo.factors) != 0 {
					t.Fatalf("nothing may be stored on invalid input")
				}
			})
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		f := newFixture(t)
		f.repo.err = errors.New("disk full")

		_, err := f.uc.GenerateKey(ctx, GenerateKeyInput{Principal: "root"})
		assertCode(t, err, goerror.CodeInternal)
	})
}

func TestSaveFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("NormalizesSecret", func(t *testing.T) {
		f := newFixture(t)

		err := f.uc.SaveFactor(ctx, SaveFactorInput{Principal: "root", Secret: " jbswy3dpehpk3pxp ", Mode: "hotp", Counter: 5})
		if err != nil {
			t.Fatalf("SaveFactor() error = %v", err)
		}

		got := f.repo.factor("root")
		if got.Secret != testSecret || got.Mode != otp.ModeHOTP || got.Counter != 5 || got.Step != 30 {
			t.Fatalf("unexpected factor %+v", got)
		}
	})

	t.Run("RejectsBadSecret", func(t *testing.T) {
		for _, secret := range []string{"", "JBSWY3DP", "JBSWY3DPEHPK3PX1", strings.Repeat("A", 129)} {
			f := newFixture(t)

			err := f.uc.SaveFactor(ctx, SaveFactorInput{Principal: "root", Secret: secret})

			assertCode(t, err, goerror.CodeInvalidInput)
		}
	})
}

func TestDeleteFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enrol("root", otp.ModeTOTP, 0)

	if err := f.uc.DeleteFactor(ctx, PrincipalInput{Principal: "root"}); err != nil {
		t.Fatalf("DeleteFactor() error = %v", err)
	}
	if _, ok := f.repo.factors["root"]; ok {
		t.Fatalf("factor still present")
	}

	assertCode(t, f.uc.DeleteFactor(ctx, PrincipalInput{Principal: "root"}), goerror.CodeNotFound)
	assertCode(t, f.uc.DeleteFactor(ctx, PrincipalInput{Principal: ""}), goerror.CodeInvalidInput)

	check := f.uc.Check(ctx, authplugin.CheckRequest{Principal: "root", Address: testAddr})
	if check.Required {
		t.Fatalf("deleted factor must not require a challenge")
	}
}

func TestBackupCodeAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("RegenerateCountClear", func(t *testing.T) {
		f := newFixture(t)
		f.enrol("root", otp.ModeTOTP, 0)

		codes, err := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "root"})
		if err != nil {
			t.Fatalf("RegenerateBackupCodes() error = %v", err)
		}
		if len(codes) != 10 {
			t.Fatalf("zero count must issue 10 codes, got %d", len(codes))
		}
		for _, c := range f.repo.factor("root").BackupCodes {
			for _, p := range codes {
				if c == p {
					t.Fatalf("plaintext code %q stored", p)
				}
			}
		}

		n, err := f.uc.BackupCodeCount(ctx, PrincipalInput{Principal: "root"})
		if err != nil || n != 10 {
			t.Fatalf("BackupCodeCount() = %d, %v", n, err)
		}

		if err := f.uc.ClearBackupCodes(ctx, PrincipalInput{Principal: "root"}); err != nil {
			t.Fatalf("ClearBackupCodes() error = %v", err)
		}
		if n, _ := f.uc.BackupCodeCount(ctx, PrincipalInput{Principal: "root"}); n != 0 {
			t.Fatalf("count after clear = %d", n)
		}

		resp := f.uc.Verify(ctx, authplugin.VerifyRequest{Principal: "root", Address: testAddr, Code: codes[1], BackupCode: true})
		if resp.Success {
			t.Fatalf("cleared backup code must not verify")
		}
	})

	t.Run("RegenerateInvalidatesPreviousBatch", func(t *testing.T) {
		f := newFixture(t)
		f.enrol("root", otp.ModeTOTP, 0)

		old, _ := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "root", Count: 2})
		if _, err := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "root", Count: 2}); err != nil {
			t.Fatalf("RegenerateBackupCodes() error = %v", err)
		}

		resp := f.uc.Verify(ctx, authplugin.VerifyRequest{Principal: "root", Address: testAddr, Code: old[0]})
		if resp.Success {
			t.Fatalf("code from a replaced batch must not verify")
		}
	})

	t.Run("RequiresFactor", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "nobody"})
		assertCode(t, err, goerror.CodeNotFound)
	})

	t.Run("CountOutOfRange", func(t *testing.T) {
		f := newFixture(t)
		f.enrol("root", otp.ModeTOTP, 0)

		_, err := f.uc.RegenerateBackupCodes(ctx, RegenerateBackupCodesInput{Principal: "root", Count: 11})
		assertCode(t, err, goerror.CodeInvalidInput)
	})
}

func TestRateLimitAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enrol("root", otp.ModeTOTP, 0)

	for i := 0; i < 2; i++ {
		f.uc.Verify(ctx, authplugin.VerifyRequest{Principal: "root", Address: testAddr, Code: "bad"})
	}

	st, err := f.uc.RateLimitStatus(ctx, AddressInput{Address: testAddr})
	if err != nil {
		t.Fatalf("RateLimitStatus() error = %v", err)
	}
	if !st.Allowed || st.Remaining != 3 || st.Attempts != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	list, err := f.uc.RateLimitList(ctx)
	if err != nil {
		t.Fatalf("RateLimitList() error = %v", err)
	}
	if len(list) != 1 || list[0].Address != testAddr || list[0].Attempts != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := f.uc.ClearRateLimit(ctx, AddressInput{Address: testAddr}); err != nil {
		t.Fatalf("ClearRateLimit() error = %v", err)
	}
	if list, _ := f.uc.RateLimitList(ctx); len(list) != 0 {
		t.Fatalf("list after clear = %+v", list)
	}

	_, err = f.uc.RateLimitStatus(ctx, AddressInput{Address: "not-an-ip"})
	assertCode(t, err, goerror.CodeInvalidInput)
	assertCode(t, f.uc.ClearRateLimit(ctx, AddressInput{}), goerror.CodeInvalidInput)
}

func TestRateLimitStatusLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enrol("root", otp.ModeTOTP, 0)

	for i := 0; i < 5; i++ {
		f.uc.Verify(ctx, authplugin.VerifyRequest{Principal: "root", Address: testAddr, Code: "bad"})
	}
	f.uc.Check(ctx, authplugin.CheckRequest{Principal: "root", Address: testAddr})

	st, err := f.uc.RateLimitStatus(ctx, AddressInput{Address: testAddr})
	if err != nil {
		t.Fatalf("RateLimitStatus() error = %v", err)
	}
	if st.Allowed || st.LockedUntil != testNow+300 || st.RetryAfter != 300 {
		t.Fatalf("unexpected locked status %+v", st)
	}
}
