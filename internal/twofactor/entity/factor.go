package entity

import "github.com/shandysiswandi/otpgate/internal/pkg/otp"

// Factor is the per-principal second factor configuration.
type Factor struct {
	Principal string
	// Secret is the base32 shared secret. Empty means no factor.
	Secret string
	Mode   otp.Mode
	// Step is the TOTP step in seconds; non-positive values mean 30.
	Step int64
	// Counter is the next HOTP counter expected.
	Counter uint64
	// BackupCodes holds keyed hashes of unused backup codes.
	BackupCodes []string
}

// Configured reports whether the principal has a secret.
func (f *Factor) Configured() bool {
	return f != nil && f.Secret != ""
}

// EffectiveStep returns the TOTP step with non-positive values normalised.
func (f *Factor) EffectiveStep() int64 {
	return otp.NormalizeStep(f.Step)
}
