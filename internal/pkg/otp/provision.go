package otp

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	libotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
)

// SecretSize is the number of random bytes in a generated secret (RFC 4226
// recommends 160 bits).
const SecretSize = 20

// ErrAccountRequired is returned when a provisioning URI is requested without
// an account name.
var ErrAccountRequired = errors.New("otp: account name is required")

// Provisioner creates secrets and otpauth:// URIs for authenticator apps.
type Provisioner struct {
	issuer string
}

// NewProvisioner returns a Provisioner labelling keys with issuer.
func NewProvisioner(issuer string) *Provisioner {
	return &Provisioner{issuer: issuer}
}

// Key is a freshly provisioned shared secret.
type Key struct {
	// Secret is the base32 secret without padding.
	Secret string
	// URI is the otpauth:// enrolment URI.
	URI string
}

// Generate creates a random secret for account. When secret is non-empty it
// is used as-is instead of generating a new one.
func (p *Provisioner) Generate(account, secret string, mode Mode, step int64, counter uint64) (*Key, error) {
	if account == "" {
		return nil, ErrAccountRequired
	}

	var raw []byte
	if secret != "" {
		raw = DecodeBase32(secret)
	}

	var (
		key *libotp.Key
		err error
	)
	if mode == ModeHOTP {
		key, err = hotp.Generate(hotp.GenerateOpts{
			Issuer:      p.issuer,
			AccountName: account,
			SecretSize:  SecretSize,
			Secret:      raw,
			Digits:      libotp.DigitsSix,
			Algorithm:   libotp.AlgorithmSHA1,
		})
	} else {
		key, err = totp.Generate(totp.GenerateOpts{
			Issuer:      p.issuer,
			AccountName: account,
			Period:      uint(NormalizeStep(step)),
			SecretSize:  SecretSize,
			Secret:      raw,
			Digits:      libotp.DigitsSix,
			Algorithm:   libotp.AlgorithmSHA1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("otp: generate key: %w", err)
	}

	uri := key.URL()
	if mode == ModeHOTP {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("otp: parse key url: %w", err)
		}
		q := u.Query()
		q.Set("counter", strconv.FormatUint(counter, 10))
		u.RawQuery = q.Encode()
		uri = u.String()
	}

	return &Key{Secret: key.Secret(), URI: uri}, nil
}
