package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/allowlist"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

var (
	rePrincipal     = regexp.MustCompile(`^[A-Za-z0-9._-]{1,32}$`)
	rePrincipalPlus = regexp.MustCompile(`^[A-Za-z0-9._+-]{1,32}$`)
)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// V10Validator implements Validator using go-playground/validator v10.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError is a field-to-message map returned when validation fails.
//
// Keys are field names in snake_case to match typical JSON conventions.
type V10ValidationError map[string]string

// Error implements the error interface.
func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}

	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Values returns the field error map.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// Option configures a V10Validator.
type Option func(*options)

type options struct {
	principalPlus bool
}

// WithPrincipalPlus lets the `principal` rule accept '+' in usernames.
func WithPrincipalPlus(allow bool) Option {
	return func(o *options) { o.principalPlus = allow }
}

// NewV10Validator constructs a V10Validator with English translations and custom rules.
func NewV10Validator(opts ...Option) (*V10Validator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}

	principal := rePrincipal
	if o.principalPlus {
		principal = rePrincipalPlus
	}

	rules := []customRule{
		{
			tag:     "principal",
			message: "{0} may contain only letters, digits, '.', '_' and '-' (max 32)",
			fn:      stringRule(principal.MatchString),
		},
		{
			tag:     "base32",
			message: "{0} must be a base32 string (A-Z, 2-7)",
			fn:      stringRule(otp.IsBase32),
		},
		{
			tag:     "otpmode",
			message: "{0} must be either totp or hotp",
			fn: stringRule(func(s string) bool {
				s = strings.ToLower(s)
				return s == string(otp.ModeTOTP) || s == string(otp.ModeHOTP)
			}),
		},
		{
			tag:     "netentry",
			message: "{0} must be an IP address or CIDR block",
			fn: stringRule(func(s string) bool {
				return allowlist.ValidateEntry(s) == nil
			}),
		},
	}

	for _, r := range rules {
		if err := r.register(validate, enTrans); err != nil {
			return nil, err
		}
	}

	return &V10Validator{
		validate:   validate,
		translator: enTrans,
	}, nil
}

// Validate validates a struct and returns a V10ValidationError on failure.
func (v *V10Validator) Validate(data any) error {
	if err := v.validate.Struct(data); err != nil {
		var validateErrs validator.ValidationErrors
		if !errors.As(err, &validateErrs) {
			return err
		}

		errV10 := make(V10ValidationError)
		for _, fe := range validateErrs {
			errV10[lo.SnakeCase(fe.Field())] = fe.Translate(v.translator)
		}

		return errV10
	}

	return nil
}

type customRule struct {
	tag     string
	message string
	fn      validator.Func
}

func stringRule(match func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && match(s)
	}
}

func (r customRule) register(validate *validator.Validate, enTrans ut.Translator) error {
	if err := validate.RegisterValidation(r.tag, r.fn); err != nil {
		return err
	}

	return validate.RegisterTranslation(r.tag, enTrans,
		func(ut ut.Translator) error {
			return ut.Add(r.tag, r.message, false)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, err := ut.T(fe.Tag(), fe.Field())
			if err != nil {
				slog.Warn("warning: error translating", "FieldError", fe, "error", err)
				return fe.Error()
			}
			return t
		},
	)
}
