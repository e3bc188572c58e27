package authplugin

import "context"

// Field describes an extra input the login form must render.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
	Required    bool   `json:"required"`
}

// CheckRequest identifies a login attempt before credentials are verified.
type CheckRequest struct {
	Principal string
	Address   string
}

// CheckResponse tells the host whether a challenge must be issued.
type CheckResponse struct {
	Required bool
	Fields   []Field
	Message  string

	Blocked bool
	// RetryAfter is the number of seconds until Blocked ends.
	RetryAfter        int64
	Whitelisted       bool
	TimeNotCalibrated bool
}

// VerifyRequest carries the submitted second-factor value.
type VerifyRequest struct {
	Principal string
	Address   string
	Code      string
	// BackupCode marks Code explicitly as a backup code.
	BackupCode bool
}

// VerifyResponse is the verdict on a VerifyRequest.
type VerifyResponse struct {
	Success bool
	Message string

	RateLimited       bool
	RetryAfter        int64
	Whitelisted       bool
	BackupCodeUsed    bool
	InvalidBackupCode bool
	// BackupCodesRemaining is set when BackupCodeUsed is true.
	BackupCodesRemaining int
}

// Plugin is one second-factor mechanism.
type Plugin interface {
	Name() string
	Check(ctx context.Context, req CheckRequest) CheckResponse
	Verify(ctx context.Context, req VerifyRequest) VerifyResponse
}
