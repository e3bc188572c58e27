package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by stores when a principal or address has no entry.
var ErrNotFound = errors.New("resource not found")

// Type classifies errors into high-level buckets.
type Type int

const (
	TypeServer Type = iota
	TypeBusiness
	TypeValidation
)

func (t Type) String() string {
	switch t {
	case TypeValidation:
		return "ERROR_TYPE_VALIDATION"
	case TypeBusiness:
		return "ERROR_TYPE_BUSINESS"
	case TypeServer:
		return "ERROR_TYPE_SERVER"
	default:
		return "ERROR_TYPE_UNKNOWN"
	}
}

// Code is a stable identifier mapped to an HTTP status by StatusCode.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalidFormat
	CodeInvalidInput
	CodeNotFound
	CodeUnavailable
)

var codes = map[Code]struct {
	name   string
	status int
}{
	CodeInternal:      {name: "ERROR_CODE_INTERNAL", status: http.StatusInternalServerError},
	CodeInvalidFormat: {name: "ERROR_CODE_INVALID_FORMAT", status: http.StatusBadRequest},
	CodeInvalidInput:  {name: "ERROR_CODE_INVALID_INPUT", status: http.StatusUnprocessableEntity},
	CodeNotFound:      {name: "ERROR_CODE_NOT_FOUND", status: http.StatusNotFound},
	CodeUnavailable:   {name: "ERROR_CODE_UNAVAILABLE", status: http.StatusServiceUnavailable},
}

func (c Code) String() string {
	if v, ok := codes[c]; ok {
		return v.name
	}
	return codes[CodeInternal].name
}

// Error carries a caller-facing message, a type and a code, and may wrap the
// underlying cause. The cause is never shown to HTTP clients.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
	fields  map[string]string
}

func (e *Error) Error() string {
	switch {
	case e.err != nil:
		return e.err.Error()
	case e.msg != "":
		return e.msg
	default:
		return e.errType.String()
	}
}

// String is the verbose form used in logs.
func (e *Error) String() string {
	return fmt.Sprintf("type=%s code=%s msg=%q cause=%v", e.errType, e.code, e.msg, e.err)
}

func (e *Error) Msg() string { return e.msg }

func (e *Error) Type() Type { return e.errType }

func (e *Error) Code() Code { return e.code }

// Fields returns per-field messages, if any.
func (e *Error) Fields() map[string]string { return e.fields }

func (e *Error) Unwrap() error { return e.err }

// StatusCode maps the error code to an HTTP status code.
func (e *Error) StatusCode() int {
	if v, ok := codes[e.code]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

// As returns err as *Error when it is or wraps one.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// NewServer wraps an infrastructure failure.
func NewServer(err error) error {
	return &Error{err: err, msg: "Internal server error", errType: TypeServer, code: CodeInternal}
}

// NewUnavailable reports a dependency that cannot serve requests right now.
func NewUnavailable(err error) error {
	return &Error{err: err, msg: "Service unavailable", errType: TypeServer, code: CodeUnavailable}
}

// NewBusiness creates a business-rule error with a caller-facing message.
func NewBusiness(msg string, code Code) error {
	return &Error{msg: msg, errType: TypeBusiness, code: code}
}

// NewInvalidInput wraps a validator error. Without one, kv is read as
// field/message pairs.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return &Error{err: err, msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput}
	}
	if len(kv)%2 != 0 {
		return NewInvalidFormat()
	}

	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return &Error{msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput, fields: fields}
}

// NewInvalidFormat reports a request body that could not be decoded.
func NewInvalidFormat(msgs ...string) error {
	msg := "Invalid request body"
	if len(msgs) > 0 {
		msg = msgs[0]
	}
	return &Error{msg: msg, errType: TypeValidation, code: CodeInvalidFormat}
}
