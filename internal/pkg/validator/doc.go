// Package validator checks request structs with go-playground/validator and
// adds the tags used by the second factor: principal, otpmode and base32.
package validator
