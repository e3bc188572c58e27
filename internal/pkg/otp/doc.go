// Package otp implements one-time passwords (HOTP, RFC 4226 and TOTP,
// RFC 6238) as pure functions over a base32 shared secret.
//
// The engine is self-contained: base32 decoding, the HMAC-SHA1 construction
// and dynamic truncation live here so verification never leaves the process.
// Enrolment helpers (secret generation and otpauth:// URIs) are provided by
// Provisioner.
package otp
