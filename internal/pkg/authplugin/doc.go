// Package authplugin defines the contract between the host login flow and
// the second-factor checks it runs during a login attempt.
//
// A Plugin is asked twice per attempt: Check decides whether an extra
// credential is required and which form fields to show, Verify judges the
// submitted value. Both always return a definite verdict; internal failures
// are reported as a denied verification, never as an error.
//
// Registry holds the plugins known to the host, keyed by name.
package authplugin
