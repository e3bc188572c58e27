// Package clock hides the wall clock behind Clocker so TOTP windows, lockout
// deadlines and the calibration guard can be driven from fixed times in tests.
package clock
