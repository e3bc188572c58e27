// Package backupcode issues and consumes single-use recovery codes.
//
// Only keyed hashes of normalised codes are stored. A successful Verify
// removes the matched hash and rewrites the remaining set while holding the
// principal's lock, so a code can never be accepted twice.
package backupcode
