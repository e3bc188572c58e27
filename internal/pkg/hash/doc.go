// Package hash provides keyed hashing for secrets that are stored and later
// compared, such as backup codes.
//
// Only the hash is persisted; verification recomputes it from the submitted
// plaintext and compares in constant time.
package hash
