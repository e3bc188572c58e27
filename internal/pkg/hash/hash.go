package hash

// Hash hashes plaintext values and verifies plaintext against stored hashes.
type Hash interface {
	// Hash returns the encoded hash of str.
	Hash(str string) ([]byte, error)
	// Verify reports whether str hashes to hashed.
	Verify(hashed, str string) bool
}
