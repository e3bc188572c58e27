// Package ratelimit tracks failed verification attempts per source address
// and locks a source out once it exhausts its budget within the window.
//
// Entries live in an external Store so every process instance sees the same
// counts. Each read-modify-write runs under a keylock.Locker on the key
// "ratelimit:<address>", which prevents two concurrent failures from both
// reading the same count and losing an increment.
//
// Entering lockout clears the attempt history. A source that waits out the
// lockout starts again with a full budget, and the lockout end never moves.
package ratelimit
