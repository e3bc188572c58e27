// Package uid generates string identifiers for correlation ids and audit
// events.
package uid

// StringID generates unique string identifiers.
type StringID interface {
	Generate() string
}
