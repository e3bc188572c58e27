// Package config reads the service configuration. Values are read live, so a
// reloaded file is visible to the next caller without a restart.
package config

import (
	"io"
	"time"
)

// Config is a read-only view of the configuration. Missing keys yield the
// zero value of the requested type.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64
	GetString(key string) string

	// GetSecond reads an integer number of seconds.
	GetSecond(key string) time.Duration

	// GetArray reads a comma separated string or a list. Items are trimmed
	// and empty items dropped.
	GetArray(key string) []string
}
