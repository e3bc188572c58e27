// Package stacktrace reduces a goroutine's stack to this module's own frames
// so panic logs stay short.
package stacktrace

import (
	"runtime"
	"strconv"
	"strings"
)

const maxDepth = 64

// Frames returns the calling goroutine's frames that live under an
// internal/ directory, innermost first, as "internal/<path>.go:<line>".
// skip 0 starts at the caller of Frames. Called from a deferred recover it
// still sees the frames of the function that panicked.
func Frames(skip int) []string {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	var out []string
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if i := strings.Index(f.File, "/internal/"); i != -1 {
			out = append(out, f.File[i+1:]+":"+strconv.Itoa(f.Line))
		}
		if !more {
			break
		}
	}
	return out
}
