//go:build !release

package util

import "fmt"

// Assert panics with a formatted message if cond is false. Compiled out of
// release builds (build tag "release") so the invariant checks in the
// aligner and the patch codecs cost nothing in production binaries. An
// invariant violation reached here is an InternalInvariantViolation: it
// panics in debug builds and is not checked at all in release builds.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
