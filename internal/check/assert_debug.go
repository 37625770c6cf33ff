//go:build debug

// Package check holds invariant assertions that only fire in builds tagged
// debug. Release builds compile them to nothing.
package check

import "fmt"

const prefix = "wgserv: invariant violated: "

// Assert panics if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic(prefix + msg)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(prefix + fmt.Sprintf(format, args...))
	}
}
