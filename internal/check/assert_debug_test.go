//go:build debug

package check

import (
	"strings"
	"testing"
)

func TestAssertfPanicsWithMessage(t *testing.T) {
	defer func() {
		r := recover()
		msg, ok := r.(string)
		if !ok || !strings.HasSuffix(msg, "phase running -> configured") {
			t.Fatalf("recovered %v, want invariant message", r)
		}
	}()
	Assertf(false, "phase %s -> %s", "running", "configured")
}
