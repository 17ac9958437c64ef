package debug_test

import (
	"testing"

	"github.com/chintran27/cdstore-go/internal/debug"
)

// With none of DEBUG_LOG/DEBUG_FUNCS/DEBUG_FILES set, Log is a disabled
// no-op; this just confirms it never panics regardless of enablement.
func TestLogDoesNotPanic(t *testing.T) {
	debug.Log("upload round %d for user %d", 3, 7)
	debug.Log("no args")
}

func BenchmarkLogStatic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		debug.Log("static string")
	}
}
