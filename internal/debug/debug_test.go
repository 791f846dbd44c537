package debug

import "testing"

func TestLogDoesNotPanic(t *testing.T) {
	Enable(OPS)
	Log(OPS, "copy %s -> %s", "a", "b")
	Disable(OPS)
	Log(OPS, "dropped")
	if Enabled && IsEnabled(OPS) {
		t.Fatal("OPS should be disabled")
	}
}
