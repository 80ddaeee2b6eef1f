package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("frame %d dropped", 42)
	if got != "frame 42 dropped" {
		t.Errorf("expected redirected message, got %q", got)
	}
}

func TestSetLoggerNilIsNoOp(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("ignored %s", "message")
}
