package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op logger that must not panic or call anything.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugfDisabledByDefault(t *testing.T) {
	defer SetDebugWriter(nil)

	SetDebugWriter(nil)
	Debugf("should go nowhere: %d", 1)

	var buf bytes.Buffer
	SetDebugWriter(&buf)
	Debugf("datagram seq=%d", 42)
	if !strings.Contains(buf.String(), "datagram seq=42") {
		t.Errorf("Expected debug output, got %q", buf.String())
	}
}
