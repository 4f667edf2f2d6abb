package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_DefaultLevelSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.Debug("debug suppressed")
	logger.Info("fetch started", "key", "tenders")

	out := buf.String()
	if strings.Contains(out, "debug suppressed") {
		t.Errorf("expected debug output to be suppressed, got %q", out)
	}
	if !strings.Contains(out, "fetch started") || !strings.Contains(out, "key=tenders") {
		t.Errorf("expected info line with key attribute, got %q", out)
	}
}

func TestNew_VerboseJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Verbose: true, JSON: true})

	logger.Debug("evicted", "key", "bid-results")

	out := buf.String()
	if !strings.Contains(out, `"msg":"evicted"`) {
		t.Errorf("expected JSON debug line, got %q", out)
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(Options{Writer: &buf}))

	adapter.With("component", "store").Warn("listener panicked")

	out := buf.String()
	if !strings.Contains(out, "component=store") {
		t.Errorf("expected attribute from With, got %q", out)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(*NopLogger); !ok {
		t.Error("expected NopLogger for nil input")
	}
	l := NewNopLogger()
	if OrNop(l) != l {
		t.Error("expected the provided logger to be returned")
	}
}
