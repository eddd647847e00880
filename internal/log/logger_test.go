package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mu.Lock()
	prev := logger
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	})
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v (%q)", err, buf.String())
	}
	return out
}

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	logger = nil
	mu.Unlock()
	once = sync.Once{}
	output = &buf

	Setup("DEBUG", "json")
	if Get() == nil {
		t.Fatal("Logger should not be nil")
	}
	Get().Debug("visible")
	if !strings.Contains(buf.String(), `"msg":"visible"`) {
		t.Errorf("expected debug line in output, got %q", buf.String())
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at WARN: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "k=v") {
		t.Errorf("expected text handler output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t)

	WithComponent("test-comp").Info("hello")

	out := decode(t, buf)
	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithOp(t *testing.T) {
	buf := captureGlobal(t)

	WithOp("pin_add").Info("op msg")

	if out := decode(t, buf); out["op"] != "pin_add" {
		t.Errorf("Expected op 'pin_add', got %v", out["op"])
	}
}

func TestWithDispatch(t *testing.T) {
	buf := captureGlobal(t)

	WithDispatch("d-123").Info("dispatch msg")

	if out := decode(t, buf); out["dispatch_id"] != "d-123" {
		t.Errorf("Expected dispatch_id 'd-123', got %v", out["dispatch_id"])
	}
}
