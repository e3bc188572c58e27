package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestMaskData(t *testing.T) {
	keys := MaskKeys([]string{" Password "})

	in := map[string]any{
		"username": "root",
		"code":     "123456",
		"Password": "hunter2",
		"nested": []any{
			map[string]any{"backup_code": "ABCD-EFGH", "count": float64(3)},
		},
	}

	out, ok := MaskData(in, keys).(map[string]any)
	if !ok {
		t.Fatalf("MaskData() did not return a map")
	}
	if out["username"] != "root" {
		t.Fatalf("username must not be masked: %v", out["username"])
	}
	if out["code"] != "***" || out["Password"] != "***" {
		t.Fatalf("sensitive fields not masked: %v", out)
	}
	nested := out["nested"].([]any)[0].(map[string]any)
	if nested["backup_code"] != "***" || nested["count"] != float64(3) {
		t.Fatalf("nested = %v", nested)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, logOptions{serviceName: "otpgate", level: slog.LevelInfo, maskKeys: MaskKeys(nil)})

	ctx := SetCorrelationID(context.Background(), "cid-1")
	logger.With("key", "JBSWY3DPEHPK3PXP").InfoContext(ctx, "verify",
		"secret", "JBSWY3DPEHPK3PXP",
		"body", `{"otp_code":"123456","username":"root"}`,
	)

	line := buf.String()
	if strings.Contains(line, "JBSWY3DPEHPK3PXP") || strings.Contains(line, "123456") {
		t.Fatalf("secret leaked into log: %s", line)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["correlation_id"] != "cid-1" || rec["service"] != "otpgate" {
		t.Fatalf("context attributes missing: %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Fatalf("ts key missing: %v", rec)
	}
	if rec["severity"] != "INFO" {
		t.Fatalf("severity = %v", rec["severity"])
	}
	if file, _ := rec["file"].(string); !strings.HasPrefix(file, "internal/pkg/instrument/logging_test.go:") {
		t.Fatalf("file = %v", rec["file"])
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, logOptions{level: parseLevel("WARN"), maskKeys: MaskKeys(nil)})

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " Warning ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewDisabled(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	ins, err := New(context.Background(), &Config{ServiceName: "otpgate"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := ins.(noopInstrumentation); !ok {
		t.Fatalf("New() = %T, want noop when disabled", ins)
	}
	if err := ins.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestCorrelationID(t *testing.T) {
	if got := GetCorrelationID(context.Background()); got != "" {
		t.Fatalf("empty context returned %q", got)
	}
	if got := GetCorrelationID(SetCorrelationID(context.Background(), "x")); got != "x" {
		t.Fatalf("GetCorrelationID() = %q", got)
	}
}
