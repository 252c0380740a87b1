package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(b, &entry); err != nil {
		t.Fatalf("parse log line %q: %v", b, err)
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"json", Config{Level: "debug", Format: "json"}, false},
		{"text", Config{Level: "warn", Format: "text"}, false},
		{"console is text", Config{Level: "error", Format: "console"}, false},
		{"unknown format", Config{Format: "logfmt"}, true},
		{"unknown level", Config{Level: "trace"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "text", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("link created", "post_id", 42)

	out := buf.String()
	if !strings.Contains(out, "link created") || !strings.Contains(out, "post_id=42") {
		t.Errorf("text output = %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { SetLevel("info") })

	l.Info("hidden")
	if buf.Len() > 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if Level() != "debug" {
		t.Errorf("Level() = %q, want debug", Level())
	}
	// Loggers built before the change follow it.
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug record missing after SetLevel(debug)")
	}

	if err := SetLevel("verbose"); err == nil {
		t.Error("SetLevel(verbose) returned nil error")
	}
	if Level() != "debug" {
		t.Errorf("Level() = %q after a rejected SetLevel, want debug", Level())
	}
}

func TestLevel_Names(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })
	tests := map[string]string{
		"debug":   "debug",
		"INFO":    "info",
		"warning": "warn",
		"error":   "error",
	}
	for in, want := range tests {
		if err := SetLevel(in); err != nil {
			t.Fatalf("SetLevel(%q) error = %v", in, err)
		}
		if got := Level(); got != want {
			t.Errorf("SetLevel(%q); Level() = %q, want %q", in, got, want)
		}
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if !ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = false", level)
		}
	}
	for _, level := range []string{"", "trace", "fatal"} {
		if ValidLevel(level) {
			t.Errorf("ValidLevel(%q) = true", level)
		}
	}
}

func TestNew_RedactsThroughWith(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.With("component", "preview").InfoContext(context.Background(), "link created", "token", "abc123")

	entry := decodeLine(t, buf.Bytes())
	if entry["token"] != redactedValue {
		t.Errorf("token = %v, want redacted", entry["token"])
	}
	if entry["component"] != "preview" {
		t.Errorf("component = %v, want preview", entry["component"])
	}
}
