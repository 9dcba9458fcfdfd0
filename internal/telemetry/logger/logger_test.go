package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newCaptureLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log output is not JSON: %v: %s", err, buf.String())
	}
	return m
}

func TestNew_JSONOutput(t *testing.T) {
	l, buf := newCaptureLogger(t, "info")
	l.Info("handshake started", "session_id", "uksn-abc", "card_uid", "04AABBCCDD22EE")

	m := logLine(t, buf)
	if m["msg"] != "handshake started" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["session_id"] != "uksn-abc" {
		t.Errorf("session_id = %v", m["session_id"])
	}
	if m["card_uid"] != "04AABBCCDD22EE" {
		t.Errorf("card_uid should not be redacted, got %v", m["card_uid"])
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newCaptureLogger(t, "warn")
	l.Info("ignored")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level: %s", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn should pass at warn level")
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newCaptureLogger(t, "info")
	SetLevel("debug")
	defer SetLevel("info")

	if got := GetLevel(); got != "debug" {
		t.Errorf("GetLevel() = %q, want debug", got)
	}
	l.Debug("now visible")
	if buf.Len() == 0 {
		t.Error("debug should pass after SetLevel(debug)")
	}
}

func TestRedaction_SensitiveKeyName(t *testing.T) {
	l, buf := newCaptureLogger(t, "info")
	l.Info("key provisioned", "session_key", "0102030405060708090a0b0c0d0e0f10")

	m := logLine(t, buf)
	if m["session_key"] != redactedValue {
		t.Errorf("session_key = %v, want redacted", m["session_key"])
	}
}

func TestRedaction_HexMaterialValue(t *testing.T) {
	l, buf := newCaptureLogger(t, "info")
	hexKey := "0102030405060708090a0b0c0d0e0f10"
	l.Info("response seen", "payload", hexKey)

	m := logLine(t, buf)
	got, _ := m["payload"].(string)
	if got == hexKey {
		t.Fatal("32-hex value must be masked")
	}
	if !strings.HasPrefix(got, "01") || !strings.HasSuffix(got, "10") {
		t.Errorf("payload = %q, want masked with hints", got)
	}
}

func TestRedaction_CardUIDPassesThrough(t *testing.T) {
	if looksLikeKeyMaterial("04AABBCCDD22EE") {
		t.Error("a 14-char card UID is not key material")
	}
	if !looksLikeKeyMaterial(strings.Repeat("ab", 16)) {
		t.Error("32 hex chars is key material")
	}
	if !looksLikeKeyMaterial(strings.Repeat("ab", 32)) {
		t.Error("64 hex chars is key material")
	}
	if looksLikeKeyMaterial(strings.Repeat("zz", 16)) {
		t.Error("non-hex is not key material")
	}
}

func TestRedactString(t *testing.T) {
	hexKey := strings.Repeat("cd", 16)
	if got := RedactString(hexKey); got == hexKey {
		t.Error("RedactString should mask key material")
	}
	if got := RedactString("machine-1"); got != "machine-1" {
		t.Errorf("RedactString(%q) = %q", "machine-1", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"session_key", true},
		{"master_key", true},
		{"host_nonce", true},
		{"challenge", true},
		{"card_uid", false},
		{"machine_id", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithMachineID(ctx, "machine-1")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := MachineIDFromContext(ctx); got != "machine-1" {
		t.Errorf("MachineIDFromContext = %q", got)
	}
	if L(ctx) == nil {
		t.Error("L() should never return nil")
	}
}
