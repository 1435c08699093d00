package logging

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRedactJSONMasksAPIKey(t *testing.T) {
	raw := json.RawMessage(`{"api_key":"AIzaSyExample1234","tone":"Casual","nested":{"token":"abcd"}}`)
	out, ok := RedactJSON(raw).(map[string]any)
	if !ok {
		t.Fatalf("expected map output")
	}
	if out["api_key"] != "****1234" {
		t.Fatalf("expected masked api key, got %v", out["api_key"])
	}
	if out["tone"] != "Casual" {
		t.Fatalf("expected tone untouched, got %v", out["tone"])
	}
	nested := out["nested"].(map[string]any)
	if nested["token"] != "****" {
		t.Fatalf("expected short token fully masked, got %v", nested["token"])
	}
}

func TestRedactJSONInvalidPassthrough(t *testing.T) {
	if got := RedactJSON(json.RawMessage(" not json ")); got != "not json" {
		t.Fatalf("expected trimmed passthrough, got %v", got)
	}
	if got := RedactJSON(nil); got != nil {
		t.Fatalf("expected nil for empty payload, got %v", got)
	}
}

func TestRedactURLMasksKeyParam(t *testing.T) {
	got := RedactURL("https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent?key=secret-value-9876")
	if strings.Contains(got, "secret-value") {
		t.Fatalf("expected key masked, got %s", got)
	}
	if !strings.Contains(got, "9876") {
		t.Fatalf("expected key suffix kept for correlation, got %s", got)
	}
	plain := "https://example.com/path?q=1"
	if RedactURL(plain) != plain {
		t.Fatalf("expected url without secrets unchanged")
	}
}

func TestRedactValueBearer(t *testing.T) {
	if got := RedactValue("Bearer abcdefgh"); got != "Bearer ****efgh" {
		t.Fatalf("unexpected bearer redaction %q", got)
	}
}

func TestNewFileLoggerDisabled(t *testing.T) {
	setup, err := NewFileLogger(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if setup.Enabled || setup.Logger == nil {
		t.Fatalf("expected disabled nop logger")
	}
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewFileLoggerEnabled(t *testing.T) {
	setup, err := NewFileLogger(t.TempDir(), true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer setup.Close()
	if !setup.Enabled || !strings.HasSuffix(setup.Path, "engine.log") {
		t.Fatalf("expected enabled file logger, got %+v", setup)
	}
	setup.Logger.Info("logging.test")
}
