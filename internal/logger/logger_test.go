package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "json"), "session_service")
	log.Info().Str("test_id", "math_vvi").Msg("Session started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "session_service" || entry["test_id"] != "math_vvi" {
		t.Errorf("entry = %v", entry)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty")
	log.Warn().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("pretty output = %q", buf.String())
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Error("pretty output should not be JSON")
	}
}
