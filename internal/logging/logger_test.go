package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"smart-greenhouse/internal/config"
)

func TestNewWithWriter_ProdIsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}
	logger := NewWithWriter(&buf, cfg, "1.2.3", "greenhouse-server")

	logger.Debug("hidden")
	logger.Info("ble connected", "conn_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range map[string]any{
		"msg":     "ble connected",
		"app":     "greenhouse-server",
		"version": "1.2.3",
		"env":     "prod",
		"conn_id": float64(7),
	} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %v", key, rec[key], want)
		}
	}
}

func TestNewWithWriter_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}
	logger := NewWithWriter(&buf, cfg, "dev", "greenhouse-client")

	logger.Debug("scan started")

	out := buf.String()
	if !strings.Contains(out, "scan started") {
		t.Errorf("output %q does not contain message", out)
	}
	if json.Valid([]byte(strings.TrimSpace(out))) {
		t.Errorf("dev output %q is JSON, want text", out)
	}
}
