package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, env(map[string]string{}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.UserID != "default" {
		t.Errorf("UserID = %q, want %q", cfg.UserID, "default")
	}
	if cfg.ParticipantName != "Debate Participant" {
		t.Errorf("ParticipantName = %q", cfg.ParticipantName)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", cfg.RequestTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.TelemetryEnabled {
		t.Error("telemetry should be off by default")
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	cfg, err := Load(nil, env(map[string]string{
		"DEBATE_BASE_URL":  "https://debate.example.com",
		"DEBATE_USER_ID":   "alice",
		"DEBATE_TIMEOUT":   "5s",
		"DEBATE_TELEMETRY": "true",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != "https://debate.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserID != "alice" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if !cfg.TelemetryEnabled {
		t.Error("telemetry should be enabled from env")
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	cfg, err := Load(
		[]string{"-base-url", "http://127.0.0.1:9000", "--timeout=2s"},
		env(map[string]string{"DEBATE_BASE_URL": "https://ignored.example.com"}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:9000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debate.toml")
	content := `
base_url = "http://files.example.com:8000"
participant_name = "Socrates"
request_timeout = "90s"
telemetry_enabled = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"-config", path}, env(map[string]string{
		"DEBATE_PARTICIPANT": "Plato",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.BaseURL != "http://files.example.com:8000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ParticipantName != "Plato" {
		t.Errorf("ParticipantName = %q, env should win over file", cfg.ParticipantName)
	}
	if cfg.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %v, want 90s", cfg.RequestTimeout)
	}
	if !cfg.TelemetryEnabled {
		t.Error("telemetry should be enabled from file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"bad timeout env", nil, map[string]string{"DEBATE_TIMEOUT": "soon"}},
		{"bad telemetry env", nil, map[string]string{"DEBATE_TELEMETRY": "maybe"}},
		{"non-http base url", []string{"-base-url", "ftp://x"}, nil},
		{"zero timeout", []string{"-timeout", "0s"}, nil},
		{"unknown flag", []string{"-nope"}, nil},
		{"missing config file", []string{"-config", "/does/not/exist.toml"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args, env(tt.env)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPeekFlag(t *testing.T) {
	if got := peekFlag([]string{"-x", "1", "--config=/a.toml"}, "config"); got != "/a.toml" {
		t.Errorf("peekFlag = %q, want /a.toml", got)
	}
	if got := peekFlag([]string{"-config", "/b.toml"}, "config"); got != "/b.toml" {
		t.Errorf("peekFlag = %q, want /b.toml", got)
	}
	if got := peekFlag([]string{"config", "/c.toml"}, "config"); got != "" {
		t.Errorf("peekFlag = %q, want empty for positional arg", got)
	}
}
