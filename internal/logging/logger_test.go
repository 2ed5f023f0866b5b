package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debate.log")

	closer, err := Init(DefaultConfig(path))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	logger := WithComponent("test")
	logger.Info().Str("claim", "free will exists").Msg("hello")

	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"test"`, `"claim":"free will exists"`, `"message":"hello"`, `"service":"debate"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestInitParsesLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := DefaultConfig("")
	cfg.Level = "warn"
	if _, err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", zerolog.GlobalLevel())
	}

	cfg.Level = "shouting"
	if _, err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("invalid level should fall back to info, got %v", zerolog.GlobalLevel())
	}
}
