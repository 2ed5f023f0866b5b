// Package config resolves the client configuration from defaults, an optional
// TOML file, DEBATE_* environment variables and command-line flags, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBaseURL         = "http://localhost:8000"
	DefaultUserID          = "default"
	DefaultParticipantName = "Debate Participant"
	DefaultLogLevel        = "info"
	DefaultRequestTimeout  = 60 * time.Second
)

// Config holds everything the client needs at startup.
type Config struct {
	BaseURL         string
	UserID          string
	ParticipantName string
	DBPath          string
	LogPath         string
	LogLevel        string
	ExportDir       string
	RequestTimeout  time.Duration

	TelemetryEnabled bool
	TelemetryDir     string

	// ConfigFile is the TOML file that was read, if any.
	ConfigFile string
}

// DataDir returns the default directory for the database, logs and telemetry.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "debate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".debate")
}

// Default returns the built-in configuration.
func Default() Config {
	dir := DataDir()
	wd, _ := os.Getwd()
	return Config{
		BaseURL:          DefaultBaseURL,
		UserID:           DefaultUserID,
		ParticipantName:  DefaultParticipantName,
		DBPath:           filepath.Join(dir, "debate.sqlite"),
		LogPath:          filepath.Join(dir, "logs", "debate.log"),
		LogLevel:         DefaultLogLevel,
		ExportDir:        wd,
		RequestTimeout:   DefaultRequestTimeout,
		TelemetryEnabled: false,
		TelemetryDir:     filepath.Join(dir, "telemetry"),
	}
}

// Load builds a Config from args (without the program name) and getenv.
// A nil getenv falls back to os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()

	// The config file location can come from env or flag, so peek at it first.
	configFile := strings.TrimSpace(getenv("DEBATE_CONFIG"))
	if v := peekFlag(args, "config"); v != "" {
		configFile = v
	}
	if configFile == "" {
		candidate := filepath.Join(DataDir(), "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}
	if configFile != "" {
		if err := loadFile(&cfg, configFile); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = configFile
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("debate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", configFile, "path to a TOML config file (or DEBATE_CONFIG)")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "debate backend base URL")
	fs.StringVar(&cfg.UserID, "user-id", cfg.UserID, "user id sent with every debate message")
	fs.StringVar(&cfg.ParticipantName, "participant", cfg.ParticipantName, "display name in voice rooms")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "settings database path")
	fs.StringVar(&cfg.LogPath, "log-file", cfg.LogPath, "log file path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "directory for exported transcripts")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout (e.g. 60s)")
	fs.BoolVar(&cfg.TelemetryEnabled, "telemetry", cfg.TelemetryEnabled, "write OpenTelemetry traces and metrics to files")
	fs.StringVar(&cfg.TelemetryDir, "telemetry-dir", cfg.TelemetryDir, "directory for telemetry files")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base URL must not be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must start with http:// or https://", c.BaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.DBPath == "" {
		return errors.New("database path must not be empty")
	}
	return nil
}

// fileConfig mirrors Config but keeps the timeout as a string so TOML users
// can write "90s".
type fileConfig struct {
	BaseURL          *string `toml:"base_url"`
	UserID           *string `toml:"user_id"`
	ParticipantName  *string `toml:"participant_name"`
	DBPath           *string `toml:"db_path"`
	LogPath          *string `toml:"log_path"`
	LogLevel         *string `toml:"log_level"`
	ExportDir        *string `toml:"export_dir"`
	RequestTimeout   *string `toml:"request_timeout"`
	TelemetryEnabled *bool   `toml:"telemetry_enabled"`
	TelemetryDir     *string `toml:"telemetry_dir"`
}

func loadFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.UserID, fc.UserID)
	setString(&cfg.ParticipantName, fc.ParticipantName)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.LogPath, fc.LogPath)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.ExportDir, fc.ExportDir)
	setString(&cfg.TelemetryDir, fc.TelemetryDir)
	if fc.TelemetryEnabled != nil {
		cfg.TelemetryEnabled = *fc.TelemetryEnabled
	}
	if fc.RequestTimeout != nil {
		d, err := time.ParseDuration(*fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("config %s: request_timeout: %w", path, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	envString(&cfg.BaseURL, getenv("DEBATE_BASE_URL"))
	envString(&cfg.UserID, getenv("DEBATE_USER_ID"))
	envString(&cfg.ParticipantName, getenv("DEBATE_PARTICIPANT"))
	envString(&cfg.DBPath, getenv("DEBATE_DB_PATH"))
	envString(&cfg.LogPath, getenv("DEBATE_LOG_FILE"))
	envString(&cfg.LogLevel, getenv("DEBATE_LOG_LEVEL"))
	envString(&cfg.ExportDir, getenv("DEBATE_EXPORT_DIR"))
	envString(&cfg.TelemetryDir, getenv("DEBATE_TELEMETRY_DIR"))

	if v := strings.TrimSpace(getenv("DEBATE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DEBATE_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := strings.TrimSpace(getenv("DEBATE_TELEMETRY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBATE_TELEMETRY: %w", err)
		}
		cfg.TelemetryEnabled = b
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func envString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// peekFlag finds -name / --name values without a full parse.
func peekFlag(args []string, name string) string {
	for i, a := range args {
		trimmed := strings.TrimLeft(a, "-")
		if trimmed == a || a == "--" {
			continue
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(trimmed, name+"="); ok {
			return v
		}
	}
	return ""
}
