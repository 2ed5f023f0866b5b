// Command debate is a terminal client for the AI debate backend: text
// debates, knowledge-base management and LiveKit voice sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jwulff/debate/internal/api"
	"github.com/jwulff/debate/internal/app"
	"github.com/jwulff/debate/internal/config"
	"github.com/jwulff/debate/internal/db"
	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/settings"
	"github.com/jwulff/debate/internal/telemetry"
	"github.com/jwulff/debate/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

// reconcileTimeout bounds the startup cleanup of stale voice sessions.
const reconcileTimeout = 30 * time.Second

const usage = `usage: debate [flags]

  -config file        TOML config file (DEBATE_CONFIG)
  -base-url url       backend base URL (DEBATE_BASE_URL)
  -user-id id         user id sent with debate messages
  -participant name   display name in voice rooms
  -db path            settings database
  -log-file path      log file
  -log-level level    debug, info, warn or error
  -export-dir dir     directory for exported transcripts
  -timeout d          per-request timeout, e.g. 60s
  -telemetry          write traces and metrics to files
  -telemetry-dir dir  directory for telemetry files`

var _ settings.Storage = (*db.Store)(nil)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "debate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args, os.Getenv)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(cfg.LogPath)
	logCfg.Level = cfg.LogLevel
	logFile, err := logging.Init(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logFile.Close()

	logger := logging.WithComponent("main")
	logger.Info().
		Str("version", version).
		Str("baseURL", cfg.BaseURL).
		Str("configFile", cfg.ConfigFile).
		Msg("starting")

	ctx := context.Background()
	providers := telemetry.Noop()
	if cfg.TelemetryEnabled {
		providers, err = telemetry.Init(ctx, cfg.TelemetryDir, version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	prefs, err := settings.Load(store)
	if err != nil {
		return err
	}

	client := api.New(cfg.BaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithTelemetry(providers),
	)

	adapter := voice.NewAdapter(voice.LiveKitConnector{})
	mgr := voice.NewManager(client, adapter, cfg.ParticipantName, voice.WithSessionLog(store))
	defer mgr.Close()

	// Sessions left by a crashed run are ended in the background so a slow
	// backend never delays the UI. Exit waits for it before the store closes.
	stopReconcile := mgr.ReconcileAsync(ctx, reconcileTimeout)
	defer stopReconcile()

	p := tea.NewProgram(app.New(app.Deps{
		Backend:   client,
		Settings:  prefs,
		Voice:     mgr,
		UserID:    cfg.UserID,
		ExportDir: cfg.ExportDir,
	}), tea.WithAltScreen())

	adapter.OnChange(func(s voice.State) { p.Send(app.VoiceStateMsg{State: s}) })
	adapter.OnTranscript(func(t voice.Transcript) { p.Send(app.VoiceTranscriptMsg{Transcript: t}) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Info().Msg("exiting")
	return nil
}
