package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"masterd/internal/config"
	"masterd/internal/httpapi"
	"masterd/internal/runner"
)

// previewSweepInterval is how often expired previews are reaped.
const previewSweepInterval = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "masterd",
		Short:         "Audio mastering daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and job orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, configPath)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", envStr("MASTERD_CONFIG", ""), "Config file (.yaml/.json/.toml)")
	f.String("addr", envStr("MASTERD_ADDR", ""), "HTTP listen address, e.g. :8080")
	f.String("uploads-dir", envStr("MASTERD_UPLOADS_DIR", ""), "Directory holding uploaded source files")
	f.String("work-dir", envStr("MASTERD_WORK_DIR", ""), "Per-run scratch directory root")
	f.String("renditions-dir", envStr("MASTERD_RENDITIONS_DIR", ""), "Finished rendition output root")
	f.String("engine-bin", envStr("MASTERD_ENGINE_BIN", ""), "Mastering engine binary")
	f.Int("max-runs", 0, "Maximum concurrent mastering runs (0=config default)")
	f.String("log-level", envStr("MASTERD_LOG_LEVEL", ""), "Log level: debug|info|warn|error")
	return cmd
}

func serve(cmd *cobra.Command, configPath string) error {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	r, err := runner.New(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	httpapi.SetLogger(logger)
	httpapi.SetKeepaliveInterval(cfg.Keepalive())
	httpapi.SetPreviewWaitMax(cfg.PreviewWaitMax())
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(r)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("uploads", cfg.UploadsDir).
			Str("engine", cfg.EngineBin).Msg("masterd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(previewSweepInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.SweepPreviews()
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown failed")
		}
		return nil
	})
	return g.Wait()
}

// applyFlagOverrides lets explicit flags win over file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if v, _ := f.GetString("addr"); v != "" {
		cfg.Addr = v
	}
	if v, _ := f.GetString("uploads-dir"); v != "" {
		cfg.UploadsDir = v
	}
	if v, _ := f.GetString("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := f.GetString("renditions-dir"); v != "" {
		cfg.RenditionsDir = v
	}
	if v, _ := f.GetString("engine-bin"); v != "" {
		cfg.EngineBin = v
	}
	if v, _ := f.GetInt("max-runs"); v > 0 {
		cfg.MaxConcurrentRuns = v
	}
	if v, _ := f.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error", "err":
		lvl = zerolog.ErrorLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
