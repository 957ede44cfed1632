package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/feynwatch/internal/api"
	"github.com/user/feynwatch/internal/telegram"
	"github.com/user/feynwatch/internal/tokens"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the feynwatch daemon (health checks, local API, Telegram)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

const pidFileName = "feynwatch.pid"

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	eng := buildEngine(cfg, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer eng.controller.Stop()

	eng.monitor.Check(ctx)
	if err := eng.monitor.Start(cfg.Health.Schedule); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	defer eng.monitor.Stop()

	slog.Info("feynwatch started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"backend", cfg.Backend.BaseURL,
		"events_url", cfg.Backend.EventsURL,
		"stream_enabled", eng.controller.Flags().StreamEnabled(),
		"pid_file", pidPath,
	)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, eng.controller, eng.monitor)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	if cfg.HTTP.Enabled {
		srv := api.NewServer(eng.controller, api.Config{
			Health:   eng.monitor,
			Sessions: eng.journal.Sessions,
			Events:   eng.journal.Events,
			Tokens:   tokens.NewCounter(""),
		})
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("api server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("api server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
