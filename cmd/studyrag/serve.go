package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/studyrag"
	"github.com/poiesic/studyrag/transport/rest"
	"github.com/poiesic/studyrag/watch"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; overrides http.addr",
			},
			&cli.StringFlag{
				Name:  "watch",
				Usage: "Also watch this directory and ingest files dropped into it; overrides ingest.watch_dir",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config()
	addr := cfg.HTTP.Addr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	watchDir := cfg.Ingest.WatchDir
	if v := c.String("watch"); v != "" {
		watchDir = v
	}

	api := rest.NewServer(apiServices(a),
		rest.WithMaxUploadBytes(cfg.HTTP.MaxUploadMB<<20),
		rest.WithVersion(version),
		rest.WithLogger(slog.Default()),
	)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchDone := make(chan error, 1)
	if watchDir != "" {
		w, err := a.NewWatcher(watch.WithInitialScan(true))
		if err != nil {
			return err
		}
		go func() { watchDone <- w.Run(ctx, watchDir) }()
	} else {
		close(watchDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "err", err)
	}
	stop()
	if err := <-watchDone; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher stopped with error", "err", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func apiServices(a *studyrag.Assistant) rest.Services {
	return rest.Services{
		Answers:         a.Orchestrator(),
		Search:          a.Retriever(),
		Ingest:          a.Pipeline(),
		Documents:       a.Documents(),
		Index:           a.Index(),
		ModelConfigured: a.ModelConfigured(),
	}
}
