package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"canvasvault/api/internal/app"
	"canvasvault/api/internal/config"
	"canvasvault/api/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "canvasvault-api",
		Short:         "CanvasVault API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newReindexCommand())
	return cmd
}

// bootstrap loads configuration, builds the logger and opens every
// configured backend.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Mode: cfg.LogMode, Redact: cfg.LogRedact, Salt: cfg.JWTSecret})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return rt, nil
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.log.Sync()

	service := rt.service()
	if rt.remote != nil && rt.meili != nil && rt.cfg.SearchReindexInterval > 0 {
		reindexCtx, stopReindex := context.WithCancel(ctx)
		defer stopReindex()
		go service.RunRemoteReindex(reindexCtx, rt.remote, rt.cfg.SearchReindexInterval)
	}
	httpServer := app.NewHTTPServer(service, rt.log, rt.cfg.CORSOrigin)
	server := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("api listening", "addr", rt.cfg.Addr, "mode", service.Mode(), "data_dir", rt.cfg.DataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.log.Warn("shutdown error", "error", err)
	}
	return nil
}
