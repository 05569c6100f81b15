package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gametrack/internal/clients/rawg"
	"gametrack/internal/routes"
	"gametrack/internal/services"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			log.Info("starting gametrack", slog.String("env", cfg.Env), slog.String("backend", cfg.StorageBackend))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			remote, err := openBackend(ctx, cfg, log)
			if err != nil {
				log.Error("failed to open storage backend", slog.String("error", err.Error()))
				return err
			}
			defer func() {
				if err := remote.Close(); err != nil {
					log.Error("failed to close storage backend", slog.String("error", err.Error()))
				}
			}()

			localStore, closeLocal, err := openLocal(cfg, log)
			if err != nil {
				log.Error("failed to open local store", slog.String("error", err.Error()))
				return err
			}
			defer closeLocal()

			sessions := services.NewSessions(func(scope string) services.LocalStore { return localStore.For(scope) }, remote.remote, log, cfg.Session.IdleTimeout)
			defer sessions.Close()

			deps := routes.Deps{
				Catalog:       rawg.New(cfg.RAWG.BaseURL, cfg.RAWG.APIKey, cfg.RAWG.Timeout),
				Sessions:      sessions,
				TokenVerifier: remote.verifier,
				CorsOrigins:   cfg.HTTPServer.Cors,
			}

			backups, err := openBackups(ctx, cfg.Backup, log)
			if err != nil {
				log.Error("failed to open backup bucket", slog.String("error", err.Error()))
				return err
			}
			if backups != nil {
				deps.Backups = backups
			}

			server := &http.Server{
				Addr:         cfg.HTTPServer.Address,
				Handler:      routes.SetupRouter(log, deps),
				ReadTimeout:  cfg.HTTPServer.Timeout,
				WriteTimeout: cfg.HTTPServer.Timeout,
				IdleTimeout:  cfg.HTTPServer.IdleTimeout,
				// Event streams end with the signal context instead of holding Shutdown open.
				BaseContext:  func(net.Listener) context.Context { return ctx },
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				log.Info("server listening", slog.String("address", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				sessions.Run(gctx, cfg.Session.JanitorInterval)
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error("graceful shutdown failed", slog.String("error", err.Error()))
					return server.Close()
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				log.Error("server stopped", slog.String("error", err.Error()))
				return err
			}

			log.Info("server stopped")
			return nil
		},
	}
}
