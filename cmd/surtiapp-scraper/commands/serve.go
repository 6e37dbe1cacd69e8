package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/surtiapp-scraper/internal/api"
	"github.com/maltedev/surtiapp-scraper/internal/database"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the control API, the run worker and the outbox relay.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg, cfg.Catalog.Categories, appLog)
		if err != nil {
			return err
		}
		defer a.close()

		var opts []api.HandlerOption
		if a.db != nil {
			outbox := database.NewOutboxRepository(a.db)
			opts = append(opts,
				api.WithOutbox(outbox),
				api.WithSnapshots(database.NewSnapshotRepository(a.db)),
			)

			if cfg.Redis.Enabled {
				redisClient := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer redisClient.Close()

				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}

				relay := database.NewRelay(outbox, redisClient, appLog, cfg.Redis)
				go func() {
					if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						appLog.Error("relay stopped with error", "error", err)
					}
				}()
			}
		}

		go a.jobs.StartWorker(ctx, cfg.Schedule.Interval)

		handlers := api.NewHandlers(a.jobs, appLog, opts...)
		server := api.NewServer(cfg.Server, api.NewRouter(handlers, a.metrics.Registry))

		errCh := make(chan error, 1)
		go func() {
			appLog.Info("server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		case <-ctx.Done():
		}

		appLog.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		appLog.Info("server stopped")
		return nil
	},
}
