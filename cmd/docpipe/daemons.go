package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"docpipe/internal/analysis"
	"docpipe/internal/api"
	"docpipe/internal/blobs"
	"docpipe/internal/blobstore"
	"docpipe/internal/config"
	"docpipe/internal/lock"
	"docpipe/internal/metrics"
	"docpipe/internal/renderer"
	"docpipe/internal/server"
	"docpipe/internal/store"
)

const redisPingTimeout = 2 * time.Second

func newBlobdCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "blobd",
		Short: "Run the blob store daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "blobd")

			addr, err := server.ListenAddr(cfg.Blobs.APIURL)
			if err != nil {
				return err
			}

			st, objects, err := openStorage(logger, cfg.Blobs.DBPath, cfg.Blobs.StorageDir)
			if err != nil {
				return err
			}
			defer st.Close()

			reg := metrics.NewRegistry()
			m := metrics.New(reg)
			svc := blobs.NewService(st, objects, m, logger)

			srv := server.NewBlobServer(addr, svc, server.Options{
				Logger:         logger,
				Metrics:        m,
				Gatherer:       reg,
				MaxUploadBytes: cfg.Blobs.MaxUploadBytes,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
}

func newAnalyzerdCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyzerd",
		Short: "Run the analysis daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "analyzerd")

			addr, err := server.ListenAddr(cfg.Analysis.APIURL)
			if err != nil {
				return err
			}

			st, objects, err := openStorage(logger, cfg.Analysis.DBPath, cfg.Analysis.StorageDir)
			if err != nil {
				return err
			}
			defer st.Close()

			reg := metrics.NewRegistry()
			m := metrics.New(reg)

			locker, closeLocker := newLocker(cmd.Context(), cfg, logger)
			defer closeLocker()

			svc, err := analysis.NewService(analysis.Config{
				Source:  api.NewSourceClient(cfg.Analysis.SourceURL, cfg.Analysis.SourceTimeout.Duration),
				Results: blobs.NewService(st, objects, m, logger.With("store", "results")),
				Index:   st,
				Renderer: renderer.New(renderer.Options{
					URL:      cfg.Renderer.URL,
					Timeout:  cfg.Renderer.Timeout.Duration,
					MaxWords: cfg.Renderer.MaxWords,
					Width:    cfg.Renderer.Width,
					Height:   cfg.Renderer.Height,
				}, m, logger),
				Locker:        locker,
				Metrics:       m,
				Logger:        logger,
				SourceTimeout: cfg.Analysis.SourceTimeout.Duration,
			})
			if err != nil {
				return err
			}

			srv := server.NewAnalysisServer(addr, svc, server.Options{
				Logger:   logger,
				Metrics:  m,
				Gatherer: reg,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
}

func openStorage(logger *slog.Logger, dbPath, storageDir string) (*store.Store, *blobstore.LocalFS, error) {
	if dbPath == "" {
		return nil, nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db dir: %w", err)
	}

	logger.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("opening storage", "path", storageDir)
	objects, err := blobstore.NewLocalFS(storageDir)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, objects, nil
}

// newLocker returns the Redis lock when redis.addr is configured and
// reachable, otherwise the no-op lock.
func newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (lock.Locker, func()) {
	if cfg.Redis.Addr == "" {
		return lock.Nop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; analysis lock disabled", "addr", cfg.Redis.Addr, "error", err)
		_ = client.Close()
		return lock.Nop{}, func() {}
	}

	logger.Info("analysis lock enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Analysis.LockTTL.Duration)
	l := lock.NewRedis(client, lock.RedisOptions{TTL: cfg.Analysis.LockTTL.Duration}, logger)
	return l, func() { _ = client.Close() }
}
