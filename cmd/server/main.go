package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"padron/internal/platform/config"
	"padron/internal/platform/httpserver"
	"padron/internal/platform/logger"
	"padron/internal/platform/metrics"
	platformredis "padron/internal/platform/redis"
	"padron/internal/records"
	"padron/internal/records/export"
	"padron/internal/records/handler"
	"padron/internal/records/mirror"
	"padron/internal/records/service"
	"padron/internal/records/store/memory"
	"padron/internal/records/store/postgres"
)

const mirrorInboxSize = 256

// main wires the stores, the mutation pipeline, and the HTTP surface, then
// supervises the server and the audit mirror until shutdown.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	store, txRunner, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := service.Options{
		PageSize:    cfg.PageSize,
		MaxPageSize: cfg.MaxPageSize,
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts.Cache = service.NewCache(redisClient, cfg.CacheTTL)
		log.Info("redis cache enabled", "ttl", cfg.CacheTTL.String())
	}

	var (
		worker *mirror.Worker
		inbox  chan records.AuditEntry
	)
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := mirror.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		inbox = make(chan records.AuditEntry, mirrorInboxSize)
		worker = mirror.NewWorker(sink, inbox, log)
		opts.Mirror = inbox
		log.Info("audit mirror enabled", "topic", cfg.KafkaTopic)
	}

	svc := service.New(store, txRunner, log, m, opts)
	h := handler.New(svc, export.New(store), log, m)
	srv := httpserver.New(cfg.Addr, handler.NewRouter(h, log, m))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting padron server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// buildStore selects postgres when a database URL is configured and falls back
// to the in-memory store otherwise. The returned cleanup is always safe to call.
func buildStore(ctx context.Context, cfg config.Config, log *slog.Logger) (records.Store, service.StoreTx, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory store")
		memStore := memory.New()
		return memStore, service.NewMemoryTx(memStore), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, func() {}, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, func() {}, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, func() {}, err
	}

	store := postgres.New(db)
	log.Info("postgres store ready")
	return store, newPostgresTx(db, store), func() { _ = db.Close() }, nil
}
