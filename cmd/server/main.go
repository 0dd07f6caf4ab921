package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veritrail/internal/audit/announce"
	"veritrail/internal/audit/manager"
	auditmetrics "veritrail/internal/audit/metrics"
	"veritrail/internal/audit/publisher"
	"veritrail/internal/audit/store"
	memorystore "veritrail/internal/audit/store/memory"
	postgresstore "veritrail/internal/audit/store/postgres"
	"veritrail/internal/audit/trail"
	"veritrail/internal/platform/config"
	"veritrail/internal/platform/httpserver"
	"veritrail/internal/platform/logger"
	"veritrail/internal/platform/postgres"
	platformredis "veritrail/internal/platform/redis"
	"veritrail/internal/platform/token"
	httptransport "veritrail/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Audit semantics live in the internal/audit packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := auditmetrics.New()

	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgresstore.Migrate(ctx, db); err != nil {
			log.Error("migrate audit schema", "error", err)
			os.Exit(1)
		}
		st = postgresstore.New(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store; entries will not survive restarts")
		st = memorystore.NewInMemoryStore()
	}

	trailOpts := []trail.Option{
		trail.WithLogger(log),
		trail.WithMetrics(metrics),
		trail.WithVerifyLimit(cfg.VerifyScanLimit),
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		trailOpts = append(trailOpts, trail.WithAnnouncer(announce.New(redisClient.Client, log)))
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := publisher.New(cfg.KafkaBrokers, cfg.KafkaTopic,
			publisher.WithLogger(log),
			publisher.WithMetrics(metrics),
		)
		if err != nil {
			log.Error("connect to kafka", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("ensure audit topic", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit publisher stopped", "error", err)
			}
		}()
		trailOpts = append(trailOpts, trail.WithSink(pub))
	}

	mgr := manager.New(st,
		manager.WithLogger(log),
		manager.WithTrailOptions(trailOpts...),
	)

	jwtService := token.NewJWTService(cfg.JWTSigningKey, "veritrail", "veritrail-api")
	handler := httptransport.NewAuditHandler(mgr, log)
	router := httptransport.NewRouter(handler, jwtService, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting veritrail", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
