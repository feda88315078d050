// Command aumond reads the kernel audit stream, assembles records into
// typed events and fans them out to the configured sinks, exposing the
// recent event feed over an authenticated HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"aumon/internal/bsm"
	"aumon/internal/collector"
	"aumon/internal/event"
	"aumon/internal/jwtauth"
	"aumon/internal/pipeline"
	"aumon/internal/platform/config"
	"aumon/internal/platform/httpserver"
	"aumon/internal/platform/logger"
	"aumon/internal/platform/metrics"
	"aumon/internal/platform/middleware"
	platformredis "aumon/internal/platform/redis"
	httptransport "aumon/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies and keeps the daemon lifecycle
// small. Decoding and pipeline logic live in internal packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("aumond failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	cfg.NullDevice, err = config.ResolveNullDevice("/dev/null")
	if err != nil {
		return fmt.Errorf("resolve null device: %w", err)
	}

	pipe, err := os.Open(cfg.PipePath)
	if err != nil {
		return fmt.Errorf("open audit stream: %w", err)
	}
	defer pipe.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// The memory store always backs the query API; external sinks are
	// additive.
	mem := pipeline.NewMemoryStore(10000)
	sinks := []pipeline.Sink{mem}
	var queryStore pipeline.Store = mem
	var checks []httptransport.HealthChecker

	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		pg := pipeline.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		queryStore = pg
		log.Info("postgres sink enabled")
	}

	if cfg.RedisURL != "" {
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		sinks = append(sinks, pipeline.NewRedisStore(client, 10000))
		checks = append(checks, client)
		log.Info("redis sink enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := pipeline.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}

	buf := pipeline.NewRingBuffer(10000)
	pub := pipeline.NewPublisher(buf, log, m)
	worker := pipeline.NewWorker(buf, pub, sinks, log, m)

	asm := event.NewAssembler(event.Config{
		NullDevice:         cfg.NullDevice,
		SockPort6HostOrder: cfg.SockPort6HostOrder,
		Strict:             cfg.StrictAssembly,
	}, log)
	coll := collector.New(asm, bsm.NewRecordReader(pipe), cfg.EventFilter,
		captureFlags(cfg), pub, log, m)

	// No signing key means no query API; a guessable default would
	// leave the event feed open.
	var tokens middleware.TokenValidator
	if cfg.JWTSigningKey != "" {
		tokens = jwtauth.NewService(cfg.JWTSigningKey, "aumond")
	} else {
		log.Warn("AUMON_JWT_SIGNING_KEY not set, query API disabled")
	}

	handler := httptransport.NewHandler(queryStore, log, checks...)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, tokens, log))

	log.Info("starting aumond",
		"addr", cfg.Addr,
		"pipe", cfg.PipePath,
		"sinks", len(sinks),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A drained source means a trail replay finished; shut the rest
		// of the daemon down cleanly.
		err := coll.Run(ctx)
		stop()
		return err
	})

	g.Go(func() error {
		return worker.Run(ctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		// Closing the stream unblocks a collector stuck in a pipe read.
		pipe.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("aumond stopped")
	return nil
}

func captureFlags(cfg config.Config) event.CaptureFlags {
	flags := event.CaptureFlags{ArgText: cfg.CaptureArgText}
	switch cfg.CaptureEnv {
	case "full":
		flags.Env = event.CaptureEnvFull
	case "dyld":
		flags.Env = event.CaptureEnvDyld
	default:
		flags.Env = event.CaptureEnvNone
	}
	return flags
}
