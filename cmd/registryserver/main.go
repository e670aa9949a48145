// Command registryserver is the registry's HTTP entrypoint: it loads
// configuration, opens the write/read PostgreSQL pools, applies embedded
// migrations, wires the CQRS coordinator and domain engines, and serves
// the HTTP surface until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gcregistry/registry/internal/config"
	"github.com/gcregistry/registry/internal/metrics"
	"github.com/gcregistry/registry/internal/platform/database"
	"github.com/gcregistry/registry/internal/platform/migrations"
	"github.com/gcregistry/registry/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	runMigrations := flag.Bool("migrate", true, "apply embedded database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})

	rootCtx := context.Background()
	pool := database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifeSecs) * time.Second,
	}

	writeDB, err := database.Open(rootCtx, cfg.Database.WriteDSN, pool)
	if err != nil {
		log.WithError(err).Fatal("connect to write store")
	}
	defer writeDB.Close()

	readDSN := cfg.Database.ReadDSN
	if readDSN == "" {
		readDSN = cfg.Database.WriteDSN
	}
	readDB, err := database.Open(rootCtx, readDSN, pool)
	if err != nil {
		log.WithError(err).Fatal("connect to read store")
	}
	defer readDB.Close()

	if *runMigrations && cfg.Database.MigrateOnStart {
		if err := migrations.Apply(writeDB.DB); err != nil {
			log.WithError(err).Fatal("apply migrations to write store")
		}
		if readDSN != cfg.Database.WriteDSN {
			if err := migrations.Apply(readDB.DB); err != nil {
				log.WithError(err).Fatal("apply migrations to read store")
			}
		}
	}

	var redisClient *redis.Client
	if cfg.EventStream.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.EventStream.RedisAddr})
		if err := redisClient.Ping(rootCtx).Err(); err != nil {
			log.WithError(err).Fatal("connect to redis")
		}
		defer redisClient.Close()
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	app := build(rootCtx, buildParams{
		cfg:         cfg,
		writeDB:     writeDB,
		readDB:      readDB,
		redisClient: redisClient,
		metrics:     recorder,
		logger:      log,
	})

	listenAddr := *addr
	if listenAddr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8080
		}
		listenAddr = cfg.Server.Host + ":" + strconv.Itoa(port)
	}

	srv := &http.Server{Addr: listenAddr, Handler: app.router}

	go func() {
		log.WithField("addr", listenAddr).Info("registry server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("serve http")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("shutdown http server")
	}
}
