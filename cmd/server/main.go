// Command server boots the WhatsApp-to-LLM conversational gateway: it loads
// configuration, opens the relational store and the Redis context cache,
// wires observability, and serves the webhook/health/metrics HTTP surface
// until an interrupt or termination signal is received, at which point it
// drains in-flight requests before exiting.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/whatsapp-llm-gateway/internal/config"
	httpapi "github.com/tbourn/whatsapp-llm-gateway/internal/http"
	"github.com/tbourn/whatsapp-llm-gateway/internal/observability"
	"github.com/tbourn/whatsapp-llm-gateway/internal/repo"
	"github.com/tbourn/whatsapp-llm-gateway/internal/sysutil"
)

func main() {
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	log.Info().Str("environment", cfg.Environment).Str("port", cfg.Port).Msg("starting whatsapp-llm-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("database_url", cfg.DatabaseURL).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database schema")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to obtain underlying sql.DB handle")
	}
	defer sqlDB.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("failed to parse redis url")
	}
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup; rate limiting and context cache will fail open until it recovers")
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, "1.0.0")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up OpenTelemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error shutting down OpenTelemetry")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, redisClient, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining in-flight requests")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown did not complete in time, forcing close")
		_ = srv.Close()
	}
	log.Info().Msg("whatsapp-llm-gateway exited")
}

// newRedisClient parses rawURL (redis://[:password@]host:port/db) into a
// go-redis client. The connection is lazy: go-redis dials on first command,
// so a temporarily unreachable Redis at boot does not prevent startup (the
// rate limiter and context cache both fail open on store errors).
func newRedisClient(rawURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}
