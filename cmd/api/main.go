package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ops-online-support/chattia-gateway/internal/api/router"
	appconfig "github.com/ops-online-support/chattia-gateway/internal/config"
	"github.com/ops-online-support/chattia-gateway/internal/escalation"
	"github.com/ops-online-support/chattia-gateway/internal/firewall"
	"github.com/ops-online-support/chattia-gateway/internal/knowledge"
	"github.com/ops-online-support/chattia-gateway/internal/memory"
	"github.com/ops-online-support/chattia-gateway/internal/observability/metrics"
	"github.com/ops-online-support/chattia-gateway/internal/pipeline"
	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/internal/webchat"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

func main() {
	// Load .env in development; missing file is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chattia-gateway API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	redisClient := newRedisClient(cfg)

	signer := session.NewSigner(cfg.SignerMode, cfg.SessionSecretSeed)
	sessions := session.NewStore(signer, logger)
	fw := firewall.New(sessions, logger, firewall.WithRateLimit(cfg.RateLimitWindow, cfg.RateLimitMaxTokens))

	var corpus knowledge.Source
	if cfg.CorpusURL != "" {
		corpus = knowledge.HTTPSource{URL: cfg.CorpusURL}
	} else {
		corpus = knowledge.FileSource{Path: cfg.CorpusPath}
	}
	searcher := knowledge.NewSearcher(corpus, logger)

	mem := memory.New(memory.NewRedisRecordStore(redisClient), memory.NewCipher(cfg.CipherMode), logger)
	trail := escalation.NewRedisAuditTrail(redisClient)

	generator, err := newGenerator(cfg)
	if err != nil {
		logger.Error("failed to initialize escalation provider", "provider", cfg.EscalationProvider, "error", err)
		os.Exit(1)
	}
	logger.Info("escalation provider ready", "target", generator.Target())
	escalator := escalation.NewEscalator(generator, trail, logger)

	pipelineMetrics := metrics.NewPipelineMetrics(nil)
	p := pipeline.New(sessions, fw, searcher, mem, escalator, logger, pipelineMetrics)
	webchatHandler := webchat.NewHandler(p, sessions, mem, trail, logger)

	// Drain session events for operational visibility.
	events, cancelEvents := sessions.Subscribe(64)
	defer cancelEvents()
	go func() {
		for ev := range events {
			logger.Debug("session event", "type", string(ev.Type), "client_id", ev.ClientID)
		}
	}()

	r := router.New(&router.Config{
		Logger:             logger,
		Webchat:            webchatHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSec:    cfg.HTTPRateLimitPerSec,
		RateLimitBurst:     cfg.HTTPRateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("failed to close redis client", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// newGenerator selects the escalation provider once at startup.
func newGenerator(cfg *appconfig.Config) (escalation.Generator, error) {
	switch cfg.EscalationProvider {
	case "openai":
		return escalation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "gemini":
		return escalation.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModelID)
	case "worker":
		return escalation.NewWorkerClient(cfg.WorkerURL, cfg.WorkerAuthToken, nil), nil
	default:
		return nil, fmt.Errorf("unknown escalation provider %q", cfg.EscalationProvider)
	}
}
