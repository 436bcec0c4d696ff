// Command server wires together the job-orchestration core (spec §2) and
// exposes it over HTTP/websocket, directly following the teacher's
// cmd/server/main.go shape: load config, construct infrastructure adapters,
// wire application-layer components over them, start background servers,
// then block for SIGINT/SIGTERM and shut down gracefully.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
	"github.com/Pimboto/DarkStackBackend/internal/executor"
	"github.com/Pimboto/DarkStackBackend/internal/fanout"
	"github.com/Pimboto/DarkStackBackend/internal/infrastructure/accountstore"
	"github.com/Pimboto/DarkStackBackend/internal/infrastructure/clock"
	"github.com/Pimboto/DarkStackBackend/internal/infrastructure/config"
	"github.com/Pimboto/DarkStackBackend/internal/infrastructure/logging"
	infraqueue "github.com/Pimboto/DarkStackBackend/internal/infrastructure/queue"
	"github.com/Pimboto/DarkStackBackend/internal/infrastructure/social"
	"github.com/Pimboto/DarkStackBackend/internal/intake"
	"github.com/Pimboto/DarkStackBackend/internal/pacing"
	"github.com/Pimboto/DarkStackBackend/internal/queueregistry"
	transporthttp "github.com/Pimboto/DarkStackBackend/internal/transport/http"
	"github.com/Pimboto/DarkStackBackend/internal/workerpool"
)

func main() {
	logger, err := logging.New("development", "info")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		logger.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting job-orchestration core", "nodeEnv", cfg.NodeEnv)

	accounts, err := accountstore.New(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to account store", "error", err)
		os.Exit(1)
	}
	defer accounts.Close()
	log.Info("connected to account store")

	backend := infraqueue.NewAsynqBackend(infraqueue.Config{
		RedisAddr:       cfg.RedisAddr(),
		RedisPassword:   cfg.RedisAuth,
		RedisDB:         cfg.RedisDB,
		MaxStalledCount: cfg.MaxStalledCount,
	})
	defer backend.Close()

	bus := eventbus.New()
	defer bus.Close()

	hub := fanout.New(bus)
	defer hub.Close()

	rnd := clock.NewRand(time.Now().UnixNano())
	sysClock := clock.New()
	planner := pacing.New(rnd)

	newClient := socialClientFactory(cfg, log)
	dispatcher := executor.New(accounts, newClient, planner, sysClock, rnd)

	pool := workerpool.New(backend.RedisClientOpt(), backend.TaskType(), backend, dispatcher, decodeJobPayload, bus, log)
	defer pool.Shutdown()

	registry := queueregistry.New(backend, bus, pool, cfg.ConcurrencyDefault)
	api := intake.New(registry, hub, accounts)

	router := transporthttp.NewRouter(transporthttp.RouterConfig{API: api, AdminKey: cfg.AdminKey, NodeEnv: cfg.NodeEnv})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled: the subscribe endpoint streams for the connection's lifetime
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// socialClientFactory returns an executor.ClientFactory pinning each job's
// SocialClient to its account's configured endpoint/proxy/user-agent (spec
// §1 "Outbound proxy routing ... threaded into SocialClient construction").
func socialClientFactory(cfg *config.Config, log service.Logger) executor.ClientFactory {
	return func(meta entity.AccountMetadata) service.SocialClient {
		host := cfg.ATProtoPDSHost
		if meta.Endpoint != "" {
			host = meta.Endpoint
		}
		proxy := meta.Proxy
		if proxy == "" {
			proxy = cfg.OutboundProxyURL
		}
		client, err := social.NewClient(social.Config{PDSHost: host, Proxy: proxy, UserAgent: meta.UserAgent})
		if err != nil {
			log.Warn("social: failed to configure proxy, continuing without it", "account", meta.AccountID, "error", err)
			client, _ = social.NewClient(social.Config{PDSHost: host, UserAgent: meta.UserAgent})
		}
		return client
	}
}
