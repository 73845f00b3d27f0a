// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-ai-orchestrator/internal/config"
	"chat-ai-orchestrator/internal/domain/ports/repository"
	"chat-ai-orchestrator/internal/infra/adapters/ondevice"
	"chat-ai-orchestrator/internal/infra/adapters/remoteapi"
	"chat-ai-orchestrator/internal/infra/adapters/webgpu"
	httpapi "chat-ai-orchestrator/internal/infra/http"
	"chat-ai-orchestrator/internal/infra/logging"
	"chat-ai-orchestrator/internal/infra/metrics"
	"chat-ai-orchestrator/internal/infra/recovery"
	red "chat-ai-orchestrator/internal/infra/redis"
	"chat-ai-orchestrator/internal/infra/registry"
	"chat-ai-orchestrator/internal/infra/sched"
	"chat-ai-orchestrator/internal/infra/security"
	"chat-ai-orchestrator/internal/infra/settings"
	"chat-ai-orchestrator/internal/infra/web"
	"chat-ai-orchestrator/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()

	// ---- Settings store (Redis when configured, in-memory otherwise) ----
	var store repository.SettingsStore
	var limiter web.PromptLimiter
	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		store = red.NewSettingsRepo(client)
		if rl := cfg.Server.RateLimit; rl.Prompts > 0 {
			limiter = red.NewRateLimiter(client, rl.Prompts, rl.Window.Std())
		}
		logger.Info().Str("url", cfg.Redis.URL).Msg("settings store: redis")
	} else {
		store = settings.NewMemoryStore()
		if cfg.Server.RateLimit.Prompts > 0 {
			logger.Warn().Msg("server.rate_limit needs redis; prompt throttling disabled")
		}
		logger.Info().Msg("settings store: in-memory")
	}

	// ---- Encryption (API keys at rest) ----
	var encSvc *security.EncryptionService
	if key := cfg.Security.EncryptionKey; key != "" {
		encSvc, err = security.NewEncryptionService(key)
		if err != nil {
			log.Fatalf("encryption: %v", err)
		}
	} else {
		logger.Warn().Msg("security.encryption_key not set; stored API keys will not be encrypted")
	}

	// ---- Provider registry ----
	reg := registry.New(logger)

	if cfg.Providers.OnDevice.Enabled {
		if !cfg.Providers.OnDevice.Simulate {
			logger.Warn().Msg("no native on-device runtime linked; using simulated runtime")
		}
		odp := ondevice.NewAdapter(ondevice.NewSimRuntime(), logger)
		if err := reg.Register(odp); err != nil {
			log.Fatalf("register on-device: %v", err)
		}
	}
	if cfg.Providers.WebGPU.Enabled {
		if !cfg.Providers.WebGPU.Simulate {
			logger.Warn().Msg("no WebGPU engine linked; using simulated engine")
		}
		gpu := webgpu.NewAdapter(webgpu.NewSimEngine(), store, cfg.Providers.WebGPU.DefaultModel, logger)
		if err := reg.Register(gpu); err != nil {
			log.Fatalf("register webgpu: %v", err)
		}
	}
	remote := remoteapi.NewAdapter(store, encSvc, remoteapi.Defaults{
		Flavor:   cfg.Providers.Remote.Flavor,
		APIKey:   cfg.Providers.Remote.APIKey,
		Model:    cfg.Providers.Remote.Model,
		Endpoint: cfg.Providers.Remote.Endpoint,
	}, logger)
	if err := reg.Register(remote); err != nil {
		log.Fatalf("register remote-api: %v", err)
	}

	// ---- Recovery coordinator ----
	resetc := make(chan struct{}, 1)
	rec := recovery.New(
		func(ctx context.Context) error {
			reg.ClearActive()
			_, err := reg.AutoSelect(ctx)
			return err
		},
		func(ctx context.Context) error {
			if err := store.Clear(ctx); err != nil {
				logger.Warn().Err(err).Msg("settings clear failed during reset")
			}
			if err := reg.Dispose(ctx); err != nil {
				logger.Warn().Err(err).Msg("provider dispose failed during reset")
			}
			select {
			case resetc <- struct{}{}:
			default:
			}
			return nil
		},
		logger,
	)

	chatUC := usecase.NewChatUseCase(reg, rec, logger)

	// ---- Initial selection ----
	if p, err := reg.AutoSelect(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial auto-select failed")
	} else if p == nil {
		logger.Warn().Msg("no provider available at startup")
	}

	// ---- Availability probe worker ----
	if cfg.Probe.Interval > 0 {
		worker := sched.NewProbeWorker(cfg.Probe.Interval.Std(), reg, logger)
		worker.Start(ctx)
		defer worker.Stop()
	}

	// ---- HTTP gateway ----
	var auth *web.AuthManager // nil leaves the management routes open (dev)
	if cfg.Server.AuthSecret != "" {
		auth = web.NewAuthManager(cfg.Server.AuthSecret, cfg.Server.AuthTTL.Std())
	} else {
		logger.Warn().Msg("server.auth_secret not set; management routes are unauthenticated")
	}
	gw := web.NewServer(chatUC, reg, auth, limiter, cfg.Server.AdminKey, logger)
	srv := httpapi.NewServer(cfg.Server.Addr, gw.Routes(cfg.Server.CORSOrigins), logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-resetc:
		logger.Info().Msg("application reset requested; shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := reg.Dispose(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("provider dispose at shutdown")
	}
}
