package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insurance-voice-agent/internal/callstore"
	"insurance-voice-agent/internal/config"
	"insurance-voice-agent/internal/relay"
	"insurance-voice-agent/internal/telephony"
	"insurance-voice-agent/internal/voicememory"
	"insurance-voice-agent/pkg/logger"
	"insurance-voice-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A local .env is a convenience; deployed environments inject real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "relay")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	dialer, err := telephony.NewTwilioDialer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	memory := voicememory.NewClient(cfg.VoiceAgent.BaseURL, cfg.VoiceAgent.AgentID, cfg.VoiceAgent.APIKey)

	store, closeStore, err := openStore(rootCtx, cfg)
	if err != nil {
		log.Error("call store init failed", "err", err, "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	defer closeStore()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(relay.CORSMiddleware())

	registerRoutes(r, relay.Handlers{
		Dialer:            dialer,
		Memory:            memory,
		Store:             store,
		FromNumber:        cfg.Twilio.PhoneNumber,
		StatusCallbackURL: cfg.StatusCallbackURL(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("relay listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (callstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return nil, nil, err
		}
		return callstore.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		return callstore.NewMemoryStore(), func() {}, nil
	}
}
