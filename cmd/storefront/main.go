package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/ahinestrog/mybookstore-cart/internal/config"
	"github.com/ahinestrog/mybookstore-cart/internal/events"
	"github.com/ahinestrog/mybookstore-cart/internal/session"
	"github.com/ahinestrog/mybookstore-cart/internal/storefront"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	setupLogger(cfg)
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("sessions", cfg.SessionBackend).
		Str("cart_key", cfg.CartSessionKey).
		Msg("starting storefront")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, sweeper, closeStore := openStore(ctx, cfg)
	defer closeStore()
	go session.Sweep(ctx, sweeper, cfg.SessionSweepInterval, log.Logger)

	var pub events.Publisher = events.Noop{}
	if cfg.RabbitURL != "" {
		rabbit, err := events.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		must(err)
		defer rabbit.Close()
		pub = rabbit
		log.Info().Str("exchange", cfg.RabbitExchange).Msg("publishing cart events")
	}

	sessions := session.NewManager(store, cfg.SessionCookieName, cfg.SessionTTL, log.Logger)
	srv, err := storefront.NewServer(storefront.Options{
		SessionKey:     cfg.CartSessionKey,
		TemplateTag:    cfg.CartTemplateTagName,
		TemplatesDir:   cfg.TemplatesDir,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, sessions, pub, log.Logger)
	must(err)

	// gRPC health for the orchestrator
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err)
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	<-ctx.Done()
	log.Warn().Msg("shutting down...")
	hs.Shutdown()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcSrv.GracefulStop()
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func openStore(ctx context.Context, cfg config.Config) (session.Store, session.Sweeper, func()) {
	if cfg.SessionBackend == "memory" {
		mem := session.NewMemoryStore()
		return mem, mem, func() {}
	}
	db, err := session.OpenSQLite(cfg.SessionDBPath)
	must(err)
	sq, err := session.NewSQLiteStore(ctx, db)
	must(err)
	cached, err := session.NewCachedStore(sq, cfg.SessionCacheSize)
	must(err)
	log.Info().Str("db", cfg.SessionDBPath).Int("cache", cfg.SessionCacheSize).Msg("session store ready")
	return cached, sq, func() { _ = db.Close() }
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
