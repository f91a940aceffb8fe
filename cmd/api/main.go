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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mise.app/internal/audit"
	"mise.app/internal/auth"
	"mise.app/internal/config"
	"mise.app/internal/httpapi"
	"mise.app/internal/obs"
	"mise.app/internal/ratelimit"
	"mise.app/internal/rbac"
	"mise.app/internal/session"
	"mise.app/internal/staff"
	"mise.app/internal/store/memory"
	"mise.app/internal/store/pg"
	"mise.app/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is everything the services read and write.
type backend interface {
	staff.Store
	session.Store
	auth.IdentityStore
	audit.Sink
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := obs.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	obs.SetLogger(log)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store backend
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseURL != "" {
		db, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open db", zap.Error(err))
		}
		defer db.Close()
		store = db
		probe = httpapi.ReadyProbe{DB: db}
	} else {
		if cfg.Production() {
			log.Fatal("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set; using in-memory store")
		store = memory.New()
	}

	var limits ratelimit.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		limits = ratelimit.NewRedisStore(rdb)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.Run(ctx, time.Minute)
		limits = mem
	}

	policy := rbac.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := rbac.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			log.Fatal("load policy", zap.String("path", cfg.PolicyFile), zap.Error(err))
		}
		policy = p
	}

	feed := stream.New()
	rec := audit.NewRecorder(audit.MultiSink{store, audit.LogSink{}, feed},
		audit.WithQueueSize(cfg.AuditQueueSize),
		audit.WithLogger(log))

	sessions := session.NewManager(store, session.WithActivity(rec), session.WithLogger(log))
	sessions.StartReaper(ctx, cfg.SessionReaperInterval)

	validator := auth.NewValidator(store, rec)
	svc := staff.NewService(store, validator, sessions, rec,
		staff.WithPolicy(policy),
		staff.WithLimiterStore(limits),
		staff.WithLogger(log))

	tokens, err := auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		log.Fatal("token verifier", zap.Error(err))
	}

	api := httpapi.New(svc, validator, tokens,
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
		httpapi.WithSiteURL(cfg.SiteURL),
		httpapi.WithSecureCookies(cfg.Production()),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithActivityFeed(feed),
		httpapi.WithRateLimit(cfg.HTTPRateBurst, cfg.HTTPRatePerSec))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(ctx),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http listen", zap.Error(err))
		}
	}()

	grpcSrv := httpapi.NewGRPCServer(probe).Register()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc listen", zap.Error(err))
	}
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	if err := rec.Close(shutdownCtx); err != nil {
		log.Warn("audit drain", zap.Error(err))
	}
	log.Info("stopped")
}
