package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/gatehouse/internal/app/migrate"
	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/engine"
	httpx "github.com/splax/gatehouse/internal/http"
	"github.com/splax/gatehouse/internal/repository/postgres"
	"github.com/splax/gatehouse/internal/service/grant"
	"github.com/splax/gatehouse/internal/ws"
	"github.com/splax/gatehouse/pkg/config"
	"github.com/splax/gatehouse/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	log := logger.New("gatehouse", logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	registry, err := buildRegistry()
	if err != nil {
		log.Error("descriptor registry invalid", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	sentinels := engine.Sentinels{
		Root:     cfg.RootActorID,
		System:   cfg.SystemActorID,
		Template: cfg.TemplateActorID,
	}
	roleCache := engine.NewRoleLevelCache(cfg.RoleCacheTTL)
	eng := engine.New(repo, registry, sentinels, roleCache, log)
	grantSvc := grant.New(repo, eng, log)
	decisionHub := ws.NewHub(cfg.DecisionBuffer)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, eng, grantSvc, decisionHub, limiter, cfg.JWTSecret, cfg.RateLimitPerMinute, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("gatehouse api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("gatehouse api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// buildRegistry declares every resource type the engine can decide on. New
// protected tables get registered here; the engine never scans live schema.
func buildRegistry() (*descriptor.Registry, error) {
	return descriptor.NewRegistry(
		descriptor.Resource{
			Name: "users",
			Kind: descriptor.KindUser,
		},
		descriptor.Resource{
			Name:       "teams",
			Kind:       descriptor.KindTeam,
			HasCreator: true,
		},
		descriptor.Resource{
			Name:       "invitations",
			Kind:       descriptor.KindInvitation,
			HasCreator: true,
			HasTeam:    true,
		},
		descriptor.Resource{
			Name: "invitees",
			Kind: descriptor.KindInvitee,
		},
		descriptor.Resource{
			Name:       "documents",
			HasOwner:   true,
			HasCreator: true,
			HasTeam:    true,
			SoftDelete: true,
			Grantable:  true,
		},
		descriptor.Resource{
			Name:       "attachments",
			HasCreator: true,
			SoftDelete: true,
			Grantable:  true,
			PermissionReferences: []descriptor.Reference{
				{Field: "document", FKColumn: "document_id", TargetType: "documents"},
			},
			CreateReference: "document",
		},
	)
}
