package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"stockpos/backend/internal/cache"
	"stockpos/backend/internal/config"
	"stockpos/backend/internal/httpapi"
	"stockpos/backend/internal/service"
	"stockpos/backend/internal/store"
	"stockpos/backend/internal/store/memory"
	pgstore "stockpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make(map[string]func() error, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("migration failed: %v", err)
			}
		}
		repo = pg
		closers["postgres"] = pg.Close
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	stockCache := cache.StockCache(cache.NoopStockCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStockCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			stockCache = redisCache
			closers["redis"] = redisCache.Close
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, stockCache, cfg.StockCacheTTL())
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.MaxLoginAttempts, cfg.Lockout(), repo)

	if upgraded, err := auth.UpgradeLegacyPasswords(ctx); err != nil {
		log.Fatalf("password upgrade failed: %v", err)
	} else if upgraded > 0 {
		log.Printf("[auth] upgraded %d legacy password(s)", upgraded)
	}
	if err := auth.EnsureAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	api := httpapi.New(svc, auth, cfg.AllowedOrigin)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	operations := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	}
	for name, closeFn := range closers {
		operations[name] = func(context.Context) error {
			return closeFn()
		}
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)
	exitCode := <-wait
	log.Printf("server stopped with code %d", exitCode)
	os.Exit(exitCode)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminEmail == "" && cfg.SeedAdminPassword == "" {
		return nil
	}
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return fmt.Errorf("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set together")
	}
	if _, err := mail.ParseAddress(cfg.SeedAdminEmail); err != nil {
		return fmt.Errorf("SEED_ADMIN_EMAIL is not a valid address: %w", err)
	}
	return nil
}
