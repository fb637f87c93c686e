package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mautic-sync/internal/api"
	"github.com/ignite/mautic-sync/internal/config"
	"github.com/ignite/mautic-sync/internal/db"
	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/pkg/distlock"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
	"github.com/ignite/mautic-sync/internal/repository/memory"
	"github.com/ignite/mautic-sync/internal/repository/postgres"
	"github.com/ignite/mautic-sync/internal/secrets"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
	"github.com/ignite/mautic-sync/internal/service/datasync"
	"github.com/ignite/mautic-sync/internal/service/tenant"
	"github.com/ignite/mautic-sync/internal/worker"
)

// stores groups the repositories the services are built on.
type stores struct {
	tenants   tenant.Repository
	entities  datasync.EntityStore
	dashboard dashboard.Repository
}

func main() {
	cfg, err := config.LoadFromEnv(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactPII)

	codec, err := secrets.NewCodec(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("Failed to initialize credential codec: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var database *sql.DB
	var st stores
	switch cfg.Storage.Type {
	case "memory":
		mem := memory.NewStore()
		st = stores{tenants: mem, entities: mem, dashboard: mem}
		log.Println("[storage] Using in-memory store; data is lost on restart")
	default:
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(cfg.Database.URL, "up"); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			log.Println("[storage] Migrations applied")
		}
		database, err = db.Open(ctx, cfg.Database.URL, db.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		st = stores{
			tenants:   postgres.NewTenantRepo(database),
			entities:  postgres.NewEntityRepo(database),
			dashboard: postgres.NewDashboardRepo(database),
		}
		log.Println("[storage] PostgreSQL connected")
	}

	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	clientOpts := []mautic.Option{
		mautic.WithTimeout(cfg.Mautic.Timeout()),
		mautic.WithRetries(cfg.Mautic.Retries),
	}
	syncOpts := []datasync.Option{
		datasync.WithClientOptions(clientOpts...),
		datasync.WithConcurrency(cfg.Sync.TenantConcurrency),
		datasync.WithRateLimit(cfg.Mautic.RequestsPerSecond),
	}
	if cfg.Mautic.Breaker.Enabled {
		syncOpts = append(syncOpts, datasync.WithBreakers(datasync.BreakerSettings{
			ConsecutiveFailures: uint32(cfg.Mautic.Breaker.ConsecutiveFailures),
			OpenTimeout:         cfg.Mautic.Breaker.OpenTimeout(),
		}))
	}
	if cfg.Sync.LockEnabled {
		if locks := distlock.NewFactory(redisClient, database, cfg.Sync.LockTTL()); locks != nil {
			syncOpts = append(syncOpts, datasync.WithLocks(locks))
			log.Printf("[sync] Tenant locks enabled (ttl %v)", cfg.Sync.LockTTL())
		} else {
			log.Println("[sync] Warning: lock_enabled set but neither Redis nor PostgreSQL is available; running without locks")
		}
	}

	tenantSvc := tenant.NewService(st.tenants, codec, clientOpts...)
	syncSvc := datasync.NewService(st.tenants, st.entities, codec, syncOpts...)
	dashSvc := dashboard.NewService(st.dashboard, st.tenants)

	var scheduler *worker.SyncScheduler
	switch {
	case cfg.App.IsTest():
		log.Println("[SyncScheduler] Not started (test environment)")
	case !cfg.Scheduler.Enabled:
		log.Println("[SyncScheduler] Not started (disabled)")
	default:
		scheduler, err = worker.NewSyncScheduler(syncSvc, cfg.Scheduler)
		if err != nil {
			log.Fatalf("Failed to create sync scheduler: %v", err)
		}
		if err := scheduler.StartAll(); err != nil {
			log.Fatalf("Failed to start sync scheduler: %v", err)
		}
	}

	handlers := api.NewHandlers(tenantSvc, syncSvc, dashSvc, api.NewHealthChecker(database, redisClient))
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handlers, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	if scheduler != nil {
		scheduler.StopAll()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// connectRedis returns nil when url is empty or Redis is unreachable.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Println("[redis] Not configured (REDIS_URL not set)")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[redis] Warning: connection failed: %v; falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("[redis] Connected (distributed locking available)")
	return client
}
