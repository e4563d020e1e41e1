package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/mailtrace/internal/api"
	"github.com/ignite/mailtrace/internal/config"
	"github.com/ignite/mailtrace/internal/pkg/logger"
	"github.com/ignite/mailtrace/internal/repository/postgres"
	"github.com/ignite/mailtrace/internal/service/reconcile"
	"github.com/ignite/mailtrace/internal/service/suppression"
	"github.com/ignite/mailtrace/internal/service/tracking"
	"github.com/ignite/mailtrace/internal/sns"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	log.Printf("DB URL host portion: ...@%s/...", extractHost(cfg.Database.URL))
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Optional Redis-backed suppression cache; the service degrades to
	// direct repository reads when disabled or unreachable.
	var cache *suppression.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unreachable, suppression cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = suppression.NewCache(rdb, cfg.Redis.CacheTTL())
			log.Printf("Suppression cache enabled (redis %s)", cfg.Redis.Addr)
		}
		cancel()
	}

	trackingRepo := postgres.NewTrackingRepo(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)

	tracker := tracking.NewService(trackingRepo,
		tracking.WithMatchWindow(cfg.Tracking.MatchWindow()),
		tracking.WithDedupWindow(cfg.Tracking.DedupWindow()),
	)
	supps := suppression.NewService(suppressionRepo, cache)
	reconciler := reconcile.NewService(tracker, supps, cfg.Tracking.OwningDomain)

	verifier := sns.NewVerifier(sns.NewCertCache(nil, cfg.SNS.CertCacheTTL()))
	subscriber := sns.NewSubscriber(nil)

	handlers := api.NewHandlers(verifier, subscriber, reconciler, tracker, supps)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("mailtrace listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
