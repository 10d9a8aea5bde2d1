package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/whatsapp-warmup/internal/api"
	"github.com/ignite/whatsapp-warmup/internal/config"
	"github.com/ignite/whatsapp-warmup/internal/gateway"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/scheduler"
	"github.com/ignite/whatsapp-warmup/internal/storage"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(url string) *redis.Client {
	if url == "" {
		log.Println("[redis] not configured (REDIS_URL not set): dispatch leases are process-local")
		return nil
	}
	opts, err := redis.ParseURL(url)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[redis] Warning: connection failed (%s): %v, falling back to process-local leases", url, err)
		client.Close()
		return nil
	}
	log.Printf("[redis] connected: %s (distributed dispatch leases enabled)", url)
	return client
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WhatsApp Warm-up Server (cmd/server/main.go)              ║")
	log.Println("║  Stage progression, scheduling and analytics API           ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", cfg.Server.Port)

	loc, err := cfg.Warmup.Location()
	if err != nil {
		log.Fatalf("Invalid warm-up config: %v", err)
	}

	registry := warmup.NewRegistry(nil, cfg.Warmup.DailyLimits)
	registry.SetLocation(loc)
	log.Printf("[warmup] registry ready (timezone %s, %d templates)", loc, len(registry.Templates().All()))

	redisClient := connectRedis(cfg.Redis.URL)

	gw := gateway.NewClient(cfg.Gateway)
	log.Printf("[gateway] Evolution API at %s (timeout %s)", cfg.Gateway.BaseURL, cfg.Gateway.Timeout())

	sched := scheduler.New(registry, gw, scheduler.Options{
		Interval:     cfg.Warmup.DispatchInterval(),
		SendTimeout:  cfg.Gateway.Timeout(),
		SendDelay:    time.Duration(cfg.Warmup.SendDelayMs) * time.Millisecond,
		AutoPlan:     cfg.Warmup.AutoPlan,
		CleanupAfter: time.Duration(cfg.Warmup.CleanupDays) * 24 * time.Hour,
	})
	if redisClient != nil {
		sched.SetRedisClient(redisClient)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Snapshots: restore before accepting traffic, then flush periodically.
	syncDone := make(chan struct{})
	store, err := storage.Open(ctx, cfg.Storage, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	if store != nil {
		syncer := storage.NewSyncer(registry, store, cfg.Storage.SnapshotInterval())
		restored, err := syncer.Restore(ctx)
		if err != nil {
			log.Printf("[storage] Warning: restore failed: %v", err)
		} else {
			log.Printf("[storage] %s snapshots enabled, restored %d instance(s)", cfg.Storage.Type, restored)
		}
		go func() {
			syncer.Start(ctx)
			close(syncDone)
		}()
	} else {
		log.Println("[storage] snapshots disabled: state lives in memory only")
		close(syncDone)
	}

	handlers := api.NewHandlers(registry, sched, gw)
	if cfg.Storage.ExportBucket != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		if err != nil {
			log.Printf("[storage] Warning: export archive disabled: %v", err)
		} else {
			handlers.SetArchiver(storage.NewArchiverFromConfig(awsCfg, cfg.Storage.ExportBucket))
			log.Printf("[storage] export archive enabled: s3://%s", cfg.Storage.ExportBucket)
		}
	}
	server := api.NewServer(cfg.Server, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Dispatch loops finish their in-flight sends before the final snapshot.
	sched.Shutdown()
	cancel()
	<-syncDone

	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped")
}
