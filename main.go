package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zlnvch/flipbook/api"
	"github.com/zlnvch/flipbook/config"
	"github.com/zlnvch/flipbook/store"
	"github.com/zlnvch/flipbook/store/dynamo"
	"github.com/zlnvch/flipbook/store/sqlite"
	"github.com/zlnvch/flipbook/transport/redis"
)

// openStore returns the configured store and a func releasing it.
func openStore(ctx context.Context, cfg config.Config) (store.KeyValueStore, func()) {
	switch cfg.StoreType {
	case config.StoreDynamo:
		kv, err := dynamo.NewDynamoKeyValueStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
		if err != nil {
			log.Fatalf("Failed to create dynamodb store: %v", err)
		}
		return kv, func() {}
	case config.StoreSqlite:
		kv, err := sqlite.NewSqliteKeyValueStore(cfg.SqlitePath)
		if err != nil {
			log.Fatalf("Failed to create sqlite store: %v", err)
		}
		return kv, func() { kv.Close() }
	default:
		log.Fatalf("Unknown STORE_TYPE: %s", cfg.StoreType)
		return nil, nil
	}
}

func main() {
	ctx := context.Background()
	cfg := config.Load()

	kv, closeStore := openStore(ctx, cfg)
	defer closeStore()

	bookTransport, err := redis.NewRedisTransport(ctx, cfg.DevMode, cfg.RedisEndpoint)
	if err != nil {
		log.Fatalf("Failed to create redis transport: %v", err)
	}
	defer bookTransport.Close()

	jwtSecret, err := base64.StdEncoding.DecodeString(cfg.JWTSecret)
	if err != nil || len(jwtSecret) == 0 {
		log.Fatalf("Failed to decode base64 jwtSecret: %v", err)
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	flipbookApi := api.NewFlipbookAPI(kv, bookTransport, jwtSecret, cfg.SnapshotFlushMillis, shutdownCtx)

	mux := http.NewServeMux()
	flipbookApi.RegisterRoutes(mux, cfg.AllowedOrigin)

	server := &http.Server{Addr: ":" + cfg.HostPort, Handler: mux}
	go func() {
		<-shutdownCtx.Done()
		server.Shutdown(context.Background())
	}()

	log.Printf("Starting server on host port: %s\n", cfg.HostPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}

	log.Printf("Server shutting down...")
}
