package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/treasurydash/ledgersync/internal/auth"
	"github.com/treasurydash/ledgersync/internal/classify"
	"github.com/treasurydash/ledgersync/internal/config"
	"github.com/treasurydash/ledgersync/internal/logger"
	"github.com/treasurydash/ledgersync/internal/model"
	"github.com/treasurydash/ledgersync/internal/pricing"
	"github.com/treasurydash/ledgersync/internal/provider"
	"github.com/treasurydash/ledgersync/internal/repo"
	"github.com/treasurydash/ledgersync/internal/service"
	"github.com/treasurydash/ledgersync/internal/token"
	httptransport "github.com/treasurydash/ledgersync/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Wallet{},
		&model.Transaction{},
		&model.SyncCheckpoint{},
		&model.OutboxEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. domain wiring
	repository := repo.NewRepository(gdb, rdb, kw, log)
	allowlist := token.NewAllowlist(cfg.Tokens)
	oracle := pricing.NewCachedOracle(allowlist, rdb, cfg.Pricing.BaseURL, cfg.Pricing.CacheTTL, log)
	classifier := classify.NewClassifier(allowlist, oracle, log)

	var primary *provider.IndexerClient
	if cfg.Providers.PrimaryAPIKey != "" {
		primary = provider.NewIndexerClient(
			cfg.Providers.PrimaryBaseURL,
			cfg.Providers.PrimaryAPIKey,
			cfg.Providers.MaxPages,
			cfg.Providers.RequestTimeout,
			log,
		)
	}
	var secondary *provider.ScanClient
	if cfg.Providers.SecondaryAPIKey != "" {
		secondary = provider.NewScanClient(
			cfg.Providers.SecondaryAPIKey,
			allowlist,
			cfg.Providers.RequestTimeout,
			log,
		)
	}
	fetcher := provider.NewFallbackFetcher(primary, secondary, log)

	svc := service.NewSyncService(repository, fetcher, classifier, allowlist, log)
	jwtSvc := auth.NewService([]byte(cfg.Auth.JWTSecret))

	// 7. gin router
	router := httptransport.NewRouter(svc, jwtSvc, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("ledgersync-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
