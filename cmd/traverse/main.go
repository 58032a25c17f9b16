// Package main is the entry point for the Traverse transfer service.
// It initializes and coordinates all services using the service
// registry pattern.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/address"
	"github.com/traversefi/traverse/internal/api"
	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/quotes"
	"github.com/traversefi/traverse/internal/storage"
	"github.com/traversefi/traverse/internal/submit"
	"github.com/traversefi/traverse/internal/wallet"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
	"github.com/traversefi/traverse/pkg/service"
)

func main() {
	configFile := pflag.String("config", "", "Path to configuration file")
	logLevel := pflag.String("log-level", "", "Log level (debug, info, warn, error)")
	pflag.Parse()

	// A local .env is optional.
	_ = godotenv.Load()

	opts := config.DefaultLoadOptions()
	if *configFile != "" {
		opts.ConfigFile = *configFile
	}

	cfg, err := config.LoadWithOptions(opts)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := logging.New(logging.Config{
		Level:       logging.LogLevel(cfg.Log.Level),
		Output:      os.Stdout,
		ServiceName: "traverse",
		Environment: os.Getenv("TRAVERSE_ENV"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	custody, err := storage.NewRedisCustody(cfg.Redis.Address)
	if err != nil {
		logger.Error("failed to connect to custody store", "error", err)
		os.Exit(1)
	}
	custody.FeeCollector = cfg.Transfer.FeeCollector
	defer custody.Close()

	quotesService, err := quotes.NewQuotesService(cfg)
	if err != nil {
		logger.Error("failed to initialize quote service", "error", err)
		os.Exit(1)
	}

	submitter, err := submit.NewSubmitter(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize submitter", "error", err)
		os.Exit(1)
	}
	defer submitter.Close()

	broadcaster, err := submit.NewBroadcaster(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize broadcaster", "error", err)
		os.Exit(1)
	}
	defer broadcaster.Close()

	signer, err := loadSigner(cfg)
	if err != nil {
		logger.Error("failed to load signing wallet", "error", err)
		os.Exit(1)
	}

	catalogue := asset.NewStaticCatalogue(quotesService.Quotes())
	rewards := storage.NewRedisRewards(custody.Client)

	deps := engine.Deps{
		Catalogue:   catalogue,
		Resolver:    address.NewResolver(nil, nil),
		Fees:        storage.NewRedisFees(custody.Client),
		Quotes:      quotesService.Quotes(),
		Eligibility: rewards,
		Activity:    custody,
		Limits:      storage.NewRedisLimits(custody.Client),
		Rewards:     rewards,
		FeeFunding:  custody,
		Signer:      signer,
		Broadcaster: broadcaster,
		Submitter:   submitter,
		Clock:       quotesService.Quotes(),

		MaxOpenOrders:    cfg.Transfer.MaxOpenOrders,
		BankReferenceMax: cfg.Transfer.BankReferenceMax,
	}

	directory, err := account.LoadDirectory(ctx, cfg.Accounts.File, catalogue, custody)
	if err != nil {
		logger.Error("failed to load account directory", "error", err)
		os.Exit(1)
	}

	registry := service.NewRegistry(logger)

	settlementService := submit.NewSettlementService(cfg, custody, logger)
	if err := registry.Register(settlementService); err != nil {
		logger.Error("failed to register settlement service", "error", err)
		os.Exit(1)
	}

	if err := registry.Register(quotesService); err != nil {
		logger.Error("failed to register quotes service", "error", err)
		os.Exit(1)
	}

	apiService := api.NewAPIService(cfg, directory, engine.DefaultRegistry(), deps, custody, custody, logger)
	if err := registry.Register(apiService); err != nil {
		logger.Error("failed to register API service", "error", err)
		os.Exit(1)
	}

	logger.Info("starting all services")
	if err := registry.StartAll(ctx); err != nil {
		logger.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	logger.Info("all services started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info("shutting down")
	cancel()

	if err := registry.StopAll(context.Background()); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

// loadSigner loads the service signing wallet, generating an ephemeral
// key when none is configured.
func loadSigner(cfg *config.Config) (*wallet.Wallet, error) {
	if cfg.Wallet.SigningKey != "" {
		return wallet.Import(cfg.Wallet.SigningKey)
	}
	return wallet.New()
}
