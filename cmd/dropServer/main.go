package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dropforge/merkledrop-go/pkg/config"
	"github.com/dropforge/merkledrop-go/pkg/distributor"
	"github.com/dropforge/merkledrop-go/pkg/logger"
	"github.com/dropforge/merkledrop-go/pkg/persistence"
	"github.com/dropforge/merkledrop-go/pkg/persistence/badger"
	"github.com/dropforge/merkledrop-go/pkg/persistence/memory"
	redispersistence "github.com/dropforge/merkledrop-go/pkg/persistence/redis"
	"github.com/dropforge/merkledrop-go/pkg/server"
	"github.com/dropforge/merkledrop-go/pkg/transfer"
	"github.com/dropforge/merkledrop-go/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "drop-server",
		Usage: "Merkle airdrop distributor server",
		Description: `Serves one token distribution campaign over HTTP.

The server loads a campaign manifest produced by tree-builder, pins the
merkle root, and exposes:
- POST /fund for authority deposits into custody
- POST /claim for proof-gated entitlement redemption
- GET /status and /claim/status for campaign inspection`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "authority-address",
				Aliases:  []string{"authority"},
				Usage:    "Ethereum address allowed to fund the campaign",
				EnvVars:  []string{config.EnvDropAuthorityAddress},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8000,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvDropPort},
			},
			&cli.StringFlag{
				Name:     "campaign-file",
				Aliases:  []string{"campaign"},
				Usage:    "Path to the campaign manifest from tree-builder",
				EnvVars:  []string{config.EnvDropCampaignFile},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Value:   config.BackendMemory.String(),
				Usage:   fmt.Sprintf("Persistence backend: %s", config.SupportedBackendsString()),
				EnvVars: []string{config.EnvDropBackend},
			},
			&cli.StringFlag{
				Name:    "badger-dir",
				Usage:   "Data directory for the badger backend",
				EnvVars: []string{config.EnvDropBadgerDir},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis server address (host:port) for the redis backend",
				EnvVars: []string{config.EnvDropRedisAddr},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvDropRedisPassword},
			},
			&cli.Float64Flag{
				Name:    "claim-rate-limit",
				Value:   25,
				Usage:   "Claim requests per second across all callers (0 disables)",
				EnvVars: []string{config.EnvDropClaimRateLimit},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDropVerbose},
			},
		},
		Action: runDropServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runDropServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	serverConfig := parseDropConfig(c)
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	manifest, err := types.LoadCampaignManifest(serverConfig.CampaignFile)
	if err != nil {
		return err
	}

	campaignID, err := types.HexToCampaignID(manifest.CampaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign id in manifest: %w", err)
	}
	root := common.HexToHash(manifest.MerkleRoot)

	store, err := buildPersistence(serverConfig, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence health check failed: %w", err)
	}

	// TokenBank is a single-process custody engine; it starts empty and is
	// seeded below once we know whether this is a fresh campaign or a
	// resumed one.
	bank := transfer.NewTokenBank()

	dist := distributor.NewDistributor(distributor.Config{
		Logger: l,
		Events: distributor.LogSink{Logger: l},
	}, store, bank)

	// Resume the campaign if the store already has it, else initialize fresh
	if err := dist.Resume(campaignID); err != nil {
		if !errors.Is(err, distributor.ErrUninitialized) {
			return fmt.Errorf("failed to resume campaign: %w", err)
		}
		if err := dist.Initialize(root, campaignID, serverConfig.Authority()); err != nil {
			return fmt.Errorf("failed to initialize campaign: %w", err)
		}
		bank.Mint(serverConfig.Authority(), manifest.TotalAmount)
		l.Sugar().Infow("Initialized new campaign",
			"campaign_id", campaignID.Hex(),
			"merkle_root", root.Hex(),
			"entitlements", len(manifest.Entries),
			"total_amount", manifest.TotalAmount)
	} else {
		// Reconstruct the bank from the persisted campaign accounting:
		// custody already holds what was funded minus what was paid out,
		// and the authority keeps only the portion it never deposited.
		status, err := dist.Status()
		if err != nil {
			return fmt.Errorf("failed to read resumed campaign state: %w", err)
		}
		bank.MintCustody(status.CustodyBalance)
		if manifest.TotalAmount > status.TotalFunded {
			bank.Mint(serverConfig.Authority(), manifest.TotalAmount-status.TotalFunded)
		}
		l.Sugar().Infow("Resumed persisted campaign",
			"campaign_id", campaignID.Hex(),
			"custody_balance", status.CustodyBalance,
			"total_funded", status.TotalFunded,
			"total_claimed", status.TotalClaimed)
	}

	srv := server.NewServer(server.Config{
		Port:           serverConfig.Port,
		ClaimRateLimit: serverConfig.ClaimRateLimit,
		Logger:         l,
	}, dist)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Drop server running",
		"port", serverConfig.Port,
		"backend", serverConfig.Backend,
		"authority", serverConfig.AuthorityAddress)
	l.Sugar().Infow("Available endpoints",
		"fund", "POST /fund",
		"claim", "POST /claim",
		"status", "GET /status",
		"claim_status", "GET /claim/status")

	// Block until interrupted, then shut down cleanly
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	l.Sugar().Infow("Shutting down", "signal", sig.String())

	return srv.Stop()
}

func parseDropConfig(c *cli.Context) *config.DropServerConfig {
	cfg := &config.DropServerConfig{
		AuthorityAddress: c.String("authority-address"),
		Port:             c.Int("port"),
		CampaignFile:     c.String("campaign-file"),
		Backend:          config.BackendType(c.String("backend")),
		BadgerDir:        c.String("badger-dir"),
		ClaimRateLimit:   c.Float64("claim-rate-limit"),
		Debug:            c.Bool("verbose"),
		Verbose:          c.Bool("verbose"),
	}
	if addr := c.String("redis-addr"); addr != "" {
		cfg.Redis = &config.RedisConfig{
			Addr:     addr,
			Password: c.String("redis-password"),
		}
	}
	return cfg
}

func buildPersistence(cfg *config.DropServerConfig, l *zap.Logger) (persistence.IDistributorPersistence, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewMemoryPersistence(), nil
	case config.BackendBadger:
		return badger.NewBadgerPersistence(cfg.BadgerDir, l)
	case config.BackendRedis:
		return redispersistence.NewRedisPersistence(&redispersistence.RedisConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}
