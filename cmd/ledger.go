package cmd

import (
	"fmt"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/metrics"
	"github.com/Layr-Labs/feeledger/internal/metrics/prometheus"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/clients/ethereum"
	"github.com/Layr-Labs/feeledger/pkg/eventBus"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/Layr-Labs/feeledger/pkg/postgres"
	"github.com/Layr-Labs/feeledger/pkg/postgres/migrations"
	storagePostgres "github.com/Layr-Labs/feeledger/pkg/storage/postgres"
	"github.com/Layr-Labs/feeledger/pkg/token"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// openDatabase connects to dbName, creating it if needed, and brings its
// schema up to date.
func openDatabase(cfg *config.Config, dbName string, l *zap.Logger) (*gorm.DB, error) {
	pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.DbName = dbName
	pgConfig.CreateDbIfNotExists = true

	pg, err := postgres.NewPostgres(pgConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to setup postgres connection: %w", err)
	}

	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, fmt.Errorf("failed to create gorm instance: %w", err)
	}

	migrator := migrations.NewMigrator(pg.Db, grm, l, cfg)
	if err = migrator.MigrateAll(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return grm, nil
}

func ledgerParamsFromConfig(cfg *config.LedgerConfig) (*ledger.Params, *access.StaticGuard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	// Validate has already checked every value below
	minimumStake, _ := config.ParseAmount(cfg.MinimumStake)
	treasuryWeight, _ := config.ParseAmount(cfg.TreasuryWeight)
	treasury, _ := config.ParseAddress(cfg.TreasuryAddress)
	governance, _ := config.ParseAddress(cfg.GovernanceAddress)
	feeSource, _ := config.ParseAddress(cfg.FeeSourceAddress)

	guard := access.NewStaticGuard(governance, feeSource)
	guard.SetPaused(cfg.Paused)

	return &ledger.Params{
		GenesisBlock:    cfg.GenesisBlock,
		EpochDuration:   cfg.EpochDuration,
		MinimumStake:    minimumStake,
		TreasuryWeight:  treasuryWeight,
		TreasuryAddress: treasury,
	}, guard, nil
}

func newMetricsSink(cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, *prometheus.PrometheusMetricsClient, error) {
	clients, pm, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup metrics sink: %w", err)
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, clients)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup metrics sink: %w", err)
	}
	return sink, pm, nil
}

func newBlockSource(cfg *config.Config, l *zap.Logger) ethereum.BlockSource {
	if cfg.EthereumRpcConfig.BaseUrl == "" {
		l.Sugar().Warnw("No ethereum rpc url configured, counting blocks locally",
			zap.Duration("blockTime", cfg.EthereumRpcConfig.LocalBlockTime),
		)
		return ethereum.NewTickingBlockSource(cfg.LedgerConfig.GenesisBlock, cfg.EthereumRpcConfig.LocalBlockTime)
	}
	return ethereum.NewClient(ethereum.ConvertGlobalConfigToEthereumConfig(&cfg.EthereumRpcConfig), l)
}

// openLedgerService restores the ledger held in grm and starts a service on
// it. The in-memory bank starts out holding everything the ledger owes.
func openLedgerService(
	cfg *config.Config,
	grm *gorm.DB,
	blocks ethereum.BlockSource,
	sink *metrics.MetricsSink,
	l *zap.Logger,
) (*ledgerService.Service, error) {
	params, guard, err := ledgerParamsFromConfig(&cfg.LedgerConfig)
	if err != nil {
		return nil, err
	}

	store := storagePostgres.NewPostgresLedgerStore(grm, l)
	lg, err := ledgerService.OpenLedger(params, guard, store, l)
	if err != nil {
		return nil, err
	}

	faucet, err := config.ParseAmount(cfg.TokenConfig.FaucetBalance)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.TokenFaucetBalance, err)
	}
	bank := token.NewMemoryBank(l)
	bank.Faucet = faucet
	bank.Fund(lg.Liabilities())

	svc := ledgerService.NewService(lg, store, bank, blocks, eventBus.NewEventBus(l), sink, l)
	svc.Start()
	return svc, nil
}
