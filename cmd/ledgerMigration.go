package cmd

import (
	"context"
	"errors"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerMigrator"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportLedgerCmd = &cobra.Command{
	Use:   "export-ledger",
	Short: "Write the ledger to a directory of CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()
		if cfg.MigrationConfig.ExportDir == "" {
			return errors.New("export directory i.e. `migration.export-dir` must be specified")
		}

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "export"})

		source, err := openMigrationService(cfg, cfg.DatabaseConfig.DbName, l)
		if err != nil {
			return err
		}
		defer source.Close()

		target, err := ledgerMigrator.NewCsvTarget(cfg.MigrationConfig.ExportDir)
		if err != nil {
			return err
		}
		return runMigration(cmd.Context(), cfg, source, target, l)
	},
}

var importLedgerCmd = &cobra.Command{
	Use:   "import-ledger",
	Short: "Load a ledger exported with export-ledger into this database",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()
		if cfg.MigrationConfig.ImportDir == "" {
			return errors.New("import directory i.e. `migration.import-dir` must be specified")
		}

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "import"})

		source, err := ledgerMigrator.NewCsvSource(cfg.MigrationConfig.ImportDir)
		if err != nil {
			return err
		}

		target, err := openMigrationService(cfg, cfg.DatabaseConfig.DbName, l)
		if err != nil {
			return err
		}
		defer target.Close()

		return runMigration(cmd.Context(), cfg, source, governanceTarget(cfg, target), l)
	},
}

var migrateLedgerCmd = &cobra.Command{
	Use:   "migrate-ledger",
	Short: "Copy the ledger held in another database into this one",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()
		if cfg.MigrationConfig.SourceDb == "" {
			return errors.New("source database i.e. `migration.source-db-name` must be specified")
		}
		if cfg.MigrationConfig.SourceDb == cfg.DatabaseConfig.DbName {
			return errors.New("source and target database must differ")
		}

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "migrate"})

		source, err := openMigrationService(cfg, cfg.MigrationConfig.SourceDb, l)
		if err != nil {
			return err
		}
		defer source.Close()

		target, err := openMigrationService(cfg, cfg.DatabaseConfig.DbName, l)
		if err != nil {
			return err
		}
		defer target.Close()

		return runMigration(cmd.Context(), cfg, source, governanceTarget(cfg, target), l)
	},
}

func openMigrationService(cfg *config.Config, dbName string, l *zap.Logger) (*ledgerService.Service, error) {
	sink, _, err := newMetricsSink(cfg, l)
	if err != nil {
		return nil, err
	}
	grm, err := openDatabase(cfg, dbName, l)
	if err != nil {
		return nil, err
	}
	return openLedgerService(cfg, grm, newBlockSource(cfg, l), sink, l)
}

func governanceTarget(cfg *config.Config, svc *ledgerService.Service) *ledgerMigrator.ServiceTarget {
	// checked by config validation when the service was opened
	governance, _ := config.ParseAddress(cfg.LedgerConfig.GovernanceAddress)
	return &ledgerMigrator.ServiceTarget{Service: svc, Caller: governance}
}

func runMigration(
	ctx context.Context,
	cfg *config.Config,
	source ledgerMigrator.Source,
	target ledgerMigrator.Target,
	l *zap.Logger,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	migrator := ledgerMigrator.NewMigrator(&ledgerMigrator.MigratorConfig{
		BatchSize:    cfg.MigrationConfig.BatchSize,
		DryRun:       cfg.MigrationConfig.DryRun,
		ShowProgress: cfg.MigrationConfig.ShowProgress,
	}, l)

	summary, err := migrator.Run(ctx, source, target)
	if err != nil {
		l.Sugar().Errorw("Migration failed", zap.Error(err))
		return err
	}
	l.Sugar().Infow("Migration complete",
		zap.Uint64("epochs", summary.Epochs),
		zap.Int("participants", summary.Participants),
		zap.Int("snapshotEpochs", summary.SnapshotEpochs),
		zap.Int("snapshotEntries", summary.SnapshotEntries),
	)
	return nil
}
