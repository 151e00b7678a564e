package cmd

import (
	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Create the ledger database and run its migrations",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		if _, err := openDatabase(cfg, cfg.DatabaseConfig.DbName, l); err != nil {
			l.Sugar().Fatalw("Failed to prepare database", zap.Error(err))
		}
		l.Sugar().Infow("Database is up to date", zap.String("database", cfg.DatabaseConfig.DbName))
	},
}
