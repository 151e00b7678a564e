package cmd

import (
	"fmt"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/pkg/snapshot"
	"github.com/spf13/cobra"
)

var createSnapshotCmd = &cobra.Command{
	Use:   "create-snapshot",
	Short: "Create a snapshot of the ledger database",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		svc, err := snapshot.NewSnapshotService(snapshotConfig(cfg), l)
		if err != nil {
			return err
		}
		if err := svc.CreateSnapshot(); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	},
}

func snapshotConfig(cfg *config.Config) *snapshot.SnapshotConfig {
	return &snapshot.SnapshotConfig{
		OutputFile: cfg.SnapshotConfig.OutputFile,
		InputFile:  cfg.SnapshotConfig.InputFile,
		Host:       cfg.DatabaseConfig.Host,
		Port:       cfg.DatabaseConfig.Port,
		User:       cfg.DatabaseConfig.User,
		Password:   cfg.DatabaseConfig.Password,
		DbName:     cfg.DatabaseConfig.DbName,
		SchemaName: cfg.DatabaseConfig.SchemaName,
	}
}
