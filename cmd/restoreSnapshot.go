package cmd

import (
	"fmt"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/pkg/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const snapshotSkipHashCheck = "skip-hash-check"

var restoreSnapshotCmd = &cobra.Command{
	Use:   "restore-snapshot",
	Short: "Restore the ledger database from a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		snapshotCfg := snapshotConfig(cfg)
		snapshotCfg.SkipHashCheck = viper.GetBool(config.KebabToSnakeCase(snapshotSkipHashCheck))

		svc, err := snapshot.NewSnapshotService(snapshotCfg, l)
		if err != nil {
			return err
		}
		if err := svc.RestoreSnapshot(); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		return nil
	},
}
