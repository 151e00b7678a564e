package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "feeledger",
	Short: "Epoch-weighted stake reward ledger for a shared fee pool",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().Uint64(config.LedgerGenesisBlock, 0, `First block of epoch 1`)
	rootCmd.PersistentFlags().Uint64(config.LedgerEpochDuration, 0, `Number of blocks per epoch`)
	rootCmd.PersistentFlags().String(config.LedgerMinimumStake, "0", `Smallest amount a single stake may add`)
	rootCmd.PersistentFlags().String(config.LedgerTreasuryWeight, "0", `Nominal weight the treasury holds in every epoch`)
	rootCmd.PersistentFlags().String(config.LedgerTreasuryAddress, "", `Address that receives the treasury share`)
	rootCmd.PersistentFlags().String(config.LedgerGovernanceAddress, "", `Address allowed to run governance calls`)
	rootCmd.PersistentFlags().String(config.LedgerFeeSourceAddress, "", `Address allowed to deposit fees besides governance`)
	rootCmd.PersistentFlags().Bool(config.LedgerPaused, false, `Start with staking and harvesting paused`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "feeledger", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "feeledger", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL SSL mode (disable, require, verify-ca, verify-full)`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLCert, "", `PostgreSQL client certificate`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLKey, "", `PostgreSQL client key`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLRootCert, "", `PostgreSQL root certificate`)

	rootCmd.PersistentFlags().String(config.EthereumRpcBaseUrl, "", `e.g. "http://<hostname>:8545"; blocks are counted locally when empty`)
	rootCmd.PersistentFlags().Duration(config.EthereumRpcLocalBlockTime, 12*time.Second, `Time per block when counting blocks locally`)

	rootCmd.PersistentFlags().Int(config.RpcHttpPort, 7101, `http rpc port`)
	rootCmd.PersistentFlags().StringSlice(config.RpcAllowedOrigins, []string{}, `CORS origins allowed to call the http rpc (default every origin)`)

	rootCmd.PersistentFlags().String(config.TokenFaucetBalance, "0", `Opening token balance of every account in the in-memory bank`)

	rootCmd.PersistentFlags().Int(config.MigrationBatchSize, 500, `Number of entries copied per migration call`)
	rootCmd.PersistentFlags().Bool(config.MigrationDryRun, false, `Read the source ledger without writing to the target`)
	rootCmd.PersistentFlags().Bool(config.MigrationShowProgress, true, `Show progress bars while migrating`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runVersionCmd)
	rootCmd.AddCommand(runDatabaseCmd)
	rootCmd.AddCommand(exportLedgerCmd)
	rootCmd.AddCommand(importLedgerCmd)
	rootCmd.AddCommand(migrateLedgerCmd)
	rootCmd.AddCommand(createSnapshotCmd)
	rootCmd.AddCommand(restoreSnapshotCmd)

	// bind any subcommand flags
	exportLedgerCmd.PersistentFlags().String(config.MigrationExportDir, "", "Directory to write the ledger CSV files to (required)")
	importLedgerCmd.PersistentFlags().String(config.MigrationImportDir, "", "Directory to read the ledger CSV files from (required)")
	migrateLedgerCmd.PersistentFlags().String(config.MigrationSourceDb, "", "Database holding the ledger to copy from (required)")
	createSnapshotCmd.PersistentFlags().String(config.SnapshotOutputFile, "", "Path to save the snapshot file to (required)")
	restoreSnapshotCmd.PersistentFlags().String(config.SnapshotInputFile, "", "Path to the snapshot file (required)")
	restoreSnapshotCmd.PersistentFlags().Bool(snapshotSkipHashCheck, false, "Restore even when the snapshot has no matching .sha256 file")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// bindCommandFlags binds the flags declared on a single sub command.
func bindCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
