package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "FEELEDGER"

type Config struct {
	Debug             bool
	LedgerConfig      LedgerConfig
	DatabaseConfig    DatabaseConfig
	EthereumRpcConfig EthereumRpcConfig
	RpcConfig         RpcConfig
	TokenConfig       TokenConfig
	MigrationConfig   MigrationConfig
	SnapshotConfig    SnapshotConfig
	PrometheusConfig  PrometheusConfig
	DataDogConfig     DataDogConfig
}

type LedgerConfig struct {
	GenesisBlock      uint64
	EpochDuration     uint64
	MinimumStake      string
	TreasuryWeight    string
	TreasuryAddress   string
	GovernanceAddress string
	FeeSourceAddress  string
	Paused            bool
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DbName      string
	SchemaName  string
	SSLMode     string
	SSLCert     string
	SSLKey      string
	SSLRootCert string
}

type EthereumRpcConfig struct {
	BaseUrl string
	// LocalBlockTime paces the local block counter used when BaseUrl is empty.
	LocalBlockTime time.Duration
}

type RpcConfig struct {
	HttpPort       int
	AllowedOrigins []string
}

type TokenConfig struct {
	FaucetBalance string
}

type MigrationConfig struct {
	BatchSize    int
	SourceDb     string
	ExportDir    string
	ImportDir    string
	DryRun       bool
	ShowProgress bool
}

type SnapshotConfig struct {
	OutputFile string
	InputFile  string
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

const (
	Debug = "debug"

	LedgerGenesisBlock      = "ledger.genesis-block"
	LedgerEpochDuration     = "ledger.epoch-duration"
	LedgerMinimumStake      = "ledger.minimum-stake"
	LedgerTreasuryWeight    = "ledger.treasury-weight"
	LedgerTreasuryAddress   = "ledger.treasury-address"
	LedgerGovernanceAddress = "ledger.governance-address"
	LedgerFeeSourceAddress  = "ledger.fee-source-address"
	LedgerPaused            = "ledger.paused"

	DatabaseHost        = "database.host"
	DatabasePort        = "database.port"
	DatabaseUser        = "database.user"
	DatabasePassword    = "database.password"
	DatabaseDbName      = "database.db-name"
	DatabaseSchemaName  = "database.schema-name"
	DatabaseSSLMode     = "database.ssl-mode"
	DatabaseSSLCert     = "database.ssl-cert"
	DatabaseSSLKey      = "database.ssl-key"
	DatabaseSSLRootCert = "database.ssl-root-cert"

	EthereumRpcBaseUrl        = "ethereum.rpc-url"
	EthereumRpcLocalBlockTime = "ethereum.local-block-time"

	RpcHttpPort       = "rpc.http-port"
	RpcAllowedOrigins = "rpc.allowed-origins"

	TokenFaucetBalance = "token.faucet-balance"

	MigrationBatchSize    = "migration.batch-size"
	MigrationSourceDb     = "migration.source-db-name"
	MigrationExportDir    = "migration.export-dir"
	MigrationImportDir    = "migration.import-dir"
	MigrationDryRun       = "migration.dry-run"
	MigrationShowProgress = "migration.show-progress"

	SnapshotOutputFile = "output-file"
	SnapshotInputFile  = "input-file"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"
)

func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		LedgerConfig: LedgerConfig{
			GenesisBlock:      viper.GetUint64(normalizeFlagName(LedgerGenesisBlock)),
			EpochDuration:     viper.GetUint64(normalizeFlagName(LedgerEpochDuration)),
			MinimumStake:      viper.GetString(normalizeFlagName(LedgerMinimumStake)),
			TreasuryWeight:    viper.GetString(normalizeFlagName(LedgerTreasuryWeight)),
			TreasuryAddress:   viper.GetString(normalizeFlagName(LedgerTreasuryAddress)),
			GovernanceAddress: viper.GetString(normalizeFlagName(LedgerGovernanceAddress)),
			FeeSourceAddress:  viper.GetString(normalizeFlagName(LedgerFeeSourceAddress)),
			Paused:            viper.GetBool(normalizeFlagName(LedgerPaused)),
		},

		DatabaseConfig: DatabaseConfig{
			Host:        viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:        viper.GetInt(normalizeFlagName(DatabasePort)),
			User:        viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:    viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:      viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName:  viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:     viper.GetString(normalizeFlagName(DatabaseSSLMode)),
			SSLCert:     viper.GetString(normalizeFlagName(DatabaseSSLCert)),
			SSLKey:      viper.GetString(normalizeFlagName(DatabaseSSLKey)),
			SSLRootCert: viper.GetString(normalizeFlagName(DatabaseSSLRootCert)),
		},

		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrl:        viper.GetString(normalizeFlagName(EthereumRpcBaseUrl)),
			LocalBlockTime: viper.GetDuration(normalizeFlagName(EthereumRpcLocalBlockTime)),
		},

		RpcConfig: RpcConfig{
			HttpPort:       viper.GetInt(normalizeFlagName(RpcHttpPort)),
			AllowedOrigins: viper.GetStringSlice(normalizeFlagName(RpcAllowedOrigins)),
		},

		TokenConfig: TokenConfig{
			FaucetBalance: viper.GetString(normalizeFlagName(TokenFaucetBalance)),
		},

		MigrationConfig: MigrationConfig{
			BatchSize:    viper.GetInt(normalizeFlagName(MigrationBatchSize)),
			SourceDb:     viper.GetString(normalizeFlagName(MigrationSourceDb)),
			ExportDir:    viper.GetString(normalizeFlagName(MigrationExportDir)),
			ImportDir:    viper.GetString(normalizeFlagName(MigrationImportDir)),
			DryRun:       viper.GetBool(normalizeFlagName(MigrationDryRun)),
			ShowProgress: viper.GetBool(normalizeFlagName(MigrationShowProgress)),
		},

		SnapshotConfig: SnapshotConfig{
			OutputFile: viper.GetString(normalizeFlagName(SnapshotOutputFile)),
			InputFile:  viper.GetString(normalizeFlagName(SnapshotInputFile)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},
	}
}

// ParseAmount parses a base-10 integer amount. An empty string is zero.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount '%s'", s)
	}
	return v, nil
}

// ParseAddress parses a hex address. An empty string is the zero address.
func ParseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address '%s'", s)
	}
	return common.HexToAddress(s), nil
}

func (c *LedgerConfig) Validate() error {
	if c.EpochDuration == 0 {
		return fmt.Errorf("%s must be greater than 0", LedgerEpochDuration)
	}
	if _, err := ParseAmount(c.MinimumStake); err != nil {
		return fmt.Errorf("%s: %w", LedgerMinimumStake, err)
	}
	if _, err := ParseAmount(c.TreasuryWeight); err != nil {
		return fmt.Errorf("%s: %w", LedgerTreasuryWeight, err)
	}
	for key, addr := range map[string]string{
		LedgerTreasuryAddress:   c.TreasuryAddress,
		LedgerGovernanceAddress: c.GovernanceAddress,
		LedgerFeeSourceAddress:  c.FeeSourceAddress,
	} {
		if _, err := ParseAddress(addr); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func normalizeFlagName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}
