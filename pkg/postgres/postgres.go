package postgres

import (
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultSSLMode = "disable"
	maintenanceDb  = "postgres"
)

var validSSLModes = []string{
	"disable",
	"require",
	"verify-ca",
	"verify-full",
}

type PostgresConfig struct {
	Host                string
	Port                int
	Username            string
	Password            string
	DbName              string
	CreateDbIfNotExists bool
	SchemaName          string
	SSLMode             string
	SSLCert             string
	SSLKey              string
	SSLRootCert         string
}

type Postgres struct {
	Db *sql.DB
}

func PostgresConfigFromDbConfig(dbCfg *config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:        dbCfg.Host,
		Port:        dbCfg.Port,
		Username:    dbCfg.User,
		Password:    dbCfg.Password,
		DbName:      dbCfg.DbName,
		SchemaName:  dbCfg.SchemaName,
		SSLMode:     dbCfg.SSLMode,
		SSLCert:     dbCfg.SSLCert,
		SSLKey:      dbCfg.SSLKey,
		SSLRootCert: dbCfg.SSLRootCert,
	}
}

// connectionString renders cfg as a libpq keyword/value string for dbName.
func connectionString(cfg *PostgresConfig, dbName string) (string, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	if !slices.Contains(validSSLModes, sslMode) {
		return "", fmt.Errorf("invalid ssl mode: %s. Must be one of: %s", sslMode, strings.Join(validSSLModes, ", "))
	}

	parts := []string{"host=" + cfg.Host}
	if cfg.Username != "" {
		parts = append(parts, "user="+cfg.Username)
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	parts = append(parts,
		"dbname="+dbName,
		fmt.Sprintf("port=%d", cfg.Port),
		"sslmode="+sslMode,
		"TimeZone=UTC",
	)

	if sslMode != defaultSSLMode {
		for _, kv := range [][2]string{
			{"sslcert", cfg.SSLCert},
			{"sslkey", cfg.SSLKey},
			{"sslrootcert", cfg.SSLRootCert},
		} {
			if kv[1] != "" {
				parts = append(parts, kv[0]+"="+kv[1])
			}
		}
	}
	if cfg.SchemaName != "" {
		parts = append(parts, "search_path="+cfg.SchemaName)
	}
	return strings.Join(parts, " "), nil
}

// withMaintenanceDb runs fn on a short-lived connection to the server's
// maintenance database.
func withMaintenanceDb(cfg *PostgresConfig, fn func(db *sql.DB) error) error {
	connStr, err := connectionString(cfg, maintenanceDb)
	if err != nil {
		return fmt.Errorf("failed to create postgres connection string: %w", err)
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("error connecting to postgres database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

// EnsureDatabase creates cfg.DbName unless it already exists.
func EnsureDatabase(cfg *PostgresConfig) error {
	return withMaintenanceDb(cfg, func(db *sql.DB) error {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1)`, cfg.DbName).Scan(&exists)
		if err != nil {
			return fmt.Errorf("error checking if database exists: %w", err)
		}
		if exists {
			return nil
		}
		if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.DbName)); err != nil {
			return fmt.Errorf("error creating database: %w", err)
		}
		return nil
	})
}

// DropDatabase removes dbName from the server cfg points at.
func DropDatabase(cfg *PostgresConfig, dbName string) error {
	return withMaintenanceDb(cfg, func(db *sql.DB) error {
		if _, err := db.Exec("DROP DATABASE IF EXISTS " + pq.QuoteIdentifier(dbName)); err != nil {
			return fmt.Errorf("error dropping database: %w", err)
		}
		return nil
	})
}

func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	if cfg.CreateDbIfNotExists {
		if err := EnsureDatabase(cfg); err != nil {
			return nil, fmt.Errorf("failed to create database if not exists: %w", err)
		}
	}
	connStr, err := connectionString(cfg, cfg.DbName)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection string: %w", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	return &Postgres{Db: db}, nil
}

func NewGormFromPostgresConnection(pgDb *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: pgDb,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup gorm: %w", err)
	}
	return db, nil
}

var duplicateKeyPattern = regexp.MustCompile(`duplicate key value violates unique constraint|UNIQUE constraint failed`)

// IsDuplicateKeyError matches unique violations from both postgres and sqlite.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return duplicateKeyPattern.MatchString(err.Error())
}
