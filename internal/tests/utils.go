package tests

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/google/uuid"
)

func GetConfig() *config.Config {
	return config.NewConfig()
}

func getEnv(key string, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// GetDbConfigFromEnv reads the test database settings from FEELEDGER_DATABASE_* variables.
func GetDbConfigFromEnv() *config.DatabaseConfig {
	port, err := strconv.Atoi(getEnv("FEELEDGER_DATABASE_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return &config.DatabaseConfig{
		Host:     getEnv("FEELEDGER_DATABASE_HOST", "localhost"),
		Port:     port,
		User:     getEnv("FEELEDGER_DATABASE_USER", ""),
		Password: getEnv("FEELEDGER_DATABASE_PASSWORD", ""),
	}
}

func GenerateTestDbName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("test_%s", strings.ReplaceAll(id.String(), "-", "")), nil
}
