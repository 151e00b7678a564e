package sqlite

import (
	"database/sql"

	"github.com/Layr-Labs/feeledger/internal/config"
	sqlite2 "github.com/Layr-Labs/feeledger/internal/sqlite"
	"github.com/Layr-Labs/feeledger/pkg/postgres/migrations"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetInMemorySqliteDatabaseConnection opens a private in-memory database with
// every ledger migration applied.
func GetInMemorySqliteDatabaseConnection(l *zap.Logger) (*sql.DB, *gorm.DB, error) {
	grm, err := sqlite2.NewGormSqliteFromSqlite(sqlite2.NewSqlite(sqlite2.InMemoryPath(uuid.NewString())))
	if err != nil {
		return nil, nil, err
	}
	db, err := grm.DB()
	if err != nil {
		return nil, nil, err
	}
	// keep one connection open so the in-memory database outlives idle pools
	db.SetMaxIdleConns(1)

	migrator := migrations.NewMigrator(db, grm, l, config.NewConfig())
	if err := migrator.MigrateAll(); err != nil {
		return nil, nil, err
	}
	return db, grm, nil
}
