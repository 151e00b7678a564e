package _202610201000_latestCallEpoch

import (
	"database/sql"

	"github.com/Layr-Labs/feeledger/internal/config"
	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	query := `ALTER TABLE ledger_globals ADD COLUMN latest_call_epoch bigint not null default 0`
	if res := grm.Exec(query); res.Error != nil {
		return res.Error
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610201000_latestCallEpoch"
}
