package _202610190930_ledgerEvents

import (
	"database/sql"

	"github.com/Layr-Labs/feeledger/internal/config"
	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			call_id      varchar not null,
			log_index    bigint not null,
			name         varchar not null,
			participant  varchar not null,
			amount       numeric not null,
			epoch        bigint not null,
			block_number bigint not null,
			from_epoch   bigint not null default 0,
			to_epoch     bigint not null default 0,
			created_at   timestamp with time zone default current_timestamp,
			primary key (call_id, log_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_participant ON ledger_events (participant, block_number)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_name ON ledger_events (name)`,
	}
	for _, query := range queries {
		res := grm.Exec(query)
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610190930_ledgerEvents"
}
