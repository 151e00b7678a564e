package _202610190900_ledgerTables

import (
	"database/sql"

	"github.com/Layr-Labs/feeledger/internal/config"
	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ledger_globals (
			id                          bigint primary key,
			genesis_block               bigint not null,
			epoch_duration              bigint not null,
			minimum_stake               numeric not null default 0,
			treasury_weight             numeric not null default 0,
			treasury_address            varchar not null,
			treasury_last_claimed_epoch bigint not null default 0,
			updated_at                  timestamp with time zone default current_timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS reward_buckets (
			epoch  bigint primary key,
			amount numeric not null
		)`,
		`CREATE TABLE IF NOT EXISTS total_weight_snapshots (
			epoch  bigint primary key,
			weight numeric not null
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
			address            varchar primary key,
			principal          numeric not null,
			weight             numeric not null,
			last_stake_block   bigint not null,
			last_claimed_block bigint not null
		)`,
		`CREATE TABLE IF NOT EXISTS participant_weight_snapshots (
			participant varchar not null,
			epoch       bigint not null,
			weight      numeric not null,
			primary key (participant, epoch)
		)`,
		`CREATE TABLE IF NOT EXISTS claimed_totals (
			participant varchar primary key,
			amount      numeric not null
		)`,
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
	return "202610190900_ledgerTables"
}
