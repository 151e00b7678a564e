package storage

import (
	"time"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerStore interface {
	// LoadParams returns the persisted ledger parameters, or false when the
	// database holds no ledger yet.
	LoadParams() (*ledger.Params, bool, error)
	// SaveParams writes the ledger globals row.
	SaveParams(params *ledger.Params, treasuryLastClaimedEpoch uint64) error
	// Load restores every persisted row into a freshly constructed ledger.
	Load(l *ledger.Ledger) error

	// Transaction runs fn in a single database transaction.
	Transaction(fn func(tx *gorm.DB) error) error
	// Persist writes the rows named by changes, read from l, using tx.
	Persist(tx *gorm.DB, l *ledger.Ledger, changes *ledger.Changes) error
	InsertEvents(tx *gorm.DB, callId string, events []*ledger.Event) ([]*LedgerEvent, error)

	ListEvents(participant string, limit int) ([]*LedgerEvent, error)
}

// Tables.
type LedgerGlobals struct {
	Id                       uint64 `gorm:"primaryKey;autoIncrement:false"`
	GenesisBlock             uint64
	EpochDuration            uint64
	MinimumStake             decimal.Decimal `gorm:"type:numeric"`
	TreasuryWeight           decimal.Decimal `gorm:"type:numeric"`
	TreasuryAddress          string
	TreasuryLastClaimedEpoch uint64
	LatestCallEpoch          uint64
	UpdatedAt                time.Time
}

func (LedgerGlobals) TableName() string {
	return "ledger_globals"
}

type RewardBucket struct {
	Epoch  uint64          `gorm:"primaryKey;autoIncrement:false"`
	Amount decimal.Decimal `gorm:"type:numeric"`
}

type TotalWeightSnapshot struct {
	Epoch  uint64          `gorm:"primaryKey;autoIncrement:false"`
	Weight decimal.Decimal `gorm:"type:numeric"`
}

type Participant struct {
	Address          string          `gorm:"primaryKey"`
	Principal        decimal.Decimal `gorm:"type:numeric"`
	Weight           decimal.Decimal `gorm:"type:numeric"`
	LastStakeBlock   uint64
	LastClaimedBlock uint64
}

type ParticipantWeightSnapshot struct {
	Participant string          `gorm:"primaryKey"`
	Epoch       uint64          `gorm:"primaryKey;autoIncrement:false"`
	Weight      decimal.Decimal `gorm:"type:numeric"`
}

type ClaimedTotal struct {
	Participant string          `gorm:"primaryKey"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
}

type LedgerEvent struct {
	CallId      string `gorm:"primaryKey"`
	LogIndex    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name        string
	Participant string
	Amount      decimal.Decimal `gorm:"type:numeric"`
	Epoch       uint64
	BlockNumber uint64
	FromEpoch   uint64
	ToEpoch     uint64
	CreatedAt   time.Time
}
