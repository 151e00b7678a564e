package postgres

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	pkgErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const globalsRowId = 1

// rows are read back in pages so restoring a long history never holds the
// whole table in one result set
const loadPageSize = 5000

type PostgresLedgerStore struct {
	Db     *gorm.DB
	Logger *zap.Logger
}

func NewPostgresLedgerStore(db *gorm.DB, l *zap.Logger) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		Db:     db,
		Logger: l,
	}
}

func toDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

func toBig(d decimal.Decimal) *big.Int {
	return d.BigInt()
}

func (s *PostgresLedgerStore) LoadParams() (*ledger.Params, bool, error) {
	var globals storage.LedgerGlobals
	res := s.Db.Model(&storage.LedgerGlobals{}).Where("id = ?", globalsRowId).First(&globals)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgErrors.Wrap(res.Error, "failed to load ledger globals")
	}
	return &ledger.Params{
		GenesisBlock:    globals.GenesisBlock,
		EpochDuration:   globals.EpochDuration,
		MinimumStake:    toBig(globals.MinimumStake),
		TreasuryWeight:  toBig(globals.TreasuryWeight),
		TreasuryAddress: common.HexToAddress(globals.TreasuryAddress),
	}, true, nil
}

func (s *PostgresLedgerStore) SaveParams(params *ledger.Params, treasuryLastClaimedEpoch uint64) error {
	return s.saveGlobals(s.Db, params, treasuryLastClaimedEpoch, 0)
}

func (s *PostgresLedgerStore) saveGlobals(tx *gorm.DB, params *ledger.Params, treasuryLastClaimedEpoch uint64, latestCallEpoch uint64) error {
	globals := &storage.LedgerGlobals{
		Id:                       globalsRowId,
		GenesisBlock:             params.GenesisBlock,
		EpochDuration:            params.EpochDuration,
		MinimumStake:             toDecimal(params.MinimumStake),
		TreasuryWeight:           toDecimal(params.TreasuryWeight),
		TreasuryAddress:          params.TreasuryAddress.Hex(),
		TreasuryLastClaimedEpoch: treasuryLastClaimedEpoch,
		LatestCallEpoch:          latestCallEpoch,
	}
	res := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(globals)
	if res.Error != nil {
		return pkgErrors.Wrap(res.Error, "failed to save ledger globals")
	}
	return nil
}

// Load reads every table in ascending epoch order and restores it into l.
func (s *PostgresLedgerStore) Load(l *ledger.Ledger) error {
	var globals storage.LedgerGlobals
	res := s.Db.Model(&storage.LedgerGlobals{}).Where("id = ?", globalsRowId).Limit(1).Find(&globals)
	if res.Error != nil {
		return pkgErrors.Wrap(res.Error, "failed to load ledger globals")
	}
	if res.RowsAffected > 0 {
		l.RestoreTreasuryLastClaimedEpoch(globals.TreasuryLastClaimedEpoch)
		l.RestoreLatestCallEpoch(globals.LatestCallEpoch)
	}

	err := loadPages(s.Db, "epoch asc", func(rows []*storage.RewardBucket) {
		for _, b := range rows {
			l.RestoreRewardBucket(b.Epoch, toBig(b.Amount))
		}
	})
	if err != nil {
		return pkgErrors.Wrap(err, "failed to load reward buckets")
	}

	err = loadPages(s.Db, "epoch asc", func(rows []*storage.TotalWeightSnapshot) {
		for _, t := range rows {
			l.RestoreTotalWeight(t.Epoch, toBig(t.Weight))
		}
	})
	if err != nil {
		return pkgErrors.Wrap(err, "failed to load total weight snapshots")
	}

	err = loadPages(s.Db, "address asc", func(rows []*storage.Participant) {
		for _, p := range rows {
			l.RestoreParticipant(common.HexToAddress(p.Address), &ledger.ParticipantRecord{
				Principal:        toBig(p.Principal),
				Weight:           toBig(p.Weight),
				LastStakeBlock:   p.LastStakeBlock,
				LastClaimedBlock: p.LastClaimedBlock,
			})
		}
	})
	if err != nil {
		return pkgErrors.Wrap(err, "failed to load participants")
	}

	err = loadPages(s.Db, "participant asc, epoch asc", func(rows []*storage.ParticipantWeightSnapshot) {
		for _, sn := range rows {
			l.RestoreParticipantWeight(common.HexToAddress(sn.Participant), sn.Epoch, toBig(sn.Weight))
		}
	})
	if err != nil {
		return pkgErrors.Wrap(err, "failed to load participant weight snapshots")
	}

	err = loadPages(s.Db, "participant asc", func(rows []*storage.ClaimedTotal) {
		for _, c := range rows {
			l.RestoreClaimedTotal(common.HexToAddress(c.Participant), toBig(c.Amount))
		}
	})
	if err != nil {
		return pkgErrors.Wrap(err, "failed to load claimed totals")
	}

	s.Logger.Sugar().Infow("Loaded ledger from database",
		zap.Int("participants", l.ParticipantCount()),
		zap.Uint64("latestEpoch", l.LatestEpoch()),
	)
	return nil
}

func loadPages[T any](db *gorm.DB, order string, fn func(rows []*T)) error {
	for offset := 0; ; offset += loadPageSize {
		rows := make([]*T, 0)
		res := db.Model(new(T)).Order(order).Limit(loadPageSize).Offset(offset).Find(&rows)
		if res.Error != nil {
			return res.Error
		}
		fn(rows)
		if len(rows) < loadPageSize {
			return nil
		}
	}
}

func (s *PostgresLedgerStore) Transaction(fn func(tx *gorm.DB) error) error {
	return s.Db.Transaction(fn)
}

// Persist upserts every row named by changes with its current value in l. A
// key that no longer has an entry in l is deleted.
func (s *PostgresLedgerStore) Persist(tx *gorm.DB, l *ledger.Ledger, changes *ledger.Changes) error {
	if changes.IsEmpty() {
		return nil
	}
	if changes.Globals {
		if err := s.saveGlobals(tx, l.Params(), l.TreasuryLastClaimedEpoch(), l.LatestCallEpoch()); err != nil {
			return err
		}
	}

	for _, e := range changes.RewardBuckets {
		amount, ok := l.RewardBucketEntry(e)
		var res *gorm.DB
		if ok {
			res = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&storage.RewardBucket{Epoch: e, Amount: toDecimal(amount)})
		} else {
			res = tx.Where("epoch = ?", e).Delete(&storage.RewardBucket{})
		}
		if res.Error != nil {
			return pkgErrors.Wrapf(res.Error, "failed to persist reward bucket for epoch %d", e)
		}
	}

	for _, e := range changes.TotalWeights {
		weight, ok := l.TotalWeightEntry(e)
		var res *gorm.DB
		if ok {
			res = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&storage.TotalWeightSnapshot{Epoch: e, Weight: toDecimal(weight)})
		} else {
			res = tx.Where("epoch = ?", e).Delete(&storage.TotalWeightSnapshot{})
		}
		if res.Error != nil {
			return pkgErrors.Wrapf(res.Error, "failed to persist total weight for epoch %d", e)
		}
	}

	for _, addr := range changes.Participants {
		rec, ok := l.Participant(addr)
		var res *gorm.DB
		if ok {
			res = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&storage.Participant{
				Address:          addr.Hex(),
				Principal:        toDecimal(rec.Principal),
				Weight:           toDecimal(rec.Weight),
				LastStakeBlock:   rec.LastStakeBlock,
				LastClaimedBlock: rec.LastClaimedBlock,
			})
		} else {
			res = tx.Where("address = ?", addr.Hex()).Delete(&storage.Participant{})
		}
		if res.Error != nil {
			return pkgErrors.Wrapf(res.Error, "failed to persist participant %s", addr.Hex())
		}
	}

	for _, key := range changes.ParticipantSnapshots {
		weight, ok := l.ParticipantWeightEntry(key.Participant, key.Epoch)
		var res *gorm.DB
		if ok {
			res = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&storage.ParticipantWeightSnapshot{
				Participant: key.Participant.Hex(),
				Epoch:       key.Epoch,
				Weight:      toDecimal(weight),
			})
		} else {
			res = tx.Where("participant = ? and epoch = ?", key.Participant.Hex(), key.Epoch).
				Delete(&storage.ParticipantWeightSnapshot{})
		}
		if res.Error != nil {
			return pkgErrors.Wrapf(res.Error, "failed to persist weight of %s at epoch %d", key.Participant.Hex(), key.Epoch)
		}
	}

	for _, addr := range changes.ClaimedTotals {
		amount, ok := l.ClaimedTotalEntry(addr)
		var res *gorm.DB
		if ok {
			res = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&storage.ClaimedTotal{Participant: addr.Hex(), Amount: toDecimal(amount)})
		} else {
			res = tx.Where("participant = ?", addr.Hex()).Delete(&storage.ClaimedTotal{})
		}
		if res.Error != nil {
			return pkgErrors.Wrapf(res.Error, "failed to persist claimed total of %s", addr.Hex())
		}
	}
	return nil
}

func (s *PostgresLedgerStore) InsertEvents(tx *gorm.DB, callId string, events []*ledger.Event) ([]*storage.LedgerEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	records := make([]*storage.LedgerEvent, 0, len(events))
	for i, e := range events {
		records = append(records, &storage.LedgerEvent{
			CallId:      callId,
			LogIndex:    uint64(i),
			Name:        string(e.Name),
			Participant: e.Participant.Hex(),
			Amount:      toDecimal(e.Amount),
			Epoch:       e.Epoch,
			BlockNumber: e.Block,
			FromEpoch:   e.FromEpoch,
			ToEpoch:     e.ToEpoch,
		})
	}
	res := tx.Model(&storage.LedgerEvent{}).Create(&records)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert events for call '%s': %w", callId, res.Error)
	}
	return records, nil
}

// ListEvents returns the most recent events of a participant, newest first.
// An empty participant lists events of every participant.
func (s *PostgresLedgerStore) ListEvents(participant string, limit int) ([]*storage.LedgerEvent, error) {
	events := make([]*storage.LedgerEvent, 0)
	query := s.Db.Model(&storage.LedgerEvent{})
	if participant != "" {
		query = query.Where("participant = ?", common.HexToAddress(participant).Hex())
	}
	res := query.Order("block_number desc, created_at desc, log_index desc").Limit(limit).Find(&events)
	if res.Error != nil {
		return nil, pkgErrors.Wrap(res.Error, "failed to list ledger events")
	}
	return events, nil
}
