package postgres

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/feeledger/internal/logger"
	sqliteTests "github.com/Layr-Labs/feeledger/internal/tests/sqlite"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func setup(t *testing.T) (*PostgresLedgerStore, *zap.Logger) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.Nil(t, err)

	_, grm, err := sqliteTests.GetInMemorySqliteDatabaseConnection(l)
	require.Nil(t, err)
	return NewPostgresLedgerStore(grm, l), l
}

func params() *ledger.Params {
	return &ledger.Params{
		GenesisBlock:    0,
		EpochDuration:   1000,
		MinimumStake:    big.NewInt(1),
		TreasuryWeight:  big.NewInt(0),
		TreasuryAddress: treasury,
	}
}

func newLedger(l *zap.Logger, p *ledger.Params) *ledger.Ledger {
	return ledger.NewLedger(p, access.NewStaticGuard(governance), l)
}

// commit persists everything written since the last commit.
func commit(t *testing.T, store *PostgresLedgerStore, lg *ledger.Ledger) {
	changes := lg.Commit()
	err := store.Transaction(func(tx *gorm.DB) error {
		return store.Persist(tx, lg, changes)
	})
	require.Nil(t, err)
}

func Test_PostgresLedgerStore(t *testing.T) {
	t.Run("Should report a missing ledger", func(t *testing.T) {
		store, _ := setup(t)
		p, found, err := store.LoadParams()
		assert.Nil(t, err)
		assert.False(t, found)
		assert.Nil(t, p)
	})
	t.Run("Should save and load params", func(t *testing.T) {
		store, _ := setup(t)
		want := params()
		want.TreasuryWeight = big.NewInt(25)
		require.Nil(t, store.SaveParams(want, 4))

		got, found, err := store.LoadParams()
		assert.Nil(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(1000), got.EpochDuration)
		assert.Equal(t, "25", got.TreasuryWeight.String())
		assert.Equal(t, treasury, got.TreasuryAddress)

		require.Nil(t, store.SaveParams(params(), 5))
		got, _, err = store.LoadParams()
		assert.Nil(t, err)
		assert.Equal(t, "0", got.TreasuryWeight.String())
	})
	t.Run("Should restore a ledger that pays exactly what the original pays", func(t *testing.T) {
		store, l := setup(t)
		require.Nil(t, store.SaveParams(params(), 0))

		original := newLedger(l, params())
		_, err := original.Stake(ledger.Call{Caller: alice, Block: 100}, big.NewInt(70))
		require.Nil(t, err)
		_, err = original.Stake(ledger.Call{Caller: bob, Block: 200}, big.NewInt(30))
		require.Nil(t, err)
		_, err = original.DepositFees(ledger.Call{Caller: governance, Block: 1100}, big.NewInt(1001))
		require.Nil(t, err)
		commit(t, store, original)

		_, err = original.HarvestAll(ledger.Call{Caller: bob, Block: 2100})
		require.Nil(t, err)
		_, err = original.DaoHarvestPaginated(ledger.Call{Caller: governance, Block: 2100}, 2)
		require.Nil(t, err)
		_, err = original.Stake(ledger.Call{Caller: alice, Block: 2500}, big.NewInt(50))
		require.Nil(t, err)
		_, err = original.DepositFees(ledger.Call{Caller: governance, Block: 3100}, big.NewInt(333))
		require.Nil(t, err)
		commit(t, store, original)

		loadedParams, found, err := store.LoadParams()
		require.Nil(t, err)
		require.True(t, found)
		restored := newLedger(l, loadedParams)
		require.Nil(t, store.Load(restored))

		assert.Equal(t, original.ParticipantCount(), restored.ParticipantCount())
		assert.Equal(t, original.TreasuryLastClaimedEpoch(), restored.TreasuryLastClaimedEpoch())
		assert.Equal(t, uint64(4), restored.LatestCallEpoch())
		for e := uint64(1); e <= 6; e++ {
			assert.Equal(t, original.TotalWeightAt(e).String(), restored.TotalWeightAt(e).String(), "epoch %d", e)
			assert.Equal(t, original.RewardBucket(e).String(), restored.RewardBucket(e).String(), "epoch %d", e)
			ok, _, _ := restored.CheckWeightClosure(e)
			assert.True(t, ok, "epoch %d", e)
		}
		for _, addr := range []common.Address{alice, bob, treasury} {
			assert.Equal(t, original.ClaimedTotal(addr).String(), restored.ClaimedTotal(addr).String())
		}

		for _, addr := range []common.Address{alice, bob} {
			want, err := original.HarvestAll(ledger.Call{Caller: addr, Block: 5100})
			require.Nil(t, err)
			got, err := restored.HarvestAll(ledger.Call{Caller: addr, Block: 5100})
			require.Nil(t, err)
			assert.Equal(t, want.Reward.String(), got.Reward.String())
		}
	})
	t.Run("Should write nothing when the transaction fails", func(t *testing.T) {
		store, l := setup(t)
		lg := newLedger(l, params())
		_, err := lg.Stake(ledger.Call{Caller: alice, Block: 100}, big.NewInt(70))
		require.Nil(t, err)

		changes := lg.Commit()
		err = store.Transaction(func(tx *gorm.DB) error {
			if err := store.Persist(tx, lg, changes); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		var count int64
		store.Db.Model(&storage.Participant{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})
	t.Run("Should insert and list events", func(t *testing.T) {
		store, l := setup(t)
		lg := newLedger(l, params())
		stakeReceipt, err := lg.Stake(ledger.Call{Caller: alice, Block: 100}, big.NewInt(70))
		require.Nil(t, err)
		depositReceipt, err := lg.DepositFees(ledger.Call{Caller: governance, Block: 1100}, big.NewInt(5))
		require.Nil(t, err)

		err = store.Transaction(func(tx *gorm.DB) error {
			if _, err := store.InsertEvents(tx, "call-1", stakeReceipt.Events); err != nil {
				return err
			}
			_, err := store.InsertEvents(tx, "call-2", depositReceipt.Events)
			return err
		})
		require.Nil(t, err)

		events, err := store.ListEvents(alice.Hex(), 10)
		assert.Nil(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, string(ledger.EventName_Staked), events[0].Name)
		assert.Equal(t, "70", events[0].Amount.String())

		events, err = store.ListEvents("", 10)
		assert.Nil(t, err)
		assert.Len(t, events, 2)
		assert.Equal(t, string(ledger.EventName_FeesDeposited), events[0].Name)

		_, err = store.InsertEvents(store.Db, "call-1", stakeReceipt.Events)
		assert.NotNil(t, err)
	})
}
