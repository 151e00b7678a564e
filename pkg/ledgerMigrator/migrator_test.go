package ledgerMigrator

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	sqliteTests "github.com/Layr-Labs/feeledger/internal/tests/sqlite"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/clients/ethereum"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	storagePostgres "github.com/Layr-Labs/feeledger/pkg/storage/postgres"
	"github.com/Layr-Labs/feeledger/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

type instance struct {
	service *ledgerService.Service
	blocks  *ethereum.ManualBlockSource
	bank    *token.MemoryBank
}

func params(duration uint64) *ledger.Params {
	return &ledger.Params{
		GenesisBlock:    0,
		EpochDuration:   duration,
		MinimumStake:    big.NewInt(1),
		TreasuryWeight:  big.NewInt(0),
		TreasuryAddress: treasury,
	}
}

func newInstance(t *testing.T, l *zap.Logger, p *ledger.Params) *instance {
	_, grm, err := sqliteTests.GetInMemorySqliteDatabaseConnection(l)
	require.Nil(t, err)
	store := storagePostgres.NewPostgresLedgerStore(grm, l)

	lg, err := ledgerService.OpenLedger(p, access.NewStaticGuard(governance), store, l)
	require.Nil(t, err)

	bank := token.NewMemoryBank(l)
	for _, addr := range []common.Address{alice, bob, carol, governance} {
		bank.Mint(addr, big.NewInt(10_000))
	}
	blocks := ethereum.NewManualBlockSource(0)
	service := ledgerService.NewService(lg, store, bank, blocks, nil, nil, l)
	service.Start()
	t.Cleanup(service.Close)
	return &instance{service: service, blocks: blocks, bank: bank}
}

func (i *instance) do(t *testing.T, block uint64, fn func(ctx context.Context) error) {
	i.blocks.SetBlock(block)
	require.Nil(t, fn(context.Background()))
}

// history builds a ledger spanning nine epochs with stakes, a partial harvest,
// an unstake, deposits and a treasury harvest.
func history(t *testing.T, l *zap.Logger) *instance {
	src := newInstance(t, l, params(1000))
	svc := src.service
	stake := func(addr common.Address, amount int64) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			_, err := svc.Stake(ctx, addr, big.NewInt(amount))
			return err
		}
	}
	deposit := func(amount int64) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			_, err := svc.DepositFees(ctx, governance, big.NewInt(amount))
			return err
		}
	}

	src.do(t, 100, stake(alice, 70))
	src.do(t, 200, stake(bob, 30))
	src.do(t, 300, deposit(55))
	src.do(t, 1200, deposit(1000))
	src.do(t, 2300, stake(carol, 100))
	src.do(t, 2400, deposit(333))
	src.do(t, 3500, deposit(777))
	src.do(t, 4100, func(ctx context.Context) error {
		_, err := svc.HarvestPaginated(ctx, alice, 2)
		return err
	})
	src.do(t, 5200, func(ctx context.Context) error {
		_, err := svc.Unstake(ctx, bob)
		return err
	})
	src.do(t, 6600, deposit(91))
	src.do(t, 7000, func(ctx context.Context) error {
		_, err := svc.DaoHarvestPaginated(ctx, governance, 3)
		return err
	})
	src.do(t, 8400, stake(alice, 5))
	return src
}

func assertSameLedger(t *testing.T, source *instance, target *instance, block uint64) {
	ctx := context.Background()
	source.blocks.SetBlock(block)
	target.blocks.SetBlock(block)

	for _, addr := range []common.Address{alice, bob, carol} {
		want, err := source.service.Participant(ctx, addr)
		require.Nil(t, err)
		got, err := target.service.Participant(ctx, addr)
		require.Nil(t, err)

		assert.Equal(t, want.Exists, got.Exists)
		assert.Equal(t, want.Record.Principal.String(), got.Record.Principal.String())
		assert.Equal(t, want.Record.Weight.String(), got.Record.Weight.String())
		assert.Equal(t, want.LastClaimedEpoch, got.LastClaimedEpoch)
		assert.Equal(t, want.ClaimedTotal.String(), got.ClaimedTotal.String())
		assert.Equal(t, want.PendingReward.String(), got.PendingReward.String())
	}

	wantTreasury, err := source.service.Treasury(ctx)
	require.Nil(t, err)
	gotTreasury, err := target.service.Treasury(ctx)
	require.Nil(t, err)
	assert.Equal(t, wantTreasury.LastClaimedEpoch, gotTreasury.LastClaimedEpoch)
	assert.Equal(t, wantTreasury.ClaimedTotal.String(), gotTreasury.ClaimedTotal.String())
	assert.Equal(t, wantTreasury.PendingReward.String(), gotTreasury.PendingReward.String())

	var wantCallEpoch, gotCallEpoch uint64
	require.Nil(t, source.service.View(ctx, func(l *ledger.Ledger) error {
		wantCallEpoch = l.LatestCallEpoch()
		return nil
	}))
	require.Nil(t, target.service.View(ctx, func(l *ledger.Ledger) error {
		gotCallEpoch = l.LatestCallEpoch()
		return nil
	}))
	assert.Equal(t, wantCallEpoch, gotCallEpoch)

	for e := uint64(1); e <= 10; e++ {
		closed, err := target.service.CheckWeightClosure(ctx, e)
		require.Nil(t, err)
		assert.True(t, closed)
	}
}

func Test_Migrator(t *testing.T) {
	debug := os.Getenv(config.Debug) == "true"
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: debug})
	require.Nil(t, err)
	ctx := context.Background()

	t.Run("Should copy a ledger between services", func(t *testing.T) {
		for _, batchSize := range []int{1, 2, 500} {
			source := history(t, l)
			target := newInstance(t, l, params(1000))

			migrator := NewMigrator(&MigratorConfig{BatchSize: batchSize}, l)
			summary, err := migrator.Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: governance})
			require.Nil(t, err)
			assert.Equal(t, 3, summary.Participants)
			assert.Equal(t, uint64(10), summary.Epochs)

			assertSameLedger(t, source, target, 9100)
			assertSameLedger(t, source, target, 12_345)
		}
	})
	t.Run("Should produce identical harvests after a copy", func(t *testing.T) {
		source := history(t, l)
		target := newInstance(t, l, params(1000))
		_, err := NewMigrator(&MigratorConfig{BatchSize: 3}, l).
			Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: governance})
		require.Nil(t, err)
		// tokens are moved to the successor outside the ledger
		target.bank.Fund(big.NewInt(100_000))

		for _, addr := range []common.Address{alice, carol} {
			source.blocks.SetBlock(9100)
			target.blocks.SetBlock(9100)
			want, err := source.service.HarvestAll(ctx, addr)
			require.Nil(t, err)
			got, err := target.service.HarvestAll(ctx, addr)
			require.Nil(t, err)
			assert.Equal(t, want.Receipt.Reward.String(), got.Receipt.Reward.String())
		}
	})
	t.Run("Should be idempotent when run twice", func(t *testing.T) {
		source := history(t, l)
		target := newInstance(t, l, params(1000))
		migrator := NewMigrator(&MigratorConfig{BatchSize: 4}, l)
		for i := 0; i < 2; i++ {
			_, err := migrator.Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: governance})
			require.Nil(t, err)
		}
		assertSameLedger(t, source, target, 9100)
	})
	t.Run("Should refuse a successor with another epoch regime", func(t *testing.T) {
		source := history(t, l)
		target := newInstance(t, l, params(500))

		_, err := NewMigrator(&MigratorConfig{BatchSize: 10}, l).
			Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: governance})
		assert.ErrorIs(t, err, ledger.ErrParamsMismatch)
	})
	t.Run("Should refuse a caller that is not governance", func(t *testing.T) {
		source := history(t, l)
		target := newInstance(t, l, params(1000))

		_, err := NewMigrator(&MigratorConfig{BatchSize: 10}, l).
			Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: alice})
		assert.ErrorIs(t, err, ledger.ErrNotGovernance)
	})
	t.Run("Should only count in a dry run", func(t *testing.T) {
		source := history(t, l)
		target := newInstance(t, l, params(1000))

		summary, err := NewMigrator(&MigratorConfig{BatchSize: 10, DryRun: true}, l).
			Run(ctx, source.service, &ServiceTarget{Service: target.service, Caller: governance})
		require.Nil(t, err)
		assert.Equal(t, 3, summary.Participants)

		count, err := target.service.ParticipantCount(ctx)
		require.Nil(t, err)
		assert.Equal(t, 0, count)
	})
	t.Run("Should round trip through csv files", func(t *testing.T) {
		source := history(t, l)
		dir := filepath.Join(t.TempDir(), "export")

		csvTarget, err := NewCsvTarget(dir)
		require.Nil(t, err)
		_, err = NewMigrator(&MigratorConfig{BatchSize: 4}, l).Run(ctx, source.service, csvTarget)
		require.Nil(t, err)

		for _, name := range []string{paramsFile, epochsFile, participantsFile, snapshotsFile, treasuryFile} {
			_, err := os.Stat(filepath.Join(dir, name))
			assert.Nil(t, err)
		}

		csvSource, err := NewCsvSource(dir)
		require.Nil(t, err)
		p, err := csvSource.Params(ctx)
		require.Nil(t, err)
		assert.Equal(t, uint64(1000), p.EpochDuration)
		assert.Equal(t, treasury, p.TreasuryAddress)

		target := newInstance(t, l, params(1000))
		_, err = NewMigrator(&MigratorConfig{BatchSize: 2}, l).
			Run(ctx, csvSource, &ServiceTarget{Service: target.service, Caller: governance})
		require.Nil(t, err)

		assertSameLedger(t, source, target, 9100)
	})
	t.Run("Should fail on a missing export file", func(t *testing.T) {
		_, err := NewCsvSource(t.TempDir())
		assert.NotNil(t, err)
	})
}
