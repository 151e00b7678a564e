package ledger

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

func defaultParams() *Params {
	return &Params{
		GenesisBlock:    0,
		EpochDuration:   1000,
		MinimumStake:    big.NewInt(1),
		TreasuryWeight:  big.NewInt(0),
		TreasuryAddress: treasury,
	}
}

func setup(t *testing.T, params *Params) (*Ledger, *access.StaticGuard) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.Nil(t, err)

	guard := access.NewStaticGuard(governance)
	return NewLedger(params, guard, l), guard
}

func at(addr common.Address, block uint64) Call {
	return Call{Caller: addr, Block: block}
}

func mustStake(t *testing.T, ledger *Ledger, addr common.Address, amount int64, block uint64) {
	_, err := ledger.Stake(at(addr, block), big.NewInt(amount))
	require.Nil(t, err)
}

func mustDeposit(t *testing.T, ledger *Ledger, amount int64, block uint64) {
	_, err := ledger.DepositFees(at(governance, block), big.NewInt(amount))
	require.Nil(t, err)
}

func assertClosure(t *testing.T, ledger *Ledger, upto uint64) {
	for e := uint64(1); e <= upto; e++ {
		ok, sum, total := ledger.CheckWeightClosure(e)
		assert.True(t, ok, "epoch %d: participants %s, total %s", e, sum, total)
	}
}

func Test_LedgerScenarios(t *testing.T) {
	t.Run("Should strand a deposit made before anyone stakes", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())

		mustDeposit(t, ledger, 1000, 500)
		mustStake(t, ledger, alice, 100, 1500)

		receipt, err := ledger.HarvestAll(at(alice, 5500))
		assert.Nil(t, err)
		assert.Equal(t, "0", receipt.Reward.String())

		receipt, err = ledger.DaoHarvestPaginated(at(governance, 5500), 5)
		assert.Nil(t, err)
		assert.Equal(t, "1000", receipt.Payout.String())
		assert.Equal(t, treasury, receipt.Participant)
		assert.Equal(t, "1000", ledger.ClaimedTotal(treasury).String())
	})
	t.Run("Should pay a sole staker the whole funded epoch", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())

		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 300, 1100)

		receipt, err := ledger.HarvestAll(at(alice, 5100))
		assert.Nil(t, err)
		assert.Equal(t, "300", receipt.Reward.String())
		assert.Equal(t, "300", receipt.Payout.String())
		assert.Equal(t, "300", ledger.ClaimedTotal(alice).String())
		assert.Equal(t, uint64(5), ledger.LastClaimedEpoch(alice))
	})
	t.Run("Should split evenly between stakers of the same epoch", func(t *testing.T) {
		for _, order := range [][]common.Address{{alice, bob}, {bob, alice}} {
			ledger, _ := setup(t, defaultParams())

			mustStake(t, ledger, order[0], 100, 100)
			mustStake(t, ledger, order[1], 100, 900)
			mustDeposit(t, ledger, 400, 1100)

			for _, addr := range order {
				receipt, err := ledger.HarvestAll(at(addr, 5100))
				assert.Nil(t, err)
				assert.Equal(t, "200", receipt.Reward.String())
			}
			assertClosure(t, ledger, 6)
		}
	})
	t.Run("Should have nothing to claim within the staking epoch", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())

		mustStake(t, ledger, alice, 100, 100)

		pending, err := ledger.PendingReward(alice, 200)
		assert.Nil(t, err)
		assert.Equal(t, "0", pending.String())

		_, err = ledger.HarvestAll(at(alice, 200))
		assert.ErrorIs(t, err, ErrNothingToClaim)
		assert.Equal(t, "0", ledger.ClaimedTotal(alice).String())
	})
	t.Run("Should pay principal and reward on unstake and refuse a second unstake", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())

		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 300, 1100)

		receipt, err := ledger.Unstake(at(alice, 5100))
		assert.Nil(t, err)
		assert.Equal(t, "300", receipt.Reward.String())
		assert.Equal(t, "400", receipt.Payout.String())
		assert.Len(t, receipt.Events, 2)
		assert.Equal(t, EventName_RewardsClaimed, receipt.Events[0].Name)
		assert.Equal(t, EventName_Unstaked, receipt.Events[1].Name)
		assert.Equal(t, "100", receipt.Events[1].Amount.String())

		rec, ok := ledger.Participant(alice)
		assert.True(t, ok)
		assert.Equal(t, "0", rec.Principal.String())
		assert.Equal(t, "0", rec.Weight.String())
		assert.Equal(t, uint64(5100), rec.LastClaimedBlock)

		_, err = ledger.HarvestAll(at(alice, 5200))
		assert.ErrorIs(t, err, ErrNotAStaker)
		_, err = ledger.Unstake(at(alice, 5200))
		assert.ErrorIs(t, err, ErrNotAStaker)
	})
}

func Test_LedgerCallChecks(t *testing.T) {
	t.Run("Should reject calls while paused", func(t *testing.T) {
		ledger, guard := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)

		guard.SetPaused(true)
		_, err := ledger.Stake(at(bob, 200), big.NewInt(100))
		assert.ErrorIs(t, err, ErrPaused)
		_, err = ledger.Unstake(at(alice, 200))
		assert.ErrorIs(t, err, ErrPaused)
		_, err = ledger.HarvestAll(at(alice, 2200))
		assert.ErrorIs(t, err, ErrPaused)
		_, err = ledger.HarvestPaginated(at(alice, 2200), 1)
		assert.ErrorIs(t, err, ErrPaused)
	})
	t.Run("Should enforce the minimum stake", func(t *testing.T) {
		params := defaultParams()
		params.MinimumStake = big.NewInt(10)
		ledger, _ := setup(t, params)

		_, err := ledger.Stake(at(alice, 100), big.NewInt(9))
		assert.ErrorIs(t, err, ErrBelowMinimumStake)
		_, err = ledger.Stake(at(alice, 100), big.NewInt(0))
		assert.ErrorIs(t, err, ErrBelowMinimumStake)
		_, err = ledger.Stake(at(alice, 100), big.NewInt(10))
		assert.Nil(t, err)
	})
	t.Run("Should require an epoch regime and lock it once used", func(t *testing.T) {
		params := defaultParams()
		params.EpochDuration = 0
		ledger, _ := setup(t, params)

		_, err := ledger.Stake(at(alice, 100), big.NewInt(100))
		assert.ErrorIs(t, err, ErrNoActiveStakeRegime)
		_, err = ledger.EpochOf(0, 100)
		assert.ErrorIs(t, err, ErrNoActiveStakeRegime)

		assert.ErrorIs(t, ledger.ConfigureEpochs(at(alice, 0), 0, 1000), ErrNotGovernance)
		assert.Nil(t, ledger.ConfigureEpochs(at(governance, 0), 0, 1000))
		mustStake(t, ledger, alice, 100, 100)
		assert.ErrorIs(t, ledger.ConfigureEpochs(at(governance, 0), 0, 500), ErrRegimeLocked)
	})
	t.Run("Should reject blocks before genesis", func(t *testing.T) {
		params := defaultParams()
		params.GenesisBlock = 1000
		ledger, _ := setup(t, params)

		_, err := ledger.Stake(at(alice, 999), big.NewInt(100))
		assert.ErrorIs(t, err, ErrInvalidRange)
		_, err = ledger.EpochOf(1000, 999)
		assert.ErrorIs(t, err, ErrInvalidRange)

		e, err := ledger.EpochOf(1000, 2999)
		assert.Nil(t, err)
		assert.Equal(t, uint64(2), e)
	})
	t.Run("Should only accept deposits from fee sources", func(t *testing.T) {
		ledger, guard := setup(t, defaultParams())

		_, err := ledger.DepositFees(at(alice, 100), big.NewInt(10))
		assert.ErrorIs(t, err, ErrNotGovernance)
		_, err = ledger.DepositFees(at(governance, 100), big.NewInt(0))
		assert.ErrorIs(t, err, ErrZeroAmount)

		guard.AddFeeSource(carol)
		receipt, err := ledger.DepositFees(at(carol, 100), big.NewInt(10))
		assert.Nil(t, err)
		assert.Equal(t, EventName_FeesDeposited, receipt.Events[0].Name)
		mustDeposit(t, ledger, 5, 900)
		assert.Equal(t, "15", ledger.RewardBucket(1).String())
		assert.Equal(t, "0", ledger.RewardBucket(2).String())
	})
	t.Run("Should restrict the treasury harvest to governance", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustDeposit(t, ledger, 100, 100)

		_, err := ledger.DaoHarvestPaginated(at(alice, 2100), 1)
		assert.ErrorIs(t, err, ErrNotGovernance)
	})
	t.Run("Should reject calls behind the latest epoch", func(t *testing.T) {
		ledger, guard := setup(t, defaultParams())
		guard.AddFeeSource(carol)
		mustStake(t, ledger, alice, 100, 5100)
		assert.Equal(t, uint64(6), ledger.LatestCallEpoch())

		_, err := ledger.Stake(at(bob, 100), big.NewInt(100))
		assert.ErrorIs(t, err, ErrStaleBlock)
		_, err = ledger.DepositFees(at(carol, 4999), big.NewInt(10))
		assert.ErrorIs(t, err, ErrStaleBlock)
		_, err = ledger.Unstake(at(alice, 1100))
		assert.ErrorIs(t, err, ErrStaleBlock)
		_, err = ledger.HarvestAll(at(alice, 2100))
		assert.ErrorIs(t, err, ErrStaleBlock)
		_, err = ledger.DaoHarvestPaginated(at(governance, 3100), 1)
		assert.ErrorIs(t, err, ErrStaleBlock)
		_, ok := ledger.Participant(bob)
		assert.False(t, ok)
		assert.Equal(t, "0", ledger.RewardBucket(1).String())

		mustStake(t, ledger, bob, 100, 5900)
		assert.Equal(t, uint64(6), ledger.LatestCallEpoch())
		assertClosure(t, ledger, 8)
		assert.Equal(t, "200", ledger.TotalWeightAt(7).String())
	})
	t.Run("Should classify reverts", func(t *testing.T) {
		assert.True(t, IsRevertErr(ErrPaused))
		assert.False(t, IsRevertErr(nil))
		assert.False(t, IsRevertErr(assert.AnError))
	})
}

func Test_LedgerPagination(t *testing.T) {
	history := func(t *testing.T) *Ledger {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 70, 100)
		mustStake(t, ledger, bob, 30, 200)
		mustDeposit(t, ledger, 1001, 1100)
		mustStake(t, ledger, alice, 50, 1500)
		mustDeposit(t, ledger, 333, 2100)
		mustDeposit(t, ledger, 17, 3900)
		mustStake(t, ledger, carol, 9, 4000)
		mustDeposit(t, ledger, 250, 5100)
		return ledger
	}

	t.Run("Should add up paginated harvests to a single harvest", func(t *testing.T) {
		whole := history(t)
		paged := history(t)

		all, err := whole.HarvestAll(at(alice, 7100))
		require.Nil(t, err)

		paid := big.NewInt(0)
		for _, till := range []uint64{2, 3, 7} {
			receipt, err := paged.HarvestPaginated(at(alice, 7100), till)
			require.Nil(t, err)
			paid.Add(paid, receipt.Reward)
		}
		assert.Equal(t, all.Reward.String(), paid.String())
		assert.Equal(t, whole.ClaimedTotal(alice).String(), paged.ClaimedTotal(alice).String())

		_, err = paged.HarvestAll(at(alice, 7100))
		assert.ErrorIs(t, err, ErrNothingToClaim)
	})
	t.Run("Should reject replayed and unfinished bounds", func(t *testing.T) {
		ledger := history(t)

		_, err := ledger.HarvestPaginated(at(alice, 7100), 8)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)
		_, err = ledger.HarvestPaginated(at(alice, 7100), 1)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)

		_, err = ledger.HarvestPaginated(at(alice, 7100), 4)
		assert.Nil(t, err)
		_, err = ledger.HarvestPaginated(at(alice, 7100), 4)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)
		_, err = ledger.HarvestPaginated(at(alice, 7100), 3)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)

		_, err = ledger.DaoHarvestPaginated(at(governance, 7100), 8)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)
		_, err = ledger.DaoHarvestPaginated(at(governance, 7100), 0)
		assert.ErrorIs(t, err, ErrInvalidPaginationBound)
	})
	t.Run("Should account for every deposited unit", func(t *testing.T) {
		ledger := history(t)

		paid := big.NewInt(0)
		for _, addr := range []common.Address{alice, bob, carol} {
			receipt, err := ledger.HarvestAll(at(addr, 7100))
			require.Nil(t, err)
			paid.Add(paid, receipt.Reward)
		}
		for _, till := range []uint64{3, 7} {
			receipt, err := ledger.DaoHarvestPaginated(at(governance, 7100), till)
			require.Nil(t, err)
			paid.Add(paid, receipt.Payout)
		}
		assert.Equal(t, "1601", paid.String())
		assert.Equal(t, uint64(7), ledger.TreasuryLastClaimedEpoch())
		assertClosure(t, ledger, 8)
	})
}

func Test_LedgerFairness(t *testing.T) {
	rewardFor := func(t *testing.T, amount int64) *big.Int {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, bob, 100, 100)
		mustStake(t, ledger, alice, amount, 500)
		mustDeposit(t, ledger, 999, 1100)
		mustDeposit(t, ledger, 1, 2100)

		receipt, err := ledger.HarvestAll(at(alice, 4100))
		require.Nil(t, err)
		return receipt.Reward
	}

	t.Run("Should never pay a larger stake less", func(t *testing.T) {
		prev := big.NewInt(0)
		for _, amount := range []int64{1, 2, 50, 99, 100, 101, 1000} {
			reward := rewardFor(t, amount)
			assert.True(t, reward.Cmp(prev) >= 0, "stake %d paid %s < %s", amount, reward, prev)
			prev = reward
		}
	})
	t.Run("Should ignore the position of a stake inside its epoch", func(t *testing.T) {
		early, _ := setup(t, defaultParams())
		late, _ := setup(t, defaultParams())

		mustStake(t, early, alice, 100, 1000)
		mustStake(t, late, alice, 100, 1999)
		for _, ledger := range []*Ledger{early, late} {
			mustStake(t, ledger, bob, 100, 1500)
			mustDeposit(t, ledger, 500, 2500)
		}

		a, err := early.HarvestAll(at(alice, 3000))
		require.Nil(t, err)
		b, err := late.HarvestAll(at(alice, 3000))
		require.Nil(t, err)
		assert.Equal(t, "250", a.Reward.String())
		assert.Equal(t, a.Reward.String(), b.Reward.String())
	})
	t.Run("Should credit added stake from the next epoch on", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustStake(t, ledger, bob, 100, 100)
		mustStake(t, ledger, alice, 200, 1200)
		mustDeposit(t, ledger, 400, 1300)
		mustDeposit(t, ledger, 400, 2300)

		assert.Equal(t, "100", ledger.WeightAt(alice, 2).String())
		assert.Equal(t, "300", ledger.WeightAt(alice, 3).String())
		assert.Equal(t, "400", ledger.TotalWeightAt(3).String())

		receipt, err := ledger.HarvestAll(at(alice, 3100))
		require.Nil(t, err)
		assert.Equal(t, "500", receipt.Reward.String())
		assertClosure(t, ledger, 4)
	})
}

func Test_LedgerUnstake(t *testing.T) {
	t.Run("Should withdraw weight from the epoch of the unstake", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustStake(t, ledger, bob, 100, 100)
		mustDeposit(t, ledger, 400, 2100)

		_, err := ledger.Unstake(at(alice, 2500))
		require.Nil(t, err)
		assertClosure(t, ledger, 5)
		assert.Equal(t, "100", ledger.TotalWeightAt(3).String())

		receipt, err := ledger.HarvestAll(at(bob, 3100))
		require.Nil(t, err)
		assert.Equal(t, "400", receipt.Reward.String())
	})
	t.Run("Should let a participant stake again after unstaking", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 100, 1100)
		_, err := ledger.Unstake(at(alice, 2100))
		require.Nil(t, err)

		mustDeposit(t, ledger, 100, 2200)
		mustStake(t, ledger, alice, 50, 2300)
		mustDeposit(t, ledger, 100, 3100)

		receipt, err := ledger.HarvestAll(at(alice, 4100))
		require.Nil(t, err)
		assert.Equal(t, "100", receipt.Reward.String())
		assert.Equal(t, "200", ledger.ClaimedTotal(alice).String())

		treasuryShare, err := ledger.PendingTreasury(4100)
		require.Nil(t, err)
		assert.Equal(t, "100", treasuryShare.String())
		assertClosure(t, ledger, 5)
	})
	t.Run("Should settle the claim before handing out tokens", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 300, 1100)

		_, err := ledger.HarvestAll(at(alice, 3100))
		require.Nil(t, err)

		pending, err := ledger.PendingReward(alice, 3100)
		require.Nil(t, err)
		assert.Equal(t, "0", pending.String())
		_, err = ledger.HarvestAll(at(alice, 3100))
		assert.ErrorIs(t, err, ErrNothingToClaim)
	})
}

func Test_LedgerTreasury(t *testing.T) {
	t.Run("Should hand rounding dust to the treasury", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		for _, addr := range []common.Address{alice, bob, carol} {
			mustStake(t, ledger, addr, 1, 100)
		}
		mustDeposit(t, ledger, 100, 1100)

		for _, addr := range []common.Address{alice, bob, carol} {
			receipt, err := ledger.HarvestAll(at(addr, 2100))
			require.Nil(t, err)
			assert.Equal(t, "33", receipt.Reward.String())
		}
		receipt, err := ledger.DaoHarvestPaginated(at(governance, 2100), 1)
		require.Nil(t, err)
		assert.Equal(t, "0", receipt.Payout.String())
		receipt, err = ledger.DaoHarvestPaginated(at(governance, 2100), 2)
		require.Nil(t, err)
		assert.Equal(t, "1", receipt.Payout.String())
	})
	t.Run("Should give a weighted treasury its nominal share", func(t *testing.T) {
		params := defaultParams()
		params.TreasuryWeight = big.NewInt(100)
		ledger, _ := setup(t, params)

		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 300, 1100)

		receipt, err := ledger.HarvestAll(at(alice, 2100))
		require.Nil(t, err)
		assert.Equal(t, "150", receipt.Reward.String())

		receipt, err = ledger.DaoHarvestPaginated(at(governance, 2100), 2)
		require.Nil(t, err)
		assert.Equal(t, "150", receipt.Payout.String())
	})
}

func Test_LedgerJournal(t *testing.T) {
	t.Run("Should revert every write made after a snapshot", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 100, 1100)
		ledger.Commit()

		id := ledger.Snapshot()
		mustStake(t, ledger, bob, 100, 1200)
		mustStake(t, ledger, alice, 100, 1300)
		mustDeposit(t, ledger, 100, 1400)
		_, err := ledger.DaoHarvestPaginated(at(governance, 2100), 1)
		require.Nil(t, err)
		_, err = ledger.HarvestAll(at(alice, 2100))
		require.Nil(t, err)
		ledger.RevertToSnapshot(id)

		_, ok := ledger.Participant(bob)
		assert.False(t, ok)
		rec, ok := ledger.Participant(alice)
		assert.True(t, ok)
		assert.Equal(t, "100", rec.Principal.String())
		assert.Equal(t, uint64(100), rec.LastClaimedBlock)
		assert.Equal(t, "100", ledger.RewardBucket(2).String())
		assert.Equal(t, "100", ledger.TotalWeightAt(3).String())
		assert.Equal(t, "0", ledger.WeightAt(bob, 3).String())
		assert.Equal(t, "0", ledger.ClaimedTotal(alice).String())
		assert.Equal(t, uint64(0), ledger.TreasuryLastClaimedEpoch())
		assert.Equal(t, uint64(2), ledger.LatestCallEpoch())
		assert.True(t, ledger.Commit().IsEmpty())
	})
	t.Run("Should list the written keys on commit", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustDeposit(t, ledger, 100, 1100)

		changes := ledger.Commit()
		assert.True(t, changes.Globals)
		assert.Equal(t, []uint64{2}, changes.RewardBuckets)
		assert.Equal(t, []uint64{1, 2}, changes.TotalWeights)
		assert.Equal(t, []common.Address{alice}, changes.Participants)
		assert.Equal(t, []SnapshotKey{{alice, 1}, {alice, 2}}, changes.ParticipantSnapshots)
		assert.Empty(t, changes.ClaimedTotals)

		_, err := ledger.HarvestAll(at(alice, 2100))
		require.Nil(t, err)
		changes = ledger.Commit()
		assert.Equal(t, []common.Address{alice}, changes.ClaimedTotals)
		assert.Empty(t, changes.RewardBuckets)
	})
	t.Run("Should owe principal plus unpaid fees", func(t *testing.T) {
		ledger, _ := setup(t, defaultParams())
		mustStake(t, ledger, alice, 100, 100)
		mustStake(t, ledger, bob, 300, 200)
		mustDeposit(t, ledger, 400, 1500)
		assert.Equal(t, "800", ledger.Liabilities().String())

		_, err := ledger.HarvestAll(at(alice, 2100))
		require.Nil(t, err)
		assert.Equal(t, "700", ledger.Liabilities().String())

		receipt, err := ledger.Unstake(at(bob, 2100))
		require.Nil(t, err)
		assert.Equal(t, "600", receipt.Payout.String())
		assert.Equal(t, "100", ledger.Liabilities().String())
	})
}
