package ledger

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EpochBatch carries the bucket and resolved total weight of the epochs
// UptoEpoch-len+1 ... UptoEpoch.
type EpochBatch struct {
	UptoEpoch     uint64
	RewardBuckets []*big.Int
	TotalWeights  []*big.Int
}

func (b *EpochBatch) FromEpoch() uint64 {
	return b.UptoEpoch - uint64(len(b.RewardBuckets)) + 1
}

type ParticipantBatch struct {
	Addresses         []common.Address
	Principals        []*big.Int
	Weights           []*big.Int
	LastStakeBlocks   []uint64
	LastClaimedBlocks []uint64
}

func (b *ParticipantBatch) Len() int {
	return len(b.Addresses)
}

// SnapshotBatch carries the explicit participant snapshot entries of one epoch
// together with the participants' claimed totals.
type SnapshotBatch struct {
	Epoch         uint64
	Addresses     []common.Address
	Weights       []*big.Int
	ClaimedTotals []*big.Int
}

// TreasuryState carries the ledger-wide cursors: the treasury's claim cursor
// and the newest epoch any call has run in.
type TreasuryState struct {
	LastClaimedEpoch uint64
	ClaimedTotal     *big.Int
	LatestCallEpoch  uint64
}

// CheckParams fails with ErrParamsMismatch unless the other ledger splits
// every epoch exactly as this one does: same epochs, same treasury weight in
// the denominator and the same treasury account.
func (l *Ledger) CheckParams(other *Params) error {
	if other.GenesisBlock != l.params.GenesisBlock || other.EpochDuration != l.params.EpochDuration {
		return ErrParamsMismatch
	}
	if amountOrZero(other.TreasuryWeight).Cmp(amountOrZero(l.params.TreasuryWeight)) != 0 {
		return ErrParamsMismatch
	}
	if other.TreasuryAddress != l.params.TreasuryAddress {
		return ErrParamsMismatch
	}
	return nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (l *Ledger) migrationPreconditions(call Call) error {
	if !l.guard.IsGovernance(call.Caller) {
		return ErrNotGovernance
	}
	if !l.Active() {
		return ErrNoActiveStakeRegime
	}
	return nil
}

// MigrateEpochs sets the reward buckets and total weights of a contiguous
// epoch range. Replaying a batch leaves the ledger unchanged.
func (l *Ledger) MigrateEpochs(call Call, batch *EpochBatch) (*Receipt, error) {
	if err := l.migrationPreconditions(call); err != nil {
		return nil, err
	}
	n := len(batch.RewardBuckets)
	if n == 0 || n != len(batch.TotalWeights) || batch.UptoEpoch < uint64(n) {
		return nil, ErrInvalidBatch
	}
	if !nonNegative(batch.RewardBuckets) || !nonNegative(batch.TotalWeights) {
		return nil, ErrInvalidBatch
	}

	from := batch.FromEpoch()
	for i := 0; i < n; i++ {
		e := from + uint64(i)
		bucket := batch.RewardBuckets[i]
		if _, exists := l.rewardBuckets.Get(e); exists || bucket.Sign() > 0 {
			l.setRewardBucket(e, new(big.Int).Set(bucket))
		}
		l.setTotalWeight(e, new(big.Int).Set(batch.TotalWeights[i]))
	}

	l.logger.Sugar().Infow("Migrated epochs",
		zap.Uint64("fromEpoch", from),
		zap.Uint64("toEpoch", batch.UptoEpoch),
	)
	return l.migratedReceipt(call, batch.UptoEpoch, uint64(n)), nil
}

// MigrateParticipants sets participant records as they are on the source ledger.
func (l *Ledger) MigrateParticipants(call Call, batch *ParticipantBatch) (*Receipt, error) {
	if err := l.migrationPreconditions(call); err != nil {
		return nil, err
	}
	n := batch.Len()
	if n == 0 ||
		len(batch.Principals) != n ||
		len(batch.Weights) != n ||
		len(batch.LastStakeBlocks) != n ||
		len(batch.LastClaimedBlocks) != n {
		return nil, ErrInvalidBatch
	}
	if !nonNegative(batch.Principals) || !nonNegative(batch.Weights) {
		return nil, ErrInvalidBatch
	}
	for i := 0; i < n; i++ {
		if (batch.Principals[i].Sign() == 0) != (batch.Weights[i].Sign() == 0) {
			return nil, ErrInvalidBatch
		}
		if batch.Addresses[i] == l.params.TreasuryAddress {
			return nil, ErrInvalidBatch
		}
	}

	for i := 0; i < n; i++ {
		l.setParticipant(batch.Addresses[i], &ParticipantRecord{
			Principal:        new(big.Int).Set(batch.Principals[i]),
			Weight:           new(big.Int).Set(batch.Weights[i]),
			LastStakeBlock:   batch.LastStakeBlocks[i],
			LastClaimedBlock: batch.LastClaimedBlocks[i],
		})
	}

	l.logger.Sugar().Infow("Migrated participants", zap.Int("count", n))
	return l.migratedReceipt(call, 0, uint64(n)), nil
}

// MigrateParticipantSnapshots sets the participant weights written at one
// epoch and the participants' claimed totals.
func (l *Ledger) MigrateParticipantSnapshots(call Call, batch *SnapshotBatch) (*Receipt, error) {
	if err := l.migrationPreconditions(call); err != nil {
		return nil, err
	}
	n := len(batch.Addresses)
	if n == 0 || batch.Epoch == 0 || len(batch.Weights) != n || len(batch.ClaimedTotals) != n {
		return nil, ErrInvalidBatch
	}
	if !nonNegative(batch.Weights) || !nonNegative(batch.ClaimedTotals) {
		return nil, ErrInvalidBatch
	}

	for i := 0; i < n; i++ {
		addr := batch.Addresses[i]
		l.setParticipantWeight(addr, batch.Epoch, new(big.Int).Set(batch.Weights[i]))
		if _, exists := l.claimedTotals[addr]; exists || batch.ClaimedTotals[i].Sign() > 0 {
			l.setClaimedTotal(addr, new(big.Int).Set(batch.ClaimedTotals[i]))
		}
	}

	l.logger.Sugar().Debugw("Migrated participant snapshots",
		zap.Uint64("epoch", batch.Epoch),
		zap.Int("count", n),
	)
	return l.migratedReceipt(call, batch.Epoch, uint64(n)), nil
}

// MigrateTreasury carries the treasury's claim cursor and claimed total over.
func (l *Ledger) MigrateTreasury(call Call, state *TreasuryState) (*Receipt, error) {
	if err := l.migrationPreconditions(call); err != nil {
		return nil, err
	}
	if state.ClaimedTotal == nil || state.ClaimedTotal.Sign() < 0 {
		return nil, ErrInvalidBatch
	}
	l.setTreasuryLastClaimedEpoch(state.LastClaimedEpoch)
	l.advanceCallEpoch(state.LatestCallEpoch)
	treasury := l.params.TreasuryAddress
	if _, exists := l.claimedTotals[treasury]; exists || state.ClaimedTotal.Sign() > 0 {
		l.setClaimedTotal(treasury, new(big.Int).Set(state.ClaimedTotal))
	}
	return l.migratedReceipt(call, state.LastClaimedEpoch, 1), nil
}

func (l *Ledger) migratedReceipt(call Call, epoch uint64, count uint64) *Receipt {
	receipt := newReceipt(call.Caller, epoch)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_LedgerMigrated,
		Participant: call.Caller,
		Amount:      new(big.Int).SetUint64(count),
		Epoch:       epoch,
		Block:       call.Block,
	})
	return receipt
}

// ExportEpochs returns the buckets and resolved total weights of [from, to].
func (l *Ledger) ExportEpochs(from uint64, to uint64) (*EpochBatch, error) {
	if from == 0 || to < from {
		return nil, ErrInvalidBatch
	}
	batch := &EpochBatch{
		UptoEpoch:     to,
		RewardBuckets: make([]*big.Int, 0, to-from+1),
		TotalWeights:  make([]*big.Int, 0, to-from+1),
	}
	total := l.totalWeights.Cursor(from)
	for e := from; e <= to; e++ {
		batch.RewardBuckets = append(batch.RewardBuckets, l.RewardBucket(e))
		batch.TotalWeights = append(batch.TotalWeights, new(big.Int).Set(total.At(e)))
	}
	return batch, nil
}

// ExportParticipants returns up to limit records in ledger order, starting
// right after the participant after, or at the first one when after is nil.
func (l *Ledger) ExportParticipants(after *common.Address, limit int) (*ParticipantBatch, error) {
	batch := &ParticipantBatch{}
	start := l.participants.Oldest()
	if after != nil {
		prev := l.participants.GetPair(*after)
		if prev == nil {
			return nil, ErrInvalidBatch
		}
		start = prev.Next()
	}
	for pair := start; pair != nil && batch.Len() < limit; pair = pair.Next() {
		rec := pair.Value
		batch.Addresses = append(batch.Addresses, pair.Key)
		batch.Principals = append(batch.Principals, new(big.Int).Set(rec.Principal))
		batch.Weights = append(batch.Weights, new(big.Int).Set(rec.Weight))
		batch.LastStakeBlocks = append(batch.LastStakeBlocks, rec.LastStakeBlock)
		batch.LastClaimedBlocks = append(batch.LastClaimedBlocks, rec.LastClaimedBlock)
	}
	return batch, nil
}

// ExportSnapshotEpochs lists every epoch at which some participant's weight
// was written, ascending.
func (l *Ledger) ExportSnapshotEpochs() []uint64 {
	set := make(map[uint64]struct{})
	for _, table := range l.participantWeights {
		for _, e := range table.Epochs() {
			set[e] = struct{}{}
		}
	}
	return sortedEpochs(set)
}

func (l *Ledger) ExportParticipantSnapshots(e uint64) *SnapshotBatch {
	batch := &SnapshotBatch{Epoch: e}
	addrs := make([]common.Address, 0)
	for addr, table := range l.participantWeights {
		if _, ok := table.Get(e); ok {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	for _, addr := range addrs {
		w, _ := l.participantWeights[addr].Get(e)
		batch.Addresses = append(batch.Addresses, addr)
		batch.Weights = append(batch.Weights, new(big.Int).Set(w))
		batch.ClaimedTotals = append(batch.ClaimedTotals, l.ClaimedTotal(addr))
	}
	return batch
}

func (l *Ledger) ExportTreasury() *TreasuryState {
	return &TreasuryState{
		LastClaimedEpoch: l.treasuryLastClaimedEpoch,
		ClaimedTotal:     l.ClaimedTotal(l.params.TreasuryAddress),
		LatestCallEpoch:  l.latestCallEpoch,
	}
}

func nonNegative(values []*big.Int) bool {
	for _, v := range values {
		if v == nil || v.Sign() < 0 {
			return false
		}
	}
	return true
}
