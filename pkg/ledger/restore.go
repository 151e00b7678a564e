package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The Restore* writes rebuild a ledger from durable storage. They skip both the
// journal and every call check, so they must only be used on a fresh ledger
// before it serves calls. Epoch entries are expected in ascending order.

func (l *Ledger) RestoreLatestCallEpoch(e uint64) {
	l.latestCallEpoch = e
}

func (l *Ledger) RestoreTreasuryLastClaimedEpoch(e uint64) {
	l.treasuryLastClaimedEpoch = e
}

func (l *Ledger) RestoreRewardBucket(e uint64, amount *big.Int) {
	l.rewardBuckets.Set(e, new(big.Int).Set(amount))
}

func (l *Ledger) RestoreTotalWeight(e uint64, weight *big.Int) {
	l.totalWeights.Set(e, new(big.Int).Set(weight))
}

func (l *Ledger) RestoreParticipant(addr common.Address, rec *ParticipantRecord) {
	l.participants.Set(addr, rec.copy())
}

func (l *Ledger) RestoreParticipantWeight(addr common.Address, e uint64, weight *big.Int) {
	table, ok := l.participantWeights[addr]
	if !ok {
		table = NewSnapshotTable()
		l.participantWeights[addr] = table
	}
	table.Set(e, new(big.Int).Set(weight))
}

func (l *Ledger) RestoreClaimedTotal(addr common.Address, amount *big.Int) {
	l.claimedTotals[addr] = new(big.Int).Set(amount)
}

// RewardBucketEntry returns the bucket stored at exactly epoch e.
func (l *Ledger) RewardBucketEntry(e uint64) (*big.Int, bool) {
	v, ok := l.rewardBuckets.Get(e)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// TotalWeightEntry returns the explicit total weight entry at epoch e, if any.
func (l *Ledger) TotalWeightEntry(e uint64) (*big.Int, bool) {
	v, ok := l.totalWeights.Get(e)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// ParticipantWeightEntry returns the explicit weight entry of addr at epoch e, if any.
func (l *Ledger) ParticipantWeightEntry(addr common.Address, e uint64) (*big.Int, bool) {
	table, ok := l.participantWeights[addr]
	if !ok {
		return nil, false
	}
	v, ok := table.Get(e)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// ClaimedTotalEntry reports whether a claimed total was ever recorded for addr.
func (l *Ledger) ClaimedTotalEntry(addr common.Address) (*big.Int, bool) {
	v, ok := l.claimedTotals[addr]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}
