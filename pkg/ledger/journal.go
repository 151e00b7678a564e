package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type journalEntry interface {
	// undo restores the state the entry overwrote
	undo(*Ledger)
	// record adds the key the entry touched to the change set
	record(*changeSet)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) revert(l *Ledger, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].undo(l)
	}
	j.entries = j.entries[:snapshot]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type changeSet struct {
	globals       bool
	buckets       map[uint64]struct{}
	totals        map[uint64]struct{}
	participants  map[common.Address]struct{}
	snapshots     map[SnapshotKey]struct{}
	claimedTotals map[common.Address]struct{}
}

func newChangeSet() *changeSet {
	return &changeSet{
		buckets:       make(map[uint64]struct{}),
		totals:        make(map[uint64]struct{}),
		participants:  make(map[common.Address]struct{}),
		snapshots:     make(map[SnapshotKey]struct{}),
		claimedTotals: make(map[common.Address]struct{}),
	}
}

type (
	globalsChange struct {
		prevParams          *Params
		prevTreasuryClaimed uint64
		prevCallEpoch       uint64
	}
	bucketChange struct {
		epoch   uint64
		prev    *big.Int
		existed bool
	}
	totalWeightChange struct {
		epoch   uint64
		prev    *big.Int
		existed bool
	}
	participantChange struct {
		participant common.Address
		prev        *ParticipantRecord
	}
	participantSnapshotChange struct {
		participant  common.Address
		epoch        uint64
		prev         *big.Int
		existed      bool
		tableCreated bool
	}
	claimedTotalChange struct {
		participant common.Address
		prev        *big.Int
	}
)

func (ch globalsChange) undo(l *Ledger) {
	l.params = ch.prevParams
	l.treasuryLastClaimedEpoch = ch.prevTreasuryClaimed
	l.latestCallEpoch = ch.prevCallEpoch
	l.resetClock()
}

func (ch globalsChange) record(cs *changeSet) {
	cs.globals = true
}

func (ch bucketChange) undo(l *Ledger) {
	if ch.existed {
		l.rewardBuckets.Set(ch.epoch, ch.prev)
	} else {
		l.rewardBuckets.Delete(ch.epoch)
	}
}

func (ch bucketChange) record(cs *changeSet) {
	cs.buckets[ch.epoch] = struct{}{}
}

func (ch totalWeightChange) undo(l *Ledger) {
	if ch.existed {
		l.totalWeights.Set(ch.epoch, ch.prev)
	} else {
		l.totalWeights.Delete(ch.epoch)
	}
}

func (ch totalWeightChange) record(cs *changeSet) {
	cs.totals[ch.epoch] = struct{}{}
}

func (ch participantChange) undo(l *Ledger) {
	if ch.prev == nil {
		l.participants.Delete(ch.participant)
	} else {
		l.participants.Set(ch.participant, ch.prev)
	}
}

func (ch participantChange) record(cs *changeSet) {
	cs.participants[ch.participant] = struct{}{}
}

func (ch participantSnapshotChange) undo(l *Ledger) {
	if ch.tableCreated {
		delete(l.participantWeights, ch.participant)
		return
	}
	table := l.participantWeights[ch.participant]
	if ch.existed {
		table.Set(ch.epoch, ch.prev)
	} else {
		table.Delete(ch.epoch)
	}
}

func (ch participantSnapshotChange) record(cs *changeSet) {
	cs.snapshots[SnapshotKey{Participant: ch.participant, Epoch: ch.epoch}] = struct{}{}
}

func (ch claimedTotalChange) undo(l *Ledger) {
	if ch.prev == nil {
		delete(l.claimedTotals, ch.participant)
	} else {
		l.claimedTotals[ch.participant] = ch.prev
	}
}

func (ch claimedTotalChange) record(cs *changeSet) {
	cs.claimedTotals[ch.participant] = struct{}{}
}
