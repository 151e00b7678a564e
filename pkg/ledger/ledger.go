package ledger

import (
	"cmp"
	"errors"
	"math/big"
	"slices"

	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/epoch"
	"github.com/ethereum/go-ethereum/common"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// Ledger holds the complete reward accounting state. It is not safe for
// concurrent use; callers serialize every call (see ledgerService).
//
// Every mutating call either fully applies or returns an error without any
// visible change. Snapshot/RevertToSnapshot extend that to a sequence of calls
// and Commit hands the written keys to the persistence layer.
type Ledger struct {
	params *Params
	clock  *epoch.Clock
	guard  access.Guard
	logger *zap.Logger

	rewardBuckets      *epochTable
	totalWeights       *SnapshotTable
	participants       *orderedmap.OrderedMap[common.Address, *ParticipantRecord]
	participantWeights map[common.Address]*SnapshotTable
	claimedTotals      map[common.Address]*big.Int

	treasuryLastClaimedEpoch uint64
	// latestCallEpoch is the newest epoch any call has run in; calls never
	// move it backwards.
	latestCallEpoch uint64

	journal *journal
}

func NewLedger(params *Params, guard access.Guard, l *zap.Logger) *Ledger {
	p := &Params{
		GenesisBlock:    params.GenesisBlock,
		EpochDuration:   params.EpochDuration,
		MinimumStake:    big.NewInt(0),
		TreasuryWeight:  big.NewInt(0),
		TreasuryAddress: params.TreasuryAddress,
	}
	if params.MinimumStake != nil {
		p.MinimumStake.Set(params.MinimumStake)
	}
	if params.TreasuryWeight != nil {
		p.TreasuryWeight.Set(params.TreasuryWeight)
	}
	ledger := &Ledger{
		params:             p,
		guard:              guard,
		logger:             l,
		rewardBuckets:      newEpochTable(),
		totalWeights:       NewSnapshotTable(),
		participants:       orderedmap.New[common.Address, *ParticipantRecord](),
		participantWeights: make(map[common.Address]*SnapshotTable),
		claimedTotals:      make(map[common.Address]*big.Int),
		journal:            &journal{},
	}
	ledger.resetClock()
	return ledger
}

func (l *Ledger) resetClock() {
	clock, err := epoch.NewClock(l.params.GenesisBlock, l.params.EpochDuration)
	if err != nil {
		l.clock = nil
		return
	}
	l.clock = clock
}

func (l *Ledger) Params() *Params {
	return l.params.copy()
}

// Active reports whether an epoch regime (genesis + duration) is configured.
func (l *Ledger) Active() bool {
	return l.clock != nil
}

func (l *Ledger) Clock() *epoch.Clock {
	return l.clock
}

// CurrentEpoch returns the epoch a call landing at block would run in.
func (l *Ledger) CurrentEpoch(block uint64) (uint64, error) {
	if !l.Active() {
		return 0, ErrNoActiveStakeRegime
	}
	e, err := l.clock.Current(block)
	if err != nil {
		if errors.Is(err, epoch.ErrInvalidRange) {
			return 0, ErrInvalidRange
		}
		return 0, err
	}
	return e, nil
}

// EpochOf is the view form of the epoch clock using the ledger's duration.
func (l *Ledger) EpochOf(fromBlock uint64, toBlock uint64) (uint64, error) {
	if !l.Active() {
		return 0, ErrNoActiveStakeRegime
	}
	e, err := epoch.Of(fromBlock, toBlock, l.params.EpochDuration)
	if errors.Is(err, epoch.ErrInvalidRange) {
		return 0, ErrInvalidRange
	}
	return e, err
}

// ConfigureEpochs sets genesis and duration. Only allowed before any state exists.
func (l *Ledger) ConfigureEpochs(call Call, genesisBlock uint64, duration uint64) error {
	if !l.guard.IsGovernance(call.Caller) {
		return ErrNotGovernance
	}
	if duration == 0 {
		return ErrNoActiveStakeRegime
	}
	if l.participants.Len() > 0 || l.rewardBuckets.Len() > 0 || l.totalWeights.Len() > 0 {
		return ErrRegimeLocked
	}
	l.journalGlobals()
	l.params.GenesisBlock = genesisBlock
	l.params.EpochDuration = duration
	l.resetClock()
	return nil
}

// Snapshot returns an identifier for the current state.
func (l *Ledger) Snapshot() int {
	return l.journal.length()
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (l *Ledger) RevertToSnapshot(id int) {
	l.journal.revert(l, id)
}

// Commit clears the journal and returns the keys written since the last commit.
func (l *Ledger) Commit() *Changes {
	changes := l.ChangesSince(0)
	l.journal.reset()
	return changes
}

// ChangesSince returns the keys written after the snapshot without clearing
// the journal.
func (l *Ledger) ChangesSince(id int) *Changes {
	cs := newChangeSet()
	if id < l.journal.length() {
		for _, entry := range l.journal.entries[id:] {
			entry.record(cs)
		}
	}

	changes := &Changes{
		Globals:              cs.globals,
		RewardBuckets:        sortedEpochs(cs.buckets),
		TotalWeights:         sortedEpochs(cs.totals),
		Participants:         sortedAddresses(cs.participants),
		ParticipantSnapshots: make([]SnapshotKey, 0, len(cs.snapshots)),
		ClaimedTotals:        sortedAddresses(cs.claimedTotals),
	}
	for key := range cs.snapshots {
		changes.ParticipantSnapshots = append(changes.ParticipantSnapshots, key)
	}
	slices.SortFunc(changes.ParticipantSnapshots, func(a, b SnapshotKey) int {
		if c := a.Participant.Cmp(b.Participant); c != 0 {
			return c
		}
		return cmp.Compare(a.Epoch, b.Epoch)
	})
	return changes
}

// ------------------------------------------------------------------------
// journaled writes

func (l *Ledger) setRewardBucket(e uint64, amount *big.Int) {
	prev, existed := l.rewardBuckets.Set(e, amount)
	l.journal.append(bucketChange{epoch: e, prev: prev, existed: existed})
}

func (l *Ledger) setTotalWeight(e uint64, weight *big.Int) {
	prev, existed := l.totalWeights.Set(e, weight)
	l.journal.append(totalWeightChange{epoch: e, prev: prev, existed: existed})
}

func (l *Ledger) setParticipant(addr common.Address, rec *ParticipantRecord) {
	prev, _ := l.participants.Set(addr, rec)
	l.journal.append(participantChange{participant: addr, prev: prev})
}

func (l *Ledger) setParticipantWeight(addr common.Address, e uint64, weight *big.Int) {
	table, ok := l.participantWeights[addr]
	if !ok {
		table = NewSnapshotTable()
		l.participantWeights[addr] = table
	}
	prev, existed := table.Set(e, weight)
	l.journal.append(participantSnapshotChange{
		participant:  addr,
		epoch:        e,
		prev:         prev,
		existed:      existed,
		tableCreated: !ok,
	})
}

func (l *Ledger) setClaimedTotal(addr common.Address, amount *big.Int) {
	prev := l.claimedTotals[addr]
	l.claimedTotals[addr] = amount
	l.journal.append(claimedTotalChange{participant: addr, prev: prev})
}

func (l *Ledger) addClaimedTotal(addr common.Address, amount *big.Int) {
	l.setClaimedTotal(addr, new(big.Int).Add(l.ClaimedTotal(addr), amount))
}

func (l *Ledger) journalGlobals() {
	l.journal.append(globalsChange{
		prevParams:          l.params.copy(),
		prevTreasuryClaimed: l.treasuryLastClaimedEpoch,
		prevCallEpoch:       l.latestCallEpoch,
	})
}

func (l *Ledger) setTreasuryLastClaimedEpoch(e uint64) {
	l.journalGlobals()
	l.treasuryLastClaimedEpoch = e
}

func (l *Ledger) advanceCallEpoch(e uint64) {
	if e <= l.latestCallEpoch {
		return
	}
	l.journalGlobals()
	l.latestCallEpoch = e
}

// callEpoch resolves the epoch of a mutating call. Writes only ever touch the
// call's epoch and the one after it, so a call behind the newest epoch
// already used would leave later entries stale.
func (l *Ledger) callEpoch(block uint64) (uint64, error) {
	current, err := l.CurrentEpoch(block)
	if err != nil {
		return 0, err
	}
	if current < l.latestCallEpoch {
		return 0, ErrStaleBlock
	}
	return current, nil
}

// ------------------------------------------------------------------------
// views

// Participant returns a copy of the participant's record.
func (l *Ledger) Participant(addr common.Address) (*ParticipantRecord, bool) {
	rec, ok := l.participants.Get(addr)
	if !ok {
		return newParticipantRecord(), false
	}
	return rec.copy(), true
}

func (l *Ledger) ParticipantCount() int {
	return l.participants.Len()
}

func (l *Ledger) ClaimedTotal(addr common.Address) *big.Int {
	if v, ok := l.claimedTotals[addr]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) RewardBucket(e uint64) *big.Int {
	if v, ok := l.rewardBuckets.Get(e); ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) TotalWeightAt(e uint64) *big.Int {
	return new(big.Int).Set(l.totalWeights.At(e))
}

func (l *Ledger) WeightAt(addr common.Address, e uint64) *big.Int {
	table, ok := l.participantWeights[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(table.At(e))
}

func (l *Ledger) TreasuryLastClaimedEpoch() uint64 {
	return l.treasuryLastClaimedEpoch
}

func (l *Ledger) LatestCallEpoch() uint64 {
	return l.latestCallEpoch
}

// LastClaimedEpoch is the last epoch the participant has been paid for.
func (l *Ledger) LastClaimedEpoch(addr common.Address) uint64 {
	rec, ok := l.participants.Get(addr)
	if !ok {
		return 0
	}
	return l.lastClaimedEpoch(rec)
}

func (l *Ledger) lastClaimedEpoch(rec *ParticipantRecord) uint64 {
	if !l.Active() || rec.LastClaimedBlock < l.params.GenesisBlock {
		return 0
	}
	e, err := l.clock.Current(rec.LastClaimedBlock)
	if err != nil {
		return 0
	}
	return e
}

// CheckWeightClosure reports whether the participant weights at epoch e sum
// to the recorded total weight.
func (l *Ledger) CheckWeightClosure(e uint64) (bool, *big.Int, *big.Int) {
	sum := big.NewInt(0)
	for _, table := range l.participantWeights {
		sum.Add(sum, table.At(e))
	}
	total := l.totalWeights.At(e)
	return sum.Cmp(total) == 0, sum, new(big.Int).Set(total)
}

// Liabilities is what the pool owes: staked principal plus deposited fees not
// yet paid out.
func (l *Ledger) Liabilities() *big.Int {
	owed := big.NewInt(0)
	for p := l.participants.Oldest(); p != nil; p = p.Next() {
		owed.Add(owed, p.Value.Principal)
	}
	for p := l.rewardBuckets.entries.Oldest(); p != nil; p = p.Next() {
		owed.Add(owed, p.Value)
	}
	for _, claimed := range l.claimedTotals {
		owed.Sub(owed, claimed)
	}
	return owed
}

// LatestEpoch is the highest epoch any table has an entry for.
func (l *Ledger) LatestEpoch() uint64 {
	latest := uint64(0)
	if e, _, ok := l.rewardBuckets.Newest(); ok && e > latest {
		latest = e
	}
	if e, _, ok := l.totalWeights.Newest(); ok && e > latest {
		latest = e
	}
	for _, table := range l.participantWeights {
		if e, _, ok := table.Newest(); ok && e > latest {
			latest = e
		}
	}
	return latest
}

func sortedEpochs(set map[uint64]struct{}) []uint64 {
	epochs := make([]uint64, 0, len(set))
	for e := range set {
		epochs = append(epochs, e)
	}
	slices.Sort(epochs)
	return epochs
}

func sortedAddresses(set map[common.Address]struct{}) []common.Address {
	addrs := make([]common.Address, 0, len(set))
	for a := range set {
		addrs = append(addrs, a)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	return addrs
}
