package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Params struct {
	GenesisBlock  uint64
	EpochDuration uint64
	MinimumStake  *big.Int
	// TreasuryWeight is added to every epoch's total weight when splitting a
	// bucket, so the treasury keeps a fixed share on top of stranded buckets
	// and rounding dust. Zero means the treasury only recovers remainders.
	TreasuryWeight  *big.Int
	TreasuryAddress common.Address
}

func (p *Params) copy() *Params {
	return &Params{
		GenesisBlock:    p.GenesisBlock,
		EpochDuration:   p.EpochDuration,
		MinimumStake:    new(big.Int).Set(p.MinimumStake),
		TreasuryWeight:  new(big.Int).Set(p.TreasuryWeight),
		TreasuryAddress: p.TreasuryAddress,
	}
}

// Call identifies who invokes an entry point and at which block height it lands.
type Call struct {
	Caller common.Address
	Block  uint64
}

type ParticipantRecord struct {
	Principal        *big.Int
	Weight           *big.Int
	LastStakeBlock   uint64
	LastClaimedBlock uint64
}

func newParticipantRecord() *ParticipantRecord {
	return &ParticipantRecord{
		Principal: big.NewInt(0),
		Weight:    big.NewInt(0),
	}
}

func (r *ParticipantRecord) copy() *ParticipantRecord {
	return &ParticipantRecord{
		Principal:        new(big.Int).Set(r.Principal),
		Weight:           new(big.Int).Set(r.Weight),
		LastStakeBlock:   r.LastStakeBlock,
		LastClaimedBlock: r.LastClaimedBlock,
	}
}

type EventName string

var (
	EventName_Staked         EventName = "Staked"
	EventName_Unstaked       EventName = "Unstaked"
	EventName_RewardsClaimed EventName = "RewardsClaimed"
	EventName_FeesDeposited  EventName = "FeesDeposited"
	EventName_LedgerMigrated EventName = "LedgerMigrated"
)

type Event struct {
	Name        EventName
	Participant common.Address
	Amount      *big.Int
	Epoch       uint64
	Block       uint64
	// FromEpoch and ToEpoch are set on RewardsClaimed
	FromEpoch uint64
	ToEpoch   uint64
}

// Receipt describes the token movements and events a successful call produced.
// The caller commits the ledger first and moves tokens second.
type Receipt struct {
	Participant common.Address
	Epoch       uint64
	Reward      *big.Int
	// Pull is taken from the participant, Payout is paid to the participant
	Pull   *big.Int
	Payout *big.Int
	Events []*Event
}

func newReceipt(participant common.Address, epoch uint64) *Receipt {
	return &Receipt{
		Participant: participant,
		Epoch:       epoch,
		Reward:      big.NewInt(0),
		Pull:        big.NewInt(0),
		Payout:      big.NewInt(0),
		Events:      make([]*Event, 0),
	}
}

type SnapshotKey struct {
	Participant common.Address
	Epoch       uint64
}

// Changes lists every key written since the last commit.
type Changes struct {
	Globals              bool
	RewardBuckets        []uint64
	TotalWeights         []uint64
	Participants         []common.Address
	ParticipantSnapshots []SnapshotKey
	ClaimedTotals        []common.Address
}

func (c *Changes) IsEmpty() bool {
	return !c.Globals &&
		len(c.RewardBuckets) == 0 &&
		len(c.TotalWeights) == 0 &&
		len(c.Participants) == 0 &&
		len(c.ParticipantSnapshots) == 0 &&
		len(c.ClaimedTotals) == 0
}
