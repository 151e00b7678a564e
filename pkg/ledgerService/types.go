package ledgerService

import (
	"context"
	"math/big"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

type CallKind string

var (
	CallKind_Stake                       CallKind = "stake"
	CallKind_Unstake                     CallKind = "unstake"
	CallKind_HarvestAll                  CallKind = "harvestAll"
	CallKind_HarvestPaginated            CallKind = "harvestPaginated"
	CallKind_DaoHarvestPaginated         CallKind = "daoHarvestPaginated"
	CallKind_DepositFees                 CallKind = "depositFees"
	CallKind_ConfigureEpochs             CallKind = "configureEpochs"
	CallKind_MigrateEpochs               CallKind = "migrateEpochs"
	CallKind_MigrateParticipants         CallKind = "migrateParticipants"
	CallKind_MigrateParticipantSnapshots CallKind = "migrateParticipantSnapshots"
	CallKind_MigrateTreasury             CallKind = "migrateTreasury"

	// CallKind_View runs a read-only function against committed state.
	CallKind_View CallKind = "view"
)

func (k CallKind) mutates() bool {
	return k != CallKind_View
}

type CallData struct {
	Kind   CallKind
	Caller common.Address

	Amount *big.Int
	Till   uint64

	GenesisBlock  uint64
	EpochDuration uint64

	Epochs       *ledger.EpochBatch
	Participants *ledger.ParticipantBatch
	Snapshots    *ledger.SnapshotBatch
	Treasury     *ledger.TreasuryState

	View func(l *ledger.Ledger) error
}

type CallMessage struct {
	Ctx          context.Context
	Data         *CallData
	ResponseChan chan *CallResponse
}

// CallResult is what a committed call produced.
type CallResult struct {
	CallId  string
	Block   uint64
	Receipt *ledger.Receipt
	Events  []*storage.LedgerEvent
}

type CallResponse struct {
	Data  *CallResult
	Error error
}

// ParticipantView is a participant's record together with its claim state.
type ParticipantView struct {
	Address          common.Address
	Record           *ledger.ParticipantRecord
	Exists           bool
	ClaimedTotal     *big.Int
	PendingReward    *big.Int
	LastClaimedEpoch uint64
	CurrentEpoch     uint64
}

type TreasuryView struct {
	Address          common.Address
	ClaimedTotal     *big.Int
	PendingReward    *big.Int
	LastClaimedEpoch uint64
}

type EpochView struct {
	Epoch        uint64
	RewardBucket *big.Int
	TotalWeight  *big.Int
	Closed       bool
}

// callFrame is attached to the context handed to the bank while a call is
// open, so a call issued from a transfer callback runs inside it.
type callFrame struct {
	tx      *gorm.DB
	pending []*publication
}

type publication struct {
	callId  string
	kind    CallKind
	receipt *ledger.Receipt
}

type callFrameKey struct{}

func frameFromContext(ctx context.Context) *callFrame {
	if ctx == nil {
		return nil
	}
	frame, _ := ctx.Value(callFrameKey{}).(*callFrame)
	return frame
}
