package rpcServer

import (
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/Layr-Labs/feeledger/pkg/storage"
)

// Amounts travel as base-10 integer strings.

type AmountRequest struct {
	Amount string `json:"amount"`
}

type TillRequest struct {
	Till uint64 `json:"till"`
}

type ConfigureEpochsRequest struct {
	GenesisBlock  uint64 `json:"genesisBlock"`
	EpochDuration uint64 `json:"epochDuration"`
}

type MigrateEpochsRequest struct {
	UptoEpoch     uint64   `json:"uptoEpoch"`
	RewardBuckets []string `json:"rewardBuckets"`
	TotalWeights  []string `json:"totalWeights"`
}

type MigrateParticipantsRequest struct {
	Addresses         []string `json:"addresses"`
	Principals        []string `json:"principals"`
	Weights           []string `json:"weights"`
	LastStakeBlocks   []uint64 `json:"lastStakeBlocks"`
	LastClaimedBlocks []uint64 `json:"lastClaimedBlocks"`
}

type MigrateSnapshotsRequest struct {
	Epoch         uint64   `json:"epoch"`
	Addresses     []string `json:"addresses"`
	Weights       []string `json:"weights"`
	ClaimedTotals []string `json:"claimedTotals"`
}

type MigrateTreasuryRequest struct {
	LastClaimedEpoch uint64 `json:"lastClaimedEpoch"`
	LatestCallEpoch  uint64 `json:"latestCallEpoch"`
	ClaimedTotal     string `json:"claimedTotal"`
}

type EventResponse struct {
	Name        string `json:"name"`
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
	Epoch       uint64 `json:"epoch"`
	Block       uint64 `json:"block"`
	FromEpoch   uint64 `json:"fromEpoch,omitempty"`
	ToEpoch     uint64 `json:"toEpoch,omitempty"`
}

type CallResponse struct {
	RequestId   string           `json:"requestId"`
	CallId      string           `json:"callId"`
	Block       uint64           `json:"block"`
	Epoch       uint64           `json:"epoch"`
	Participant string           `json:"participant"`
	Reward      string           `json:"reward"`
	Pull        string           `json:"pull"`
	Payout      string           `json:"payout"`
	Events      []*EventResponse `json:"events"`
}

type ErrorResponse struct {
	RequestId string `json:"requestId"`
	Error     string `json:"error"`
	Revert    bool   `json:"revert"`
}

type EpochResponse struct {
	Epoch uint64 `json:"epoch"`
}

type EpochDetailResponse struct {
	Epoch        uint64 `json:"epoch"`
	RewardBucket string `json:"rewardBucket"`
	TotalWeight  string `json:"totalWeight"`
	Closed       bool   `json:"closed"`
	WeightClosed bool   `json:"weightClosed"`
}

type ParticipantResponse struct {
	Address          string `json:"address"`
	Exists           bool   `json:"exists"`
	Principal        string `json:"principal"`
	Weight           string `json:"weight"`
	LastStakeBlock   uint64 `json:"lastStakeBlock"`
	LastClaimedBlock uint64 `json:"lastClaimedBlock"`
	LastClaimedEpoch uint64 `json:"lastClaimedEpoch"`
	ClaimedTotal     string `json:"claimedTotal"`
	PendingReward    string `json:"pendingReward"`
	CurrentEpoch     uint64 `json:"currentEpoch"`
}

type TreasuryResponse struct {
	Address          string `json:"address"`
	ClaimedTotal     string `json:"claimedTotal"`
	PendingReward    string `json:"pendingReward"`
	LastClaimedEpoch uint64 `json:"lastClaimedEpoch"`
}

type StoredEventResponse struct {
	CallId   string `json:"callId"`
	LogIndex uint64 `json:"logIndex"`
	EventResponse
}

type HealthResponse struct {
	Status string `json:"status"`
}

func convertCallResult(requestId string, res *ledgerService.CallResult) *CallResponse {
	receipt := res.Receipt
	events := make([]*EventResponse, 0, len(receipt.Events))
	for _, e := range receipt.Events {
		events = append(events, convertEvent(e))
	}
	return &CallResponse{
		RequestId:   requestId,
		CallId:      res.CallId,
		Block:       res.Block,
		Epoch:       receipt.Epoch,
		Participant: receipt.Participant.Hex(),
		Reward:      receipt.Reward.String(),
		Pull:        receipt.Pull.String(),
		Payout:      receipt.Payout.String(),
		Events:      events,
	}
}

func convertEvent(e *ledger.Event) *EventResponse {
	return &EventResponse{
		Name:        string(e.Name),
		Participant: e.Participant.Hex(),
		Amount:      e.Amount.String(),
		Epoch:       e.Epoch,
		Block:       e.Block,
		FromEpoch:   e.FromEpoch,
		ToEpoch:     e.ToEpoch,
	}
}

func convertStoredEvent(e *storage.LedgerEvent) *StoredEventResponse {
	return &StoredEventResponse{
		CallId:   e.CallId,
		LogIndex: e.LogIndex,
		EventResponse: EventResponse{
			Name:        e.Name,
			Participant: e.Participant,
			Amount:      e.Amount.String(),
			Epoch:       e.Epoch,
			Block:       e.BlockNumber,
			FromEpoch:   e.FromEpoch,
			ToEpoch:     e.ToEpoch,
		},
	}
}

func convertParticipantView(view *ledgerService.ParticipantView) *ParticipantResponse {
	return &ParticipantResponse{
		Address:          view.Address.Hex(),
		Exists:           view.Exists,
		Principal:        view.Record.Principal.String(),
		Weight:           view.Record.Weight.String(),
		LastStakeBlock:   view.Record.LastStakeBlock,
		LastClaimedBlock: view.Record.LastClaimedBlock,
		LastClaimedEpoch: view.LastClaimedEpoch,
		ClaimedTotal:     view.ClaimedTotal.String(),
		PendingReward:    view.PendingReward.String(),
		CurrentEpoch:     view.CurrentEpoch,
	}
}
