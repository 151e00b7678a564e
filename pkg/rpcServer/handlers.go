package rpcServer

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

type callFunc func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error)

// handleCall resolves the caller, runs the call and writes its receipt.
func (s *RpcServer) handleCall(w http.ResponseWriter, r *http.Request, fn callFunc) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := fn(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convertCallResult(requestIdFromContext(r.Context()), res))
}

func (s *RpcServer) Stake(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.Stake(ctx, caller, amount)
	})
}

func (s *RpcServer) Unstake(w http.ResponseWriter, r *http.Request) {
	s.handleCall(w, r, s.service.Unstake)
}

func (s *RpcServer) HarvestAll(w http.ResponseWriter, r *http.Request) {
	s.handleCall(w, r, s.service.HarvestAll)
}

func (s *RpcServer) HarvestPaginated(w http.ResponseWriter, r *http.Request) {
	var req TillRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.HarvestPaginated(ctx, caller, req.Till)
	})
}

func (s *RpcServer) DaoHarvestPaginated(w http.ResponseWriter, r *http.Request) {
	var req TillRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.DaoHarvestPaginated(ctx, caller, req.Till)
	})
}

func (s *RpcServer) DepositFees(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.DepositFees(ctx, caller, amount)
	})
}

func (s *RpcServer) ConfigureEpochs(w http.ResponseWriter, r *http.Request) {
	var req ConfigureEpochsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.ConfigureEpochs(ctx, caller, req.GenesisBlock, req.EpochDuration)
	})
}

func (s *RpcServer) MigrateEpochs(w http.ResponseWriter, r *http.Request) {
	var req MigrateEpochsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	buckets, err := parseAmounts(req.RewardBuckets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	totals, err := parseAmounts(req.TotalWeights)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batch := &ledger.EpochBatch{
		UptoEpoch:     req.UptoEpoch,
		RewardBuckets: buckets,
		TotalWeights:  totals,
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.MigrateEpochs(ctx, caller, batch)
	})
}

func (s *RpcServer) MigrateParticipants(w http.ResponseWriter, r *http.Request) {
	var req MigrateParticipantsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addrs, err := parseAddresses(req.Addresses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	principals, err := parseAmounts(req.Principals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	weights, err := parseAmounts(req.Weights)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batch := &ledger.ParticipantBatch{
		Addresses:         addrs,
		Principals:        principals,
		Weights:           weights,
		LastStakeBlocks:   req.LastStakeBlocks,
		LastClaimedBlocks: req.LastClaimedBlocks,
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.MigrateParticipants(ctx, caller, batch)
	})
}

func (s *RpcServer) MigrateSnapshots(w http.ResponseWriter, r *http.Request) {
	var req MigrateSnapshotsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addrs, err := parseAddresses(req.Addresses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	weights, err := parseAmounts(req.Weights)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	claimed, err := parseAmounts(req.ClaimedTotals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batch := &ledger.SnapshotBatch{
		Epoch:         req.Epoch,
		Addresses:     addrs,
		Weights:       weights,
		ClaimedTotals: claimed,
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.MigrateParticipantSnapshots(ctx, caller, batch)
	})
}

func (s *RpcServer) MigrateTreasury(w http.ResponseWriter, r *http.Request) {
	var req MigrateTreasuryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	claimed, err := parseAmount(req.ClaimedTotal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state := &ledger.TreasuryState{
		LastClaimedEpoch: req.LastClaimedEpoch,
		LatestCallEpoch:  req.LatestCallEpoch,
		ClaimedTotal:     claimed,
	}
	s.handleCall(w, r, func(ctx context.Context, caller common.Address) (*ledgerService.CallResult, error) {
		return s.service.MigrateTreasury(ctx, caller, state)
	})
}

// GetEpoch returns the epoch of toBlock counted from fromBlock, or the
// current epoch when no range is given.
func (s *RpcServer) GetEpoch(w http.ResponseWriter, r *http.Request) {
	from, hasFrom, err := parseUintParam(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, hasTo, err := parseUintParam(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var e uint64
	switch {
	case !hasFrom && !hasTo:
		e, err = s.service.CurrentEpoch(r.Context())
	case hasFrom && hasTo:
		e, err = s.service.EpochOf(r.Context(), from, to)
	default:
		err = invalidRequest("both from and to are required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &EpochResponse{Epoch: e})
}

func (s *RpcServer) GetEpochDetail(w http.ResponseWriter, r *http.Request) {
	e, err := strconv.ParseUint(mux.Vars(r)["epoch"], 10, 64)
	if err != nil {
		s.writeError(w, r, invalidRequest("invalid epoch '%s'", mux.Vars(r)["epoch"]))
		return
	}
	view, err := s.service.Epoch(r.Context(), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	closed, err := s.service.CheckWeightClosure(r.Context(), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &EpochDetailResponse{
		Epoch:        view.Epoch,
		RewardBucket: view.RewardBucket.String(),
		TotalWeight:  view.TotalWeight.String(),
		Closed:       view.Closed,
		WeightClosed: closed,
	})
}

func (s *RpcServer) GetParticipant(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.service.Participant(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convertParticipantView(view))
}

func (s *RpcServer) ListParticipantEvents(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, ok, err := parseUintParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok || limit == 0 || limit > 1000 {
		limit = 100
	}
	events, err := s.service.ListEvents(addr.Hex(), int(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]*StoredEventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, convertStoredEvent(e))
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *RpcServer) GetTreasury(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Treasury(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &TreasuryResponse{
		Address:          view.Address.Hex(),
		ClaimedTotal:     view.ClaimedTotal.String(),
		PendingReward:    view.PendingReward.String(),
		LastClaimedEpoch: view.LastClaimedEpoch,
	})
}

func (s *RpcServer) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, &HealthResponse{Status: "ok"})
}

