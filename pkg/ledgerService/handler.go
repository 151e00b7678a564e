package ledgerService

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/feeledger/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/storage"
	"github.com/google/uuid"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) processMessage(msg *CallMessage) *CallResponse {
	if !msg.Data.Kind.mutates() {
		if msg.Data.View == nil {
			return &CallResponse{Error: fmt.Errorf("view call without a view function")}
		}
		return &CallResponse{Data: &CallResult{}, Error: msg.Data.View(s.ledger)}
	}

	start := time.Now()
	result, err := s.execute(msg.Ctx, msg.Data)
	s.recordCall(msg.Data.Kind, err, time.Since(start))

	if err != nil {
		if ledger.IsRevertErr(err) {
			s.logger.Sugar().Debugw("Ledger call reverted",
				zap.String("kind", string(msg.Data.Kind)),
				zap.String("caller", msg.Data.Caller.Hex()),
				zap.Error(err),
			)
		} else {
			s.logger.Sugar().Errorw("Ledger call failed",
				zap.String("kind", string(msg.Data.Kind)),
				zap.String("caller", msg.Data.Caller.Hex()),
				zap.Error(err),
			)
		}
		return &CallResponse{Error: err}
	}
	return &CallResponse{Data: result}
}

// execute applies one call. The ledger is updated and persisted before any
// token moves; a failure at any step reverts both the ledger and the database.
func (s *Service) execute(ctx context.Context, data *CallData) (*CallResult, error) {
	block, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		return nil, pkgErrors.Wrap(err, "failed to get block height")
	}
	call := ledger.Call{Caller: data.Caller, Block: block}
	callId := uuid.NewString()
	parent := frameFromContext(ctx)
	snapshot := s.ledger.Snapshot()

	frame := &callFrame{}
	var receipt *ledger.Receipt
	var events []*storage.LedgerEvent

	run := func(tx *gorm.DB) error {
		frame.tx = tx

		r, err := s.apply(call, data)
		if err != nil {
			return err
		}
		receipt = r

		if err := s.store.Persist(tx, s.ledger, s.ledger.ChangesSince(snapshot)); err != nil {
			return err
		}
		events, err = s.store.InsertEvents(tx, callId, receipt.Events)
		if err != nil {
			return err
		}
		return s.transfer(context.WithValue(ctx, callFrameKey{}, frame), receipt)
	}

	if parent != nil {
		err = parent.tx.Transaction(run)
	} else {
		err = s.store.Transaction(run)
	}
	if err != nil {
		s.ledger.RevertToSnapshot(snapshot)
		return nil, err
	}

	publications := append([]*publication{{callId: callId, kind: data.Kind, receipt: receipt}}, frame.pending...)
	if parent != nil {
		parent.pending = append(parent.pending, publications...)
	} else {
		s.ledger.Commit()
		s.publish(publications)
		s.recordState(block)
	}

	return &CallResult{
		CallId:  callId,
		Block:   block,
		Receipt: receipt,
		Events:  events,
	}, nil
}

func (s *Service) apply(call ledger.Call, data *CallData) (*ledger.Receipt, error) {
	switch data.Kind {
	case CallKind_Stake:
		return s.ledger.Stake(call, data.Amount)
	case CallKind_Unstake:
		return s.ledger.Unstake(call)
	case CallKind_HarvestAll:
		return s.ledger.HarvestAll(call)
	case CallKind_HarvestPaginated:
		return s.ledger.HarvestPaginated(call, data.Till)
	case CallKind_DaoHarvestPaginated:
		return s.ledger.DaoHarvestPaginated(call, data.Till)
	case CallKind_DepositFees:
		return s.ledger.DepositFees(call, data.Amount)
	case CallKind_ConfigureEpochs:
		if err := s.ledger.ConfigureEpochs(call, data.GenesisBlock, data.EpochDuration); err != nil {
			return nil, err
		}
		return emptyReceipt(call), nil
	case CallKind_MigrateEpochs:
		return s.ledger.MigrateEpochs(call, data.Epochs)
	case CallKind_MigrateParticipants:
		return s.ledger.MigrateParticipants(call, data.Participants)
	case CallKind_MigrateParticipantSnapshots:
		return s.ledger.MigrateParticipantSnapshots(call, data.Snapshots)
	case CallKind_MigrateTreasury:
		return s.ledger.MigrateTreasury(call, data.Treasury)
	default:
		return nil, fmt.Errorf("unknown call kind %s", data.Kind)
	}
}

func emptyReceipt(call ledger.Call) *ledger.Receipt {
	return &ledger.Receipt{
		Participant: call.Caller,
		Reward:      big.NewInt(0),
		Pull:        big.NewInt(0),
		Payout:      big.NewInt(0),
		Events:      make([]*ledger.Event, 0),
	}
}

func (s *Service) transfer(ctx context.Context, receipt *ledger.Receipt) error {
	if receipt.Pull.Sign() > 0 {
		if err := s.bank.Pull(ctx, receipt.Participant, receipt.Pull); err != nil {
			return pkgErrors.Wrapf(err, "failed to pull %s from %s", receipt.Pull, receipt.Participant.Hex())
		}
	}
	if receipt.Payout.Sign() > 0 {
		if err := s.bank.Push(ctx, receipt.Participant, receipt.Payout); err != nil {
			return pkgErrors.Wrapf(err, "failed to pay %s to %s", receipt.Payout, receipt.Participant.Hex())
		}
	}
	return nil
}

func (s *Service) publish(publications []*publication) {
	if s.eventBus == nil {
		return
	}
	for _, p := range publications {
		s.eventBus.PublishLedgerEvents(p.callId, string(p.kind), p.receipt.Epoch, p.receipt.Events)
	}
}

func (s *Service) recordCall(kind CallKind, err error, duration time.Duration) {
	if s.metricsSink == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if ledger.IsRevertErr(err) {
			outcome = "revert"
		}
	}
	_ = s.metricsSink.Incr(metricsTypes.Metric_Incr_LedgerCall, []metricsTypes.MetricsLabel{
		{Name: "kind", Value: string(kind)},
		{Name: "outcome", Value: outcome},
	}, 1)
	_ = s.metricsSink.Timing(metricsTypes.Metric_Timing_LedgerCallDuration, duration, []metricsTypes.MetricsLabel{
		{Name: "kind", Value: string(kind)},
	})
}

func (s *Service) recordState(block uint64) {
	if s.metricsSink == nil {
		return
	}
	_ = s.metricsSink.Gauge(metricsTypes.Metric_Gauge_ChainBlockHeight, float64(block), nil)
	_ = s.metricsSink.Gauge(metricsTypes.Metric_Gauge_Participants, float64(s.ledger.ParticipantCount()), nil)
	if current, err := s.ledger.CurrentEpoch(block); err == nil {
		_ = s.metricsSink.Gauge(metricsTypes.Metric_Gauge_CurrentEpoch, float64(current), nil)
	}
}
