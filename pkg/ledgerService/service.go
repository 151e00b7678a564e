package ledgerService

import (
	"context"
	"math/big"
	"sync"

	"github.com/Layr-Labs/feeledger/internal/metrics"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/clients/ethereum"
	"github.com/Layr-Labs/feeledger/pkg/eventBus"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/storage"
	"github.com/Layr-Labs/feeledger/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service is the only writer of a ledger. Every call, reads included, runs on
// a single queue so callers always observe committed state.
type Service struct {
	ledger      *ledger.Ledger
	store       storage.LedgerStore
	bank        token.Bank
	blocks      ethereum.BlockSource
	eventBus    *eventBus.EventBus
	metricsSink *metrics.MetricsSink
	logger      *zap.Logger

	queue     chan *CallMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewService(
	l *ledger.Ledger,
	store storage.LedgerStore,
	bank token.Bank,
	blocks ethereum.BlockSource,
	eb *eventBus.EventBus,
	ms *metrics.MetricsSink,
	logger *zap.Logger,
) *Service {
	return &Service{
		ledger:      l,
		store:       store,
		bank:        bank,
		blocks:      blocks,
		eventBus:    eb,
		metricsSink: ms,
		logger:      logger,
		// allow the queue to buffer up to 100 calls
		queue: make(chan *CallMessage, 100),
		done:  make(chan struct{}),
	}
}

// OpenLedger restores the ledger persisted in store, or creates and persists a
// new one from params when the store is empty. Persisted parameters win over
// params.
func OpenLedger(params *ledger.Params, guard access.Guard, store storage.LedgerStore, l *zap.Logger) (*ledger.Ledger, error) {
	stored, found, err := store.LoadParams()
	if err != nil {
		return nil, err
	}
	if !found {
		lg := ledger.NewLedger(params, guard, l)
		if err := store.SaveParams(lg.Params(), 0); err != nil {
			return nil, err
		}
		l.Sugar().Infow("Created new ledger",
			zap.Uint64("genesisBlock", params.GenesisBlock),
			zap.Uint64("epochDuration", params.EpochDuration),
		)
		return lg, nil
	}

	if stored.GenesisBlock != params.GenesisBlock || stored.EpochDuration != params.EpochDuration {
		l.Sugar().Warnw("Configured epoch regime differs from the persisted one, using persisted",
			zap.Uint64("persistedGenesisBlock", stored.GenesisBlock),
			zap.Uint64("persistedEpochDuration", stored.EpochDuration),
			zap.Uint64("configuredGenesisBlock", params.GenesisBlock),
			zap.Uint64("configuredEpochDuration", params.EpochDuration),
		)
	}
	lg := ledger.NewLedger(stored, guard, l)
	if err := store.Load(lg); err != nil {
		return nil, pkgErrors.Wrap(err, "failed to restore ledger")
	}
	l.Sugar().Infow("Restored ledger",
		zap.Int("participants", lg.ParticipantCount()),
		zap.Uint64("latestEpoch", lg.LatestEpoch()),
	)
	return lg, nil
}

// Start begins processing calls in the background.
func (s *Service) Start() {
	go s.Process()
}

func (s *Service) Stake(ctx context.Context, caller common.Address, amount *big.Int) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_Stake, Caller: caller, Amount: amount})
}

func (s *Service) Unstake(ctx context.Context, caller common.Address) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_Unstake, Caller: caller})
}

func (s *Service) HarvestAll(ctx context.Context, caller common.Address) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_HarvestAll, Caller: caller})
}

func (s *Service) HarvestPaginated(ctx context.Context, caller common.Address, till uint64) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_HarvestPaginated, Caller: caller, Till: till})
}

func (s *Service) DaoHarvestPaginated(ctx context.Context, caller common.Address, till uint64) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_DaoHarvestPaginated, Caller: caller, Till: till})
}

func (s *Service) DepositFees(ctx context.Context, caller common.Address, amount *big.Int) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_DepositFees, Caller: caller, Amount: amount})
}

func (s *Service) ConfigureEpochs(ctx context.Context, caller common.Address, genesisBlock uint64, duration uint64) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{
		Kind:          CallKind_ConfigureEpochs,
		Caller:        caller,
		GenesisBlock:  genesisBlock,
		EpochDuration: duration,
	})
}

func (s *Service) MigrateEpochs(ctx context.Context, caller common.Address, batch *ledger.EpochBatch) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_MigrateEpochs, Caller: caller, Epochs: batch})
}

func (s *Service) MigrateParticipants(ctx context.Context, caller common.Address, batch *ledger.ParticipantBatch) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_MigrateParticipants, Caller: caller, Participants: batch})
}

func (s *Service) MigrateParticipantSnapshots(ctx context.Context, caller common.Address, batch *ledger.SnapshotBatch) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_MigrateParticipantSnapshots, Caller: caller, Snapshots: batch})
}

func (s *Service) MigrateTreasury(ctx context.Context, caller common.Address, state *ledger.TreasuryState) (*CallResult, error) {
	return s.enqueueAndWait(ctx, &CallData{Kind: CallKind_MigrateTreasury, Caller: caller, Treasury: state})
}

// View runs fn against committed ledger state. fn must not keep l.
func (s *Service) View(ctx context.Context, fn func(l *ledger.Ledger) error) error {
	_, err := s.enqueueAndWait(ctx, &CallData{Kind: CallKind_View, View: fn})
	return err
}

func (s *Service) CurrentBlock(ctx context.Context) (uint64, error) {
	return s.blocks.LatestBlock(ctx)
}

func (s *Service) CurrentEpoch(ctx context.Context) (uint64, error) {
	block, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	var current uint64
	err = s.View(ctx, func(l *ledger.Ledger) error {
		var err error
		current, err = l.CurrentEpoch(block)
		return err
	})
	return current, err
}

func (s *Service) EpochOf(ctx context.Context, fromBlock uint64, toBlock uint64) (uint64, error) {
	var e uint64
	err := s.View(ctx, func(l *ledger.Ledger) error {
		var err error
		e, err = l.EpochOf(fromBlock, toBlock)
		return err
	})
	return e, err
}

func (s *Service) Params(ctx context.Context) (*ledger.Params, error) {
	var params *ledger.Params
	err := s.View(ctx, func(l *ledger.Ledger) error {
		params = l.Params()
		return nil
	})
	return params, err
}

func (s *Service) Participant(ctx context.Context, addr common.Address) (*ParticipantView, error) {
	block, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	view := &ParticipantView{Address: addr}
	err = s.View(ctx, func(l *ledger.Ledger) error {
		view.Record, view.Exists = l.Participant(addr)
		view.ClaimedTotal = l.ClaimedTotal(addr)
		view.LastClaimedEpoch = l.LastClaimedEpoch(addr)
		view.PendingReward = big.NewInt(0)
		current, err := l.CurrentEpoch(block)
		if err != nil {
			// before genesis nothing is pending
			return nil
		}
		view.CurrentEpoch = current
		pending, err := l.PendingReward(addr, block)
		if err != nil {
			return err
		}
		view.PendingReward = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) Treasury(ctx context.Context) (*TreasuryView, error) {
	block, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	view := &TreasuryView{}
	err = s.View(ctx, func(l *ledger.Ledger) error {
		view.Address = l.Params().TreasuryAddress
		view.ClaimedTotal = l.ClaimedTotal(view.Address)
		view.LastClaimedEpoch = l.TreasuryLastClaimedEpoch()
		view.PendingReward = big.NewInt(0)
		if _, err := l.CurrentEpoch(block); err != nil {
			return nil
		}
		pending, err := l.PendingTreasury(block)
		if err != nil {
			return err
		}
		view.PendingReward = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) Epoch(ctx context.Context, e uint64) (*EpochView, error) {
	block, err := s.blocks.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	view := &EpochView{Epoch: e}
	err = s.View(ctx, func(l *ledger.Ledger) error {
		view.RewardBucket = l.RewardBucket(e)
		view.TotalWeight = l.TotalWeightAt(e)
		if current, err := l.CurrentEpoch(block); err == nil {
			view.Closed = e < current
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CheckWeightClosure reports whether participant weights at e add up to the
// recorded total.
func (s *Service) CheckWeightClosure(ctx context.Context, e uint64) (bool, error) {
	var closed bool
	err := s.View(ctx, func(l *ledger.Ledger) error {
		var sum, total *big.Int
		closed, sum, total = l.CheckWeightClosure(e)
		if !closed {
			s.logger.Sugar().Warnw("Weight closure violated",
				zap.Uint64("epoch", e),
				zap.String("sum", sum.String()),
				zap.String("total", total.String()),
			)
		}
		return nil
	})
	return closed, err
}

func (s *Service) ListEvents(participant string, limit int) ([]*storage.LedgerEvent, error) {
	return s.store.ListEvents(participant, limit)
}
