package ledgerService

import (
	"context"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// The export views read committed state for a migration out of this ledger.

func (s *Service) LatestEpoch(ctx context.Context) (uint64, error) {
	var latest uint64
	err := s.View(ctx, func(l *ledger.Ledger) error {
		latest = l.LatestEpoch()
		return nil
	})
	return latest, err
}

func (s *Service) ParticipantCount(ctx context.Context) (int, error) {
	var count int
	err := s.View(ctx, func(l *ledger.Ledger) error {
		count = l.ParticipantCount()
		return nil
	})
	return count, err
}

func (s *Service) ExportEpochs(ctx context.Context, from uint64, to uint64) (*ledger.EpochBatch, error) {
	var batch *ledger.EpochBatch
	err := s.View(ctx, func(l *ledger.Ledger) error {
		var err error
		batch, err = l.ExportEpochs(from, to)
		return err
	})
	return batch, err
}

func (s *Service) ExportParticipants(ctx context.Context, after *common.Address, limit int) (*ledger.ParticipantBatch, error) {
	var batch *ledger.ParticipantBatch
	err := s.View(ctx, func(l *ledger.Ledger) error {
		var err error
		batch, err = l.ExportParticipants(after, limit)
		return err
	})
	return batch, err
}

func (s *Service) ExportSnapshotEpochs(ctx context.Context) ([]uint64, error) {
	var epochs []uint64
	err := s.View(ctx, func(l *ledger.Ledger) error {
		epochs = l.ExportSnapshotEpochs()
		return nil
	})
	return epochs, err
}

func (s *Service) ExportParticipantSnapshots(ctx context.Context, e uint64) (*ledger.SnapshotBatch, error) {
	var batch *ledger.SnapshotBatch
	err := s.View(ctx, func(l *ledger.Ledger) error {
		batch = l.ExportParticipantSnapshots(e)
		return nil
	})
	return batch, err
}

func (s *Service) ExportTreasury(ctx context.Context) (*ledger.TreasuryState, error) {
	var state *ledger.TreasuryState
	err := s.View(ctx, func(l *ledger.Ledger) error {
		state = l.ExportTreasury()
		return nil
	})
	return state, err
}
