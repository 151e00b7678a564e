package ledgerMigrator

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	"github.com/ethereum/go-ethereum/common"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Source is a retiring ledger being read out.
type Source interface {
	Params(ctx context.Context) (*ledger.Params, error)
	LatestEpoch(ctx context.Context) (uint64, error)
	ParticipantCount(ctx context.Context) (int, error)
	ExportEpochs(ctx context.Context, from uint64, to uint64) (*ledger.EpochBatch, error)
	// ExportParticipants pages through participants in a stable order,
	// resuming after the last address of the previous page.
	ExportParticipants(ctx context.Context, after *common.Address, limit int) (*ledger.ParticipantBatch, error)
	ExportSnapshotEpochs(ctx context.Context) ([]uint64, error)
	ExportParticipantSnapshots(ctx context.Context, e uint64) (*ledger.SnapshotBatch, error)
	ExportTreasury(ctx context.Context) (*ledger.TreasuryState, error)
}

// Target receives the batches read from a Source.
type Target interface {
	CheckParams(ctx context.Context, params *ledger.Params) error
	ImportEpochs(ctx context.Context, batch *ledger.EpochBatch) error
	ImportParticipants(ctx context.Context, batch *ledger.ParticipantBatch) error
	ImportParticipantSnapshots(ctx context.Context, batch *ledger.SnapshotBatch) error
	ImportTreasury(ctx context.Context, state *ledger.TreasuryState) error
	// Close flushes anything the target buffered.
	Close() error
}

type MigratorConfig struct {
	BatchSize    int
	DryRun       bool
	ShowProgress bool
}

type Summary struct {
	Epochs          uint64
	Participants    int
	SnapshotEpochs  int
	SnapshotEntries int
}

type Migrator struct {
	config *MigratorConfig
	logger *zap.Logger
}

func NewMigrator(cfg *MigratorConfig, l *zap.Logger) *Migrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Migrator{
		config: cfg,
		logger: l,
	}
}

// Run copies every epoch, participant, participant snapshot and the treasury
// state from source into target. Every batch is idempotent, so an interrupted
// run can simply be started again.
func (m *Migrator) Run(ctx context.Context, source Source, target Target) (*Summary, error) {
	summary := &Summary{}

	params, err := source.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read source params: %w", err)
	}
	if !m.config.DryRun {
		if err := target.CheckParams(ctx, params); err != nil {
			return nil, err
		}
	}

	latest, err := source.LatestEpoch(ctx)
	if err != nil {
		return nil, err
	}
	participantCount, err := source.ParticipantCount(ctx)
	if err != nil {
		return nil, err
	}
	snapshotEpochs, err := source.ExportSnapshotEpochs(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.Sugar().Infow("Starting ledger migration",
		zap.Uint64("latestEpoch", latest),
		zap.Int("participants", participantCount),
		zap.Int("snapshotEpochs", len(snapshotEpochs)),
		zap.Int("batchSize", m.config.BatchSize),
		zap.Bool("dryRun", m.config.DryRun),
	)

	bar := m.newBar(int64(latest)+int64(participantCount)+int64(len(snapshotEpochs))+1, "migrating ledger")
	batchSize := uint64(m.config.BatchSize)

	for from := uint64(1); from <= latest; from += batchSize {
		to := min(from+batchSize-1, latest)
		batch, err := source.ExportEpochs(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to export epochs %d-%d: %w", from, to, err)
		}
		if !m.config.DryRun {
			if err := target.ImportEpochs(ctx, batch); err != nil {
				return nil, fmt.Errorf("failed to import epochs %d-%d: %w", from, to, err)
			}
		}
		summary.Epochs += to - from + 1
		m.advance(bar, int(to-from+1))
	}

	var after *common.Address
	for summary.Participants < participantCount {
		batch, err := source.ExportParticipants(ctx, after, m.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to export participants after %s: %w", cursorString(after), err)
		}
		if batch.Len() == 0 {
			break
		}
		if !m.config.DryRun {
			if err := target.ImportParticipants(ctx, batch); err != nil {
				return nil, fmt.Errorf("failed to import participants after %s: %w", cursorString(after), err)
			}
		}
		summary.Participants += batch.Len()
		m.advance(bar, batch.Len())
		last := batch.Addresses[batch.Len()-1]
		after = &last
	}

	for _, e := range snapshotEpochs {
		batch, err := source.ExportParticipantSnapshots(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("failed to export snapshots of epoch %d: %w", e, err)
		}
		for _, chunk := range chunkSnapshots(batch, m.config.BatchSize) {
			if !m.config.DryRun {
				if err := target.ImportParticipantSnapshots(ctx, chunk); err != nil {
					return nil, fmt.Errorf("failed to import snapshots of epoch %d: %w", e, err)
				}
			}
			summary.SnapshotEntries += len(chunk.Addresses)
		}
		summary.SnapshotEpochs++
		m.advance(bar, 1)
	}

	treasury, err := source.ExportTreasury(ctx)
	if err != nil {
		return nil, err
	}
	if !m.config.DryRun {
		if err := target.ImportTreasury(ctx, treasury); err != nil {
			return nil, fmt.Errorf("failed to import treasury state: %w", err)
		}
		if err := target.Close(); err != nil {
			return nil, err
		}
	}
	m.advance(bar, 1)

	m.logger.Sugar().Infow("Ledger migration complete",
		zap.Uint64("epochs", summary.Epochs),
		zap.Int("participants", summary.Participants),
		zap.Int("snapshotEpochs", summary.SnapshotEpochs),
		zap.Int("snapshotEntries", summary.SnapshotEntries),
	)
	return summary, nil
}

func (m *Migrator) newBar(total int64, description string) *progressbar.ProgressBar {
	if !m.config.ShowProgress {
		return nil
	}
	return progressbar.Default(total, description)
}

func (m *Migrator) advance(bar *progressbar.ProgressBar, n int) {
	if bar == nil {
		return
	}
	_ = bar.Add(n)
}

func cursorString(after *common.Address) string {
	if after == nil {
		return "start"
	}
	return after.Hex()
}

func chunkSnapshots(batch *ledger.SnapshotBatch, size int) []*ledger.SnapshotBatch {
	chunks := make([]*ledger.SnapshotBatch, 0)
	for start := 0; start < len(batch.Addresses); start += size {
		end := min(start+size, len(batch.Addresses))
		chunks = append(chunks, &ledger.SnapshotBatch{
			Epoch:         batch.Epoch,
			Addresses:     batch.Addresses[start:end],
			Weights:       batch.Weights[start:end],
			ClaimedTotals: batch.ClaimedTotals[start:end],
		})
	}
	return chunks
}

// ServiceTarget imports into a running ledger service as governance.
type ServiceTarget struct {
	Service *ledgerService.Service
	Caller  common.Address
}

func (t *ServiceTarget) CheckParams(ctx context.Context, params *ledger.Params) error {
	return t.Service.View(ctx, func(l *ledger.Ledger) error {
		return l.CheckParams(params)
	})
}

func (t *ServiceTarget) ImportEpochs(ctx context.Context, batch *ledger.EpochBatch) error {
	_, err := t.Service.MigrateEpochs(ctx, t.Caller, batch)
	return err
}

func (t *ServiceTarget) ImportParticipants(ctx context.Context, batch *ledger.ParticipantBatch) error {
	_, err := t.Service.MigrateParticipants(ctx, t.Caller, batch)
	return err
}

func (t *ServiceTarget) ImportParticipantSnapshots(ctx context.Context, batch *ledger.SnapshotBatch) error {
	_, err := t.Service.MigrateParticipantSnapshots(ctx, t.Caller, batch)
	return err
}

func (t *ServiceTarget) ImportTreasury(ctx context.Context, state *ledger.TreasuryState) error {
	_, err := t.Service.MigrateTreasury(ctx, t.Caller, state)
	return err
}

func (t *ServiceTarget) Close() error {
	return nil
}
