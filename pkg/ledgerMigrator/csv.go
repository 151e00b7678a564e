package ledgerMigrator

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"slices"

	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gocarina/gocsv"
)

const (
	paramsFile       = "params.csv"
	epochsFile       = "epochs.csv"
	participantsFile = "participants.csv"
	snapshotsFile    = "participant_snapshots.csv"
	treasuryFile     = "treasury.csv"
)

type ParamsRow struct {
	GenesisBlock    uint64 `csv:"genesis_block"`
	EpochDuration   uint64 `csv:"epoch_duration"`
	MinimumStake    string `csv:"minimum_stake"`
	TreasuryWeight  string `csv:"treasury_weight"`
	TreasuryAddress string `csv:"treasury_address"`
}

type EpochRow struct {
	Epoch        uint64 `csv:"epoch"`
	RewardBucket string `csv:"reward_bucket"`
	TotalWeight  string `csv:"total_weight"`
}

type ParticipantRow struct {
	Address          string `csv:"address"`
	Principal        string `csv:"principal"`
	Weight           string `csv:"weight"`
	LastStakeBlock   uint64 `csv:"last_stake_block"`
	LastClaimedBlock uint64 `csv:"last_claimed_block"`
}

type SnapshotRow struct {
	Epoch        uint64 `csv:"epoch"`
	Address      string `csv:"address"`
	Weight       string `csv:"weight"`
	ClaimedTotal string `csv:"claimed_total"`
}

type TreasuryRow struct {
	LastClaimedEpoch uint64 `csv:"last_claimed_epoch"`
	LatestCallEpoch  uint64 `csv:"latest_call_epoch"`
	ClaimedTotal     string `csv:"claimed_total"`
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount '%s'", s)
	}
	return v, nil
}

func writeRows[T any](dir string, name string, rows []*T) error {
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func readRows[T any](dir string, name string) ([]*T, error) {
	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	rows := make([]*T, 0)
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return rows, nil
}

// CsvTarget collects a migration into CSV files under Dir, written on Close.
type CsvTarget struct {
	Dir string

	params       []*ParamsRow
	epochs       []*EpochRow
	participants []*ParticipantRow
	snapshots    []*SnapshotRow
	treasury     []*TreasuryRow
}

func NewCsvTarget(dir string) (*CsvTarget, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &CsvTarget{Dir: dir}, nil
}

func (t *CsvTarget) CheckParams(ctx context.Context, params *ledger.Params) error {
	t.params = []*ParamsRow{{
		GenesisBlock:    params.GenesisBlock,
		EpochDuration:   params.EpochDuration,
		MinimumStake:    params.MinimumStake.String(),
		TreasuryWeight:  params.TreasuryWeight.String(),
		TreasuryAddress: params.TreasuryAddress.Hex(),
	}}
	return nil
}

func (t *CsvTarget) ImportEpochs(ctx context.Context, batch *ledger.EpochBatch) error {
	from := batch.FromEpoch()
	for i := range batch.RewardBuckets {
		t.epochs = append(t.epochs, &EpochRow{
			Epoch:        from + uint64(i),
			RewardBucket: batch.RewardBuckets[i].String(),
			TotalWeight:  batch.TotalWeights[i].String(),
		})
	}
	return nil
}

func (t *CsvTarget) ImportParticipants(ctx context.Context, batch *ledger.ParticipantBatch) error {
	for i, addr := range batch.Addresses {
		t.participants = append(t.participants, &ParticipantRow{
			Address:          addr.Hex(),
			Principal:        batch.Principals[i].String(),
			Weight:           batch.Weights[i].String(),
			LastStakeBlock:   batch.LastStakeBlocks[i],
			LastClaimedBlock: batch.LastClaimedBlocks[i],
		})
	}
	return nil
}

func (t *CsvTarget) ImportParticipantSnapshots(ctx context.Context, batch *ledger.SnapshotBatch) error {
	for i, addr := range batch.Addresses {
		t.snapshots = append(t.snapshots, &SnapshotRow{
			Epoch:        batch.Epoch,
			Address:      addr.Hex(),
			Weight:       batch.Weights[i].String(),
			ClaimedTotal: batch.ClaimedTotals[i].String(),
		})
	}
	return nil
}

func (t *CsvTarget) ImportTreasury(ctx context.Context, state *ledger.TreasuryState) error {
	t.treasury = []*TreasuryRow{{
		LastClaimedEpoch: state.LastClaimedEpoch,
		LatestCallEpoch:  state.LatestCallEpoch,
		ClaimedTotal:     state.ClaimedTotal.String(),
	}}
	return nil
}

func (t *CsvTarget) Close() error {
	if err := writeRows(t.Dir, paramsFile, t.params); err != nil {
		return err
	}
	if err := writeRows(t.Dir, epochsFile, t.epochs); err != nil {
		return err
	}
	if err := writeRows(t.Dir, participantsFile, t.participants); err != nil {
		return err
	}
	if err := writeRows(t.Dir, snapshotsFile, t.snapshots); err != nil {
		return err
	}
	return writeRows(t.Dir, treasuryFile, t.treasury)
}

// CsvSource reads a migration written by CsvTarget.
type CsvSource struct {
	params       *ledger.Params
	epochs       map[uint64]*EpochRow
	latest       uint64
	participants *ledger.ParticipantBatch
	snapshots    map[uint64]*ledger.SnapshotBatch
	treasury     *ledger.TreasuryState

	participantIndex map[common.Address]int
}

func NewCsvSource(dir string) (*CsvSource, error) {
	source := &CsvSource{
		epochs:       make(map[uint64]*EpochRow),
		participants: &ledger.ParticipantBatch{},
		snapshots:    make(map[uint64]*ledger.SnapshotBatch),

		participantIndex: make(map[common.Address]int),
	}

	paramsRows, err := readRows[ParamsRow](dir, paramsFile)
	if err != nil {
		return nil, err
	}
	if len(paramsRows) != 1 {
		return nil, fmt.Errorf("%s must hold exactly one row", paramsFile)
	}
	p := paramsRows[0]
	minimumStake, err := parseAmount(p.MinimumStake)
	if err != nil {
		return nil, err
	}
	treasuryWeight, err := parseAmount(p.TreasuryWeight)
	if err != nil {
		return nil, err
	}
	source.params = &ledger.Params{
		GenesisBlock:    p.GenesisBlock,
		EpochDuration:   p.EpochDuration,
		MinimumStake:    minimumStake,
		TreasuryWeight:  treasuryWeight,
		TreasuryAddress: common.HexToAddress(p.TreasuryAddress),
	}

	epochRows, err := readRows[EpochRow](dir, epochsFile)
	if err != nil {
		return nil, err
	}
	for _, row := range epochRows {
		source.epochs[row.Epoch] = row
		source.latest = max(source.latest, row.Epoch)
	}

	participantRows, err := readRows[ParticipantRow](dir, participantsFile)
	if err != nil {
		return nil, err
	}
	for _, row := range participantRows {
		principal, err := parseAmount(row.Principal)
		if err != nil {
			return nil, err
		}
		weight, err := parseAmount(row.Weight)
		if err != nil {
			return nil, err
		}
		b := source.participants
		addr := common.HexToAddress(row.Address)
		source.participantIndex[addr] = b.Len()
		b.Addresses = append(b.Addresses, addr)
		b.Principals = append(b.Principals, principal)
		b.Weights = append(b.Weights, weight)
		b.LastStakeBlocks = append(b.LastStakeBlocks, row.LastStakeBlock)
		b.LastClaimedBlocks = append(b.LastClaimedBlocks, row.LastClaimedBlock)
	}

	snapshotRows, err := readRows[SnapshotRow](dir, snapshotsFile)
	if err != nil {
		return nil, err
	}
	for _, row := range snapshotRows {
		weight, err := parseAmount(row.Weight)
		if err != nil {
			return nil, err
		}
		claimed, err := parseAmount(row.ClaimedTotal)
		if err != nil {
			return nil, err
		}
		b, ok := source.snapshots[row.Epoch]
		if !ok {
			b = &ledger.SnapshotBatch{Epoch: row.Epoch}
			source.snapshots[row.Epoch] = b
		}
		b.Addresses = append(b.Addresses, common.HexToAddress(row.Address))
		b.Weights = append(b.Weights, weight)
		b.ClaimedTotals = append(b.ClaimedTotals, claimed)
	}

	treasuryRows, err := readRows[TreasuryRow](dir, treasuryFile)
	if err != nil {
		return nil, err
	}
	if len(treasuryRows) != 1 {
		return nil, fmt.Errorf("%s must hold exactly one row", treasuryFile)
	}
	claimed, err := parseAmount(treasuryRows[0].ClaimedTotal)
	if err != nil {
		return nil, err
	}
	source.treasury = &ledger.TreasuryState{
		LastClaimedEpoch: treasuryRows[0].LastClaimedEpoch,
		LatestCallEpoch:  treasuryRows[0].LatestCallEpoch,
		ClaimedTotal:     claimed,
	}
	return source, nil
}

func (s *CsvSource) Params(ctx context.Context) (*ledger.Params, error) {
	return s.params, nil
}

func (s *CsvSource) LatestEpoch(ctx context.Context) (uint64, error) {
	return s.latest, nil
}

func (s *CsvSource) ParticipantCount(ctx context.Context) (int, error) {
	return s.participants.Len(), nil
}

// ExportEpochs fails when the files skip an epoch in [from, to].
func (s *CsvSource) ExportEpochs(ctx context.Context, from uint64, to uint64) (*ledger.EpochBatch, error) {
	if from == 0 || to < from {
		return nil, ledger.ErrInvalidBatch
	}
	batch := &ledger.EpochBatch{UptoEpoch: to}
	for e := from; e <= to; e++ {
		row, ok := s.epochs[e]
		if !ok {
			return nil, fmt.Errorf("%s has no row for epoch %d", epochsFile, e)
		}
		bucket, err := parseAmount(row.RewardBucket)
		if err != nil {
			return nil, err
		}
		total, err := parseAmount(row.TotalWeight)
		if err != nil {
			return nil, err
		}
		batch.RewardBuckets = append(batch.RewardBuckets, bucket)
		batch.TotalWeights = append(batch.TotalWeights, total)
	}
	return batch, nil
}

func (s *CsvSource) ExportParticipants(ctx context.Context, after *common.Address, limit int) (*ledger.ParticipantBatch, error) {
	all := s.participants
	start := 0
	if after != nil {
		i, ok := s.participantIndex[*after]
		if !ok {
			return nil, fmt.Errorf("%s has no row for %s", participantsFile, after.Hex())
		}
		start = i + 1
	}
	end := min(start+limit, all.Len())
	return &ledger.ParticipantBatch{
		Addresses:         all.Addresses[start:end],
		Principals:        all.Principals[start:end],
		Weights:           all.Weights[start:end],
		LastStakeBlocks:   all.LastStakeBlocks[start:end],
		LastClaimedBlocks: all.LastClaimedBlocks[start:end],
	}, nil
}

func (s *CsvSource) ExportSnapshotEpochs(ctx context.Context) ([]uint64, error) {
	epochs := make([]uint64, 0, len(s.snapshots))
	for e := range s.snapshots {
		epochs = append(epochs, e)
	}
	slices.Sort(epochs)
	return epochs, nil
}

func (s *CsvSource) ExportParticipantSnapshots(ctx context.Context, e uint64) (*ledger.SnapshotBatch, error) {
	if b, ok := s.snapshots[e]; ok {
		return b, nil
	}
	return &ledger.SnapshotBatch{Epoch: e}, nil
}

func (s *CsvSource) ExportTreasury(ctx context.Context) (*ledger.TreasuryState, error) {
	return s.treasury, nil
}
