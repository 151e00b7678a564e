package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CalcReward sums the participant's share of every funded epoch in [from, to].
// Only epochs with a bucket entry are visited; weights are read through
// forward cursors so the walk is linear in the number of table entries.
func (l *Ledger) CalcReward(addr common.Address, from uint64, to uint64) *big.Int {
	reward := big.NewInt(0)
	table, ok := l.participantWeights[addr]
	if !ok || from > to {
		return reward
	}

	participant := table.Cursor(from)
	total := l.totalWeights.Cursor(from)
	share := new(big.Int)
	l.rewardBuckets.Range(from, to, func(e uint64, bucket *big.Int) {
		denominator := l.denominator(total.At(e))
		if denominator.Sign() == 0 {
			return
		}
		share.Mul(bucket, participant.At(e))
		share.Quo(share, denominator)
		reward.Add(reward, share)
	})
	return reward
}

// treasuryShare is what is left of every bucket in [from, to] once each
// staker's floored share is taken out. An epoch without staker weight is
// handed to the treasury in full.
func (l *Ledger) treasuryShare(from uint64, to uint64) *big.Int {
	recovered := big.NewInt(0)
	if from > to {
		return recovered
	}

	total := l.totalWeights.Cursor(from)
	cursors := make(map[common.Address]*Cursor, len(l.participantWeights))
	for addr, table := range l.participantWeights {
		cursors[addr] = table.Cursor(from)
	}

	share := new(big.Int)
	l.rewardBuckets.Range(from, to, func(e uint64, bucket *big.Int) {
		stakers := total.At(e)
		if stakers.Sign() == 0 {
			recovered.Add(recovered, bucket)
			return
		}
		denominator := l.denominator(stakers)
		remainder := new(big.Int).Set(bucket)
		for _, cursor := range cursors {
			w := cursor.At(e)
			if w.Sign() == 0 {
				continue
			}
			share.Mul(bucket, w)
			share.Quo(share, denominator)
			remainder.Sub(remainder, share)
		}
		recovered.Add(recovered, remainder)
	})
	return recovered
}

func (l *Ledger) denominator(stakers *big.Int) *big.Int {
	return new(big.Int).Add(stakers, l.params.TreasuryWeight)
}

// PendingReward is what HarvestAll would pay the participant at block.
func (l *Ledger) PendingReward(addr common.Address, block uint64) (*big.Int, error) {
	current, err := l.CurrentEpoch(block)
	if err != nil {
		return nil, err
	}
	rec, ok := l.participants.Get(addr)
	if !ok || rec.Principal.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return l.CalcReward(addr, l.lastClaimedEpoch(rec)+1, current-1), nil
}

// PendingTreasury is what DaoHarvestPaginated would pay up to the last
// finished epoch at block.
func (l *Ledger) PendingTreasury(block uint64) (*big.Int, error) {
	current, err := l.CurrentEpoch(block)
	if err != nil {
		return nil, err
	}
	return l.treasuryShare(l.treasuryLastClaimedEpoch+1, current-1), nil
}

// HarvestAll pays every fully elapsed epoch the caller has not been paid for.
func (l *Ledger) HarvestAll(call Call) (*Receipt, error) {
	current, rec, err := l.harvestPreconditions(call)
	if err != nil {
		return nil, err
	}
	lastClaimed := l.lastClaimedEpoch(rec)
	if current-1 < lastClaimed+1 {
		return nil, ErrNothingToClaim
	}
	return l.settle(call, current, rec, lastClaimed+1, current-1), nil
}

// HarvestPaginated pays [lastClaimedEpoch+1, till]. Repeated calls with
// increasing bounds add up to exactly what one HarvestAll would pay.
func (l *Ledger) HarvestPaginated(call Call, till uint64) (*Receipt, error) {
	current, rec, err := l.harvestPreconditions(call)
	if err != nil {
		return nil, err
	}
	lastClaimed := l.lastClaimedEpoch(rec)
	if till >= current || till <= lastClaimed {
		return nil, ErrInvalidPaginationBound
	}
	return l.settle(call, current, rec, lastClaimed+1, till), nil
}

// DaoHarvestPaginated pays the treasury its share of [treasuryLastClaimedEpoch+1, till].
func (l *Ledger) DaoHarvestPaginated(call Call, till uint64) (*Receipt, error) {
	if !l.guard.IsGovernance(call.Caller) {
		return nil, ErrNotGovernance
	}
	current, err := l.callEpoch(call.Block)
	if err != nil {
		return nil, err
	}
	if till >= current || till <= l.treasuryLastClaimedEpoch {
		return nil, ErrInvalidPaginationBound
	}
	l.advanceCallEpoch(current)

	from := l.treasuryLastClaimedEpoch + 1
	share := l.treasuryShare(from, till)
	treasury := l.params.TreasuryAddress

	l.setTreasuryLastClaimedEpoch(till)
	if share.Sign() > 0 {
		l.addClaimedTotal(treasury, share)
	}

	l.logger.Sugar().Infow("Treasury harvested",
		zap.Uint64("fromEpoch", from),
		zap.Uint64("toEpoch", till),
		zap.String("amount", share.String()),
	)

	receipt := newReceipt(treasury, current)
	receipt.Reward = share
	receipt.Payout = new(big.Int).Set(share)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_RewardsClaimed,
		Participant: treasury,
		Amount:      new(big.Int).Set(share),
		Epoch:       current,
		Block:       call.Block,
		FromEpoch:   from,
		ToEpoch:     till,
	})
	return receipt, nil
}

func (l *Ledger) harvestPreconditions(call Call) (uint64, *ParticipantRecord, error) {
	if l.guard.IsPaused() {
		return 0, nil, ErrPaused
	}
	if !l.Active() {
		return 0, nil, ErrNoActiveStakeRegime
	}
	current, err := l.callEpoch(call.Block)
	if err != nil {
		return 0, nil, err
	}
	rec, ok := l.participants.Get(call.Caller)
	if !ok || rec.Principal.Sign() == 0 {
		return 0, nil, ErrNotAStaker
	}
	return current, rec, nil
}

// settle moves the participant's claim cursor to the end of `to` before any
// token leaves the pool, so a re-entrant harvest computes nothing new.
func (l *Ledger) settle(call Call, current uint64, stored *ParticipantRecord, from uint64, to uint64) *Receipt {
	addr := call.Caller
	reward := l.CalcReward(addr, from, to)
	l.advanceCallEpoch(current)

	rec := stored.copy()
	rec.LastClaimedBlock = l.clock.LastBlock(to)
	l.setParticipant(addr, rec)
	if reward.Sign() > 0 {
		l.addClaimedTotal(addr, reward)
	}

	l.logger.Sugar().Debugw("Harvested",
		zap.String("participant", addr.Hex()),
		zap.Uint64("fromEpoch", from),
		zap.Uint64("toEpoch", to),
		zap.String("reward", reward.String()),
	)

	receipt := newReceipt(addr, current)
	receipt.Reward = reward
	receipt.Payout = new(big.Int).Set(reward)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_RewardsClaimed,
		Participant: addr,
		Amount:      new(big.Int).Set(reward),
		Epoch:       current,
		Block:       call.Block,
		FromEpoch:   from,
		ToEpoch:     to,
	})
	return receipt
}
