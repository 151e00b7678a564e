package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Stake locks amount for the caller. The added weight counts from the next
// epoch on; the current epoch keeps the weight it started with.
func (l *Ledger) Stake(call Call, amount *big.Int) (*Receipt, error) {
	if l.guard.IsPaused() {
		return nil, ErrPaused
	}
	if !l.Active() {
		return nil, ErrNoActiveStakeRegime
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(l.params.MinimumStake) < 0 {
		return nil, ErrBelowMinimumStake
	}
	current, err := l.callEpoch(call.Block)
	if err != nil {
		return nil, err
	}
	l.advanceCallEpoch(current)

	addr := call.Caller
	stored, _ := l.participants.Get(addr)
	rec := newParticipantRecord()
	if stored != nil {
		rec = stored.copy()
	}
	if rec.Principal.Sign() == 0 {
		// nothing before this block can be owed to a fresh staker
		rec.LastClaimedBlock = call.Block
	}

	rec.Principal = new(big.Int).Add(rec.Principal, amount)
	rec.Weight = new(big.Int).Add(rec.Weight, amount)
	rec.LastStakeBlock = call.Block

	l.adjustWeights(addr, current, big.NewInt(0), amount)
	l.setParticipant(addr, rec)

	l.logger.Sugar().Debugw("Staked",
		zap.String("participant", addr.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("epoch", current),
	)

	receipt := newReceipt(addr, current)
	receipt.Pull = new(big.Int).Set(amount)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_Staked,
		Participant: addr,
		Amount:      new(big.Int).Set(amount),
		Epoch:       current,
		Block:       call.Block,
	})
	return receipt, nil
}

// Unstake pays out the caller's principal together with the reward for every
// fully elapsed epoch not yet claimed, and removes the caller's weight.
func (l *Ledger) Unstake(call Call) (*Receipt, error) {
	if l.guard.IsPaused() {
		return nil, ErrPaused
	}
	if !l.Active() {
		return nil, ErrNoActiveStakeRegime
	}
	current, err := l.callEpoch(call.Block)
	if err != nil {
		return nil, err
	}

	addr := call.Caller
	stored, ok := l.participants.Get(addr)
	if !ok || stored.Principal.Sign() == 0 {
		return nil, ErrNotAStaker
	}
	rec := stored.copy()
	l.advanceCallEpoch(current)

	receipt := newReceipt(addr, current)

	lastClaimed := l.lastClaimedEpoch(rec)
	if current > 1 && current-1 >= lastClaimed+1 {
		reward := l.CalcReward(addr, lastClaimed+1, current-1)
		receipt.Reward = reward
		if reward.Sign() > 0 {
			l.addClaimedTotal(addr, reward)
			receipt.Events = append(receipt.Events, &Event{
				Name:        EventName_RewardsClaimed,
				Participant: addr,
				Amount:      new(big.Int).Set(reward),
				Epoch:       current,
				Block:       call.Block,
				FromEpoch:   lastClaimed + 1,
				ToEpoch:     current - 1,
			})
		}
	}

	// the in-progress epoch can never be claimed by a participant who leaves
	// during it, so the weight is withdrawn from it as well
	startOfEpoch := new(big.Int).Neg(l.WeightAt(addr, current))
	l.adjustWeights(addr, current, startOfEpoch, new(big.Int).Neg(rec.Weight))

	principal := rec.Principal
	rec.Principal = big.NewInt(0)
	rec.Weight = big.NewInt(0)
	rec.LastClaimedBlock = call.Block
	l.setParticipant(addr, rec)

	receipt.Payout = new(big.Int).Add(principal, receipt.Reward)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_Unstaked,
		Participant: addr,
		Amount:      new(big.Int).Set(principal),
		Epoch:       current,
		Block:       call.Block,
	})

	l.logger.Sugar().Debugw("Unstaked",
		zap.String("participant", addr.Hex()),
		zap.String("principal", principal.String()),
		zap.String("reward", receipt.Reward.String()),
		zap.Uint64("epoch", current),
	)
	return receipt, nil
}

// adjustWeights applies deltaCurrent to epoch `current` and deltaNext to every
// epoch after it, for both the participant and the aggregate table.
func (l *Ledger) adjustWeights(addr common.Address, current uint64, deltaCurrent *big.Int, deltaNext *big.Int) {
	participantCurrent := l.WeightAt(addr, current)
	participantNext := l.WeightAt(addr, current+1)
	totalCurrent := l.totalWeights.At(current)
	totalNext := l.totalWeights.At(current + 1)

	l.setParticipantWeight(addr, current, new(big.Int).Add(participantCurrent, deltaCurrent))
	l.setParticipantWeight(addr, current+1, new(big.Int).Add(participantNext, deltaNext))
	l.setTotalWeight(current, new(big.Int).Add(totalCurrent, deltaCurrent))
	l.setTotalWeight(current+1, new(big.Int).Add(totalNext, deltaNext))
}
