package ledger

import (
	"math/big"

	"go.uber.org/zap"
)

// DepositFees adds amount to the current epoch's reward bucket. A deposit made
// while no staker holds weight is stranded and only the treasury can recover it.
func (l *Ledger) DepositFees(call Call, amount *big.Int) (*Receipt, error) {
	if !l.guard.IsFeeSource(call.Caller) {
		return nil, ErrNotGovernance
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	current, err := l.callEpoch(call.Block)
	if err != nil {
		return nil, err
	}
	l.advanceCallEpoch(current)

	l.setRewardBucket(current, new(big.Int).Add(l.RewardBucket(current), amount))

	if l.totalWeights.At(current).Sign() == 0 {
		l.logger.Sugar().Debugw("Fees deposited into an epoch without staker weight",
			zap.Uint64("epoch", current),
			zap.String("amount", amount.String()),
		)
	}

	receipt := newReceipt(call.Caller, current)
	receipt.Pull = new(big.Int).Set(amount)
	receipt.Events = append(receipt.Events, &Event{
		Name:        EventName_FeesDeposited,
		Participant: call.Caller,
		Amount:      new(big.Int).Set(amount),
		Epoch:       current,
		Block:       call.Block,
	})
	return receipt, nil
}
