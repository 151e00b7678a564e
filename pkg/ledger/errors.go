package ledger

import (
	"errors"
)

// ErrRevert is a call-scoped failure. A call that returns one leaves the
// ledger exactly as it was before the call.
type ErrRevert struct {
	message string
}

func newRevert(message string) *ErrRevert {
	return &ErrRevert{
		message: message,
	}
}

func (e *ErrRevert) Error() string {
	return e.message
}

func IsRevertErr(err error) bool {
	if err == nil {
		return false
	}
	var ve *ErrRevert
	return errors.As(err, &ve)
}

var (
	ErrInvalidRange           = newRevert("block precedes the genesis epoch")
	ErrBelowMinimumStake      = newRevert("amount is below the minimum stake")
	ErrNoActiveStakeRegime    = newRevert("no active stake regime")
	ErrNotAStaker             = newRevert("caller has no staked principal")
	ErrInvalidPaginationBound = newRevert("invalid pagination bound")
	ErrNotGovernance          = newRevert("caller is not governance")
	ErrPaused                 = newRevert("ledger is paused")
	ErrNothingToClaim         = newRevert("no fully elapsed epoch to claim")
	ErrZeroAmount             = newRevert("amount must be greater than 0")
	ErrInvalidBatch           = newRevert("invalid migration batch")
	ErrParamsMismatch         = newRevert("ledger parameters do not match")
	ErrRegimeLocked           = newRevert("epoch regime can no longer be changed")
	ErrStaleBlock             = newRevert("block lands in an epoch the ledger has already moved past")
)
