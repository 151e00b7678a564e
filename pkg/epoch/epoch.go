package epoch

import "errors"

var (
	ErrInvalidRange    = errors.New("toBlock must be greater than or equal to fromBlock")
	ErrInvalidDuration = errors.New("epoch duration must be greater than 0")
)

// Of returns the epoch containing toBlock, counting from a genesis at fromBlock.
// Epoch 1 is the genesis epoch.
func Of(fromBlock uint64, toBlock uint64, duration uint64) (uint64, error) {
	if duration == 0 {
		return 0, ErrInvalidDuration
	}
	if toBlock < fromBlock {
		return 0, ErrInvalidRange
	}
	return (toBlock-fromBlock)/duration + 1, nil
}

// Clock maps block heights to epochs for a fixed genesis and duration.
type Clock struct {
	Genesis  uint64
	Duration uint64
}

func NewClock(genesis uint64, duration uint64) (*Clock, error) {
	if duration == 0 {
		return nil, ErrInvalidDuration
	}
	return &Clock{Genesis: genesis, Duration: duration}, nil
}

func (c *Clock) Current(block uint64) (uint64, error) {
	return Of(c.Genesis, block, c.Duration)
}

// FirstBlock is the first block height of epoch e (e >= 1).
func (c *Clock) FirstBlock(e uint64) uint64 {
	if e == 0 {
		return c.Genesis
	}
	return c.Genesis + (e-1)*c.Duration
}

// LastBlock is the last block height of epoch e (e >= 1).
func (c *Clock) LastBlock(e uint64) uint64 {
	if e == 0 {
		return c.Genesis
	}
	return c.Genesis + e*c.Duration - 1
}
