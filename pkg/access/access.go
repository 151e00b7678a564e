package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Guard is the pause flag and role registry the ledger consults before a call.
type Guard interface {
	IsPaused() bool
	IsGovernance(addr common.Address) bool
	// IsFeeSource reports whether addr may deposit fees into the pool.
	IsFeeSource(addr common.Address) bool
}

type StaticGuard struct {
	mu         sync.RWMutex
	paused     bool
	governance common.Address
	feeSources map[common.Address]bool
}

func NewStaticGuard(governance common.Address, feeSources ...common.Address) *StaticGuard {
	g := &StaticGuard{
		governance: governance,
		feeSources: make(map[common.Address]bool),
	}
	for _, s := range feeSources {
		if s != (common.Address{}) {
			g.feeSources[s] = true
		}
	}
	return g
}

func (g *StaticGuard) IsPaused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

func (g *StaticGuard) SetPaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = paused
}

func (g *StaticGuard) IsGovernance(addr common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.governance != (common.Address{}) && addr == g.governance
}

// IsFeeSource is true for registered fee sources and for governance top-ups.
func (g *StaticGuard) IsFeeSource(addr common.Address) bool {
	if g.IsGovernance(addr) {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feeSources[addr]
}

func (g *StaticGuard) AddFeeSource(addr common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeSources[addr] = true
}
