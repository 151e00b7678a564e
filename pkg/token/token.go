package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Bank moves the pool's fungible token between participants and the ledger.
type Bank interface {
	// Pull moves amount from the participant into the ledger's custody.
	Pull(ctx context.Context, from common.Address, amount *big.Int) error
	// Push pays amount out of the ledger's custody.
	Push(ctx context.Context, to common.Address, amount *big.Int) error
}

type InsufficientBalanceError struct {
	Account   common.Address
	Balance   *big.Int
	Requested *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: have %s, want %s", e.Account.Hex(), e.Balance, e.Requested)
}

// MemoryBank keeps balances in memory. Used for local runs and tests.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	custody  *big.Int
	logger   *zap.Logger

	// OnPush runs after a successful Push, before it returns.
	OnPush func(ctx context.Context, to common.Address, amount *big.Int)
	// Faucet is the opening balance of an account the bank has not seen yet.
	Faucet *big.Int
}

func NewMemoryBank(l *zap.Logger) *MemoryBank {
	return &MemoryBank{
		balances: make(map[common.Address]*big.Int),
		custody:  big.NewInt(0),
		logger:   l,
	}
}

func (b *MemoryBank) Mint(to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[to] = new(big.Int).Add(b.balanceOf(to), amount)
}

// Fund adds amount directly to custody, e.g. fees received by the pool.
func (b *MemoryBank) Fund(amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.custody = new(big.Int).Add(b.custody, amount)
}

func (b *MemoryBank) BalanceOf(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceOf(addr))
}

func (b *MemoryBank) Custody() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.custody)
}

func (b *MemoryBank) balanceOf(addr common.Address) *big.Int {
	if bal, ok := b.balances[addr]; ok {
		return bal
	}
	if b.Faucet != nil {
		return b.Faucet
	}
	return big.NewInt(0)
}

func (b *MemoryBank) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Account: from, Balance: new(big.Int).Set(bal), Requested: amount}
	}
	b.balances[from] = new(big.Int).Sub(bal, amount)
	b.custody = new(big.Int).Add(b.custody, amount)
	b.logger.Sugar().Debugw("Pulled tokens", zap.String("from", from.Hex()), zap.String("amount", amount.String()))
	return nil
}

func (b *MemoryBank) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	if b.custody.Cmp(amount) < 0 {
		custody := new(big.Int).Set(b.custody)
		b.mu.Unlock()
		return &InsufficientBalanceError{Account: common.Address{}, Balance: custody, Requested: amount}
	}
	b.custody = new(big.Int).Sub(b.custody, amount)
	b.balances[to] = new(big.Int).Add(b.balanceOf(to), amount)
	onPush := b.OnPush
	b.mu.Unlock()

	b.logger.Sugar().Debugw("Pushed tokens", zap.String("to", to.Hex()), zap.String("amount", amount.String()))
	if onPush != nil {
		onPush(ctx, to, amount)
	}
	return nil
}
