package token

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_MemoryBank(t *testing.T) {
	alice := common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	ctx := context.Background()

	t.Run("Should move tokens into and out of custody", func(t *testing.T) {
		b := NewMemoryBank(zap.NewNop())
		b.Mint(alice, big.NewInt(100))

		assert.Nil(t, b.Pull(ctx, alice, big.NewInt(60)))
		assert.Equal(t, "40", b.BalanceOf(alice).String())
		assert.Equal(t, "60", b.Custody().String())

		assert.Nil(t, b.Push(ctx, alice, big.NewInt(10)))
		assert.Equal(t, "50", b.BalanceOf(alice).String())
		assert.Equal(t, "50", b.Custody().String())
	})
	t.Run("Should refuse to overdraw", func(t *testing.T) {
		b := NewMemoryBank(zap.NewNop())
		b.Mint(alice, big.NewInt(5))

		err := b.Pull(ctx, alice, big.NewInt(6))
		var insufficient *InsufficientBalanceError
		assert.ErrorAs(t, err, &insufficient)

		err = b.Push(ctx, alice, big.NewInt(1))
		assert.ErrorAs(t, err, &insufficient)
	})
	t.Run("Should invoke the push hook", func(t *testing.T) {
		b := NewMemoryBank(zap.NewNop())
		b.Fund(big.NewInt(10))
		var got *big.Int
		b.OnPush = func(ctx context.Context, to common.Address, amount *big.Int) { got = amount }

		assert.Nil(t, b.Push(ctx, alice, big.NewInt(7)))
		assert.Equal(t, "7", got.String())
	})
	t.Run("Should open unseen accounts with the faucet balance", func(t *testing.T) {
		b := NewMemoryBank(zap.NewNop())
		b.Faucet = big.NewInt(50)

		assert.Equal(t, "50", b.BalanceOf(alice).String())
		assert.Nil(t, b.Pull(ctx, alice, big.NewInt(20)))
		assert.Equal(t, "30", b.BalanceOf(alice).String())
		assert.Equal(t, "50", b.Faucet.String())
	})
}
