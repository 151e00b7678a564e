package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SnapshotTable(t *testing.T) {
	t.Run("Should carry values forward", func(t *testing.T) {
		table := NewSnapshotTable()
		assert.Equal(t, "0", table.At(5).String())

		table.Set(2, big.NewInt(10))
		table.Set(5, big.NewInt(30))

		expected := map[uint64]string{1: "0", 2: "10", 3: "10", 4: "10", 5: "30", 100: "30"}
		for e, v := range expected {
			assert.Equal(t, v, table.At(e).String(), "epoch %d", e)
		}
	})
	t.Run("Should keep ascending order for out of order writes", func(t *testing.T) {
		table := NewSnapshotTable()
		table.Set(5, big.NewInt(50))
		table.Set(9, big.NewInt(90))
		table.Set(1, big.NewInt(10))
		table.Set(7, big.NewInt(70))

		assert.Equal(t, []uint64{1, 5, 7, 9}, table.Epochs())
		assert.Equal(t, "70", table.At(8).String())
		assert.Equal(t, "10", table.At(4).String())

		e, v, ok := table.Newest()
		assert.True(t, ok)
		assert.Equal(t, uint64(9), e)
		assert.Equal(t, "90", v.String())
	})
	t.Run("Should return the overwritten value", func(t *testing.T) {
		table := NewSnapshotTable()
		prev, existed := table.Set(3, big.NewInt(1))
		assert.Nil(t, prev)
		assert.False(t, existed)

		prev, existed = table.Set(3, big.NewInt(2))
		assert.True(t, existed)
		assert.Equal(t, "1", prev.String())
		assert.Equal(t, 1, table.Len())

		table.Delete(3)
		assert.Equal(t, 0, table.Len())
	})
	t.Run("Should read forward with a cursor", func(t *testing.T) {
		table := NewSnapshotTable()
		table.Set(3, big.NewInt(3))
		table.Set(6, big.NewInt(6))
		table.Set(8, big.NewInt(8))

		cursor := table.Cursor(1)
		got := make([]string, 0)
		for e := uint64(1); e <= 9; e++ {
			got = append(got, cursor.At(e).String())
		}
		assert.Equal(t, []string{"0", "0", "3", "3", "3", "6", "6", "8", "8"}, got)

		cursor = table.Cursor(7)
		assert.Equal(t, "6", cursor.At(7).String())
		assert.Equal(t, "8", cursor.At(10).String())
	})
	t.Run("Should range over explicit entries only", func(t *testing.T) {
		table := newEpochTable()
		for _, e := range []uint64{2, 4, 6, 8} {
			table.Set(e, big.NewInt(int64(e)))
		}

		visited := make([]uint64, 0)
		table.Range(3, 7, func(e uint64, v *big.Int) {
			visited = append(visited, e)
		})
		assert.Equal(t, []uint64{4, 6}, visited)

		visited = visited[:0]
		table.Range(7, 3, func(e uint64, v *big.Int) {
			visited = append(visited, e)
		})
		assert.Empty(t, visited)
	})
}
