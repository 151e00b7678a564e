package ledger

import (
	"math/big"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// epochTable is a sparse epoch -> amount table kept in ascending epoch order.
// Writes land on the newest epoch in the common case, which keeps Set O(1).
type epochTable struct {
	entries *orderedmap.OrderedMap[uint64, *big.Int]
}

func newEpochTable() *epochTable {
	return &epochTable{
		entries: orderedmap.New[uint64, *big.Int](),
	}
}

func (t *epochTable) Len() int {
	return t.entries.Len()
}

// Get returns the value written at exactly epoch e.
func (t *epochTable) Get(e uint64) (*big.Int, bool) {
	return t.entries.Get(e)
}

// Set writes the value at epoch e and returns the previous explicit value.
func (t *epochTable) Set(e uint64, v *big.Int) (*big.Int, bool) {
	if prev, ok := t.entries.Get(e); ok {
		t.entries.Set(e, v)
		return prev, true
	}

	t.entries.Set(e, v)
	prev := t.entries.GetPair(e).Prev()
	if prev == nil || prev.Key < e {
		return nil, false
	}

	// out of order write (migration); find the entry it belongs after
	var mark *orderedmap.Pair[uint64, *big.Int]
	for p := prev; p != nil; p = p.Prev() {
		if p.Key < e {
			mark = p
			break
		}
	}
	if mark == nil {
		_ = t.entries.MoveToFront(e)
	} else {
		_ = t.entries.MoveAfter(e, mark.Key)
	}
	return nil, false
}

func (t *epochTable) Delete(e uint64) {
	t.entries.Delete(e)
}

// Newest returns the highest epoch with an entry.
func (t *epochTable) Newest() (uint64, *big.Int, bool) {
	p := t.entries.Newest()
	if p == nil {
		return 0, nil, false
	}
	return p.Key, p.Value, true
}

// floorPair returns the entry with the highest epoch <= e.
func (t *epochTable) floorPair(e uint64) *orderedmap.Pair[uint64, *big.Int] {
	if p := t.entries.GetPair(e); p != nil {
		return p
	}
	for p := t.entries.Newest(); p != nil; p = p.Prev() {
		if p.Key <= e {
			return p
		}
	}
	return nil
}

// ceilPair returns the entry with the lowest epoch >= e.
func (t *epochTable) ceilPair(e uint64) *orderedmap.Pair[uint64, *big.Int] {
	if p := t.entries.GetPair(e); p != nil {
		return p
	}
	var ceil *orderedmap.Pair[uint64, *big.Int]
	for p := t.entries.Newest(); p != nil && p.Key > e; p = p.Prev() {
		ceil = p
	}
	return ceil
}

// Range calls fn for every explicit entry in [from, to] in ascending order.
func (t *epochTable) Range(from uint64, to uint64, fn func(e uint64, v *big.Int)) {
	if from > to {
		return
	}
	for p := t.ceilPair(from); p != nil && p.Key <= to; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

func (t *epochTable) Epochs() []uint64 {
	epochs := make([]uint64, 0, t.entries.Len())
	for p := t.entries.Oldest(); p != nil; p = p.Next() {
		epochs = append(epochs, p.Key)
	}
	return epochs
}

// SnapshotTable is a sparse epoch -> weight table read with carry-forward:
// an epoch without an entry takes the value of the nearest earlier entry.
type SnapshotTable struct {
	epochTable
}

func NewSnapshotTable() *SnapshotTable {
	return &SnapshotTable{epochTable: *newEpochTable()}
}

// At resolves the weight effective at epoch e.
func (t *SnapshotTable) At(e uint64) *big.Int {
	newest := t.entries.Newest()
	if newest == nil {
		return big.NewInt(0)
	}
	if newest.Key <= e {
		return newest.Value
	}
	if p := t.floorPair(e); p != nil {
		return p.Value
	}
	return big.NewInt(0)
}

// Cursor returns a forward reader positioned at epoch from.
func (t *SnapshotTable) Cursor(from uint64) *Cursor {
	return &Cursor{
		table:   t,
		current: t.floorPair(from),
	}
}

// Cursor resolves carry-forward reads for non-decreasing epochs in amortized O(1).
type Cursor struct {
	table   *SnapshotTable
	current *orderedmap.Pair[uint64, *big.Int]
}

func (c *Cursor) At(e uint64) *big.Int {
	next := c.next()
	for next != nil && next.Key <= e {
		c.current = next
		next = next.Next()
	}
	if c.current == nil {
		return big.NewInt(0)
	}
	return c.current.Value
}

func (c *Cursor) next() *orderedmap.Pair[uint64, *big.Int] {
	if c.current == nil {
		return c.table.entries.Oldest()
	}
	return c.current.Next()
}
