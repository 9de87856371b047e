package reducer

import (
	"sort"

	"github.com/litetable/litetable-bulkload/internal/cell"
)

// batch collects one group's cells in comparator order with duplicates
// collapsed, tracking an estimated heap size. The size accumulator counts
// every cell handed to add, duplicates included, so a flood of identical
// lines still trips the threshold.
type batch struct {
	cells []*cell.Cell
	size  int64
}

func newBatch() *batch {
	return &batch{}
}

// add inserts c at its sorted position. A cell equal to an existing one
// under the comparator collapses; which of the two survives is
// unspecified.
func (b *batch) add(c *cell.Cell) {
	b.size += c.HeapSize()

	i := sort.Search(len(b.cells), func(j int) bool {
		return cell.Compare(b.cells[j], c) >= 0
	})
	if i < len(b.cells) && cell.Compare(b.cells[i], c) == 0 {
		return
	}

	b.cells = append(b.cells, nil)
	copy(b.cells[i+1:], b.cells[i:])
	b.cells[i] = c
}

func (b *batch) len() int {
	return len(b.cells)
}
