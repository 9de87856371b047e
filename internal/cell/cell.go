// Package cell defines the structured unit produced by the bulk loader and
// the total order used to sort cells within a batch.
package cell

import (
	"bytes"
)

// Type identifies the operation a cell carries.
type Type byte

const (
	// Put is the only operation type the loader produces.
	Put Type = 4
)

// fixed per-cell overhead: struct, slice headers and allocator slack. Added
// on top of the byte payload when estimating heap usage.
const cellOverhead = 96

// Cell is one structured (row, family, qualifier, timestamp, value) unit.
// A Cell is immutable once constructed; the byte slices are owned by the
// cell and never alias the raw input line.
type Cell struct {
	RowKey    []byte
	Family    []byte
	Qualifier []byte
	Timestamp int64
	Type      Type
	Value     []byte

	// Labels holds encoded visibility metadata. Empty for plain cells.
	Labels []byte
}

// NewPut builds a plain write-cell. All inputs are copied because the raw
// line buffer they usually point into is reused by the input scanner.
func NewPut(rowKey, family, qualifier []byte, ts int64, value []byte) *Cell {
	return &Cell{
		RowKey:    bytes.Clone(rowKey),
		Family:    bytes.Clone(family),
		Qualifier: bytes.Clone(qualifier),
		Timestamp: ts,
		Type:      Put,
		Value:     bytes.Clone(value),
	}
}

// Compare is the total order for cells: row key, family, qualifier,
// timestamp descending (newest first), then type. It is the single source
// of truth for "sorted" throughout the loader.
func Compare(a, b *Cell) int {
	if c := bytes.Compare(a.RowKey, b.RowKey); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Family, b.Family); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return -1
		}
		return 1
	}
	return int(a.Type) - int(b.Type)
}

// HeapSize estimates the heap footprint of the cell. Batches sum these
// estimates to decide when to cut, so the estimate only needs to track real
// memory usage, not wire size.
func (c *Cell) HeapSize() int64 {
	return cellOverhead + int64(len(c.RowKey)+len(c.Family)+len(c.Qualifier)+len(c.Value)+len(c.Labels))
}
