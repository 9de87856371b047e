package cell

// Kind discriminates messages on the loader's output stream.
type Kind int

const (
	// KindCell carries a group key and one cell.
	KindCell Kind = iota
	// KindBoundary tells the downstream writer that sort order is not
	// guaranteed to continue across this point, so it must start a new
	// sorted segment. It carries no key and no cell.
	KindBoundary
)

// Message is one item on the loader's output stream.
type Message struct {
	Kind   Kind
	RowKey []byte
	Cell   *Cell
}

// NewCellMessage wraps a cell and its group key for the output stream.
func NewCellMessage(rowKey []byte, c *Cell) Message {
	return Message{Kind: KindCell, RowKey: rowKey, Cell: c}
}

// NewBoundary builds the batch-boundary marker.
func NewBoundary() Message {
	return Message{Kind: KindBoundary}
}
