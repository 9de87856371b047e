package reducer

import (
	"github.com/litetable/litetable-bulkload/internal/cell"
)

//go:generate mockgen -destination=sink_mock.go -package=reducer -source=sink.go

// Sink consumes the ordered output stream: cell messages in comparator
// order within a batch, with boundary messages wherever sort-order
// continuity breaks.
type Sink interface {
	Write(msg cell.Message) error
}
