package reducer

import (
	"fmt"

	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/rs/zerolog/log"
)

// progress status is reported every statusInterval cells
const statusInterval = 100

// emit writes every cell of the batch to the sink in ascending comparator
// order. An empty batch writes nothing.
func (r *Reducer) emit(key []byte, b *batch) error {
	log.Info().
		Bytes("rowKey", key).
		Int("cells", b.len()).
		Str("size", humanSize(b.size)).
		Msg("Read batch")

	for i, c := range b.cells {
		if err := r.sink.Write(cell.NewCellMessage(key, c)); err != nil {
			return fmt.Errorf("failed to write cell: %w", err)
		}
		if (i+1)%statusInterval == 0 {
			log.Info().Msgf("Wrote %d cells", i+1)
		}
	}

	if b.len() > 0 {
		r.counters.AddCellsEmitted(b.len())
		r.counters.IncBatches()
	}
	return nil
}

// humanSize renders a byte count for status messages.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
