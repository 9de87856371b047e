// Package reducer converts one group's unordered raw lines into sorted,
// memory-bounded batches of cells and hands them to a sink.
package reducer

import (
	"errors"
	"fmt"

	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/litetable/litetable-bulkload/internal/tsv"
	"github.com/rs/zerolog/log"
)

// DefaultThreshold is the default memory ceiling for one batch, in
// estimated heap bytes.
const DefaultThreshold = int64(1 << 30)

// Iterator yields the raw lines of one group. Forward-only, single pass;
// the returned slice may be reused after the next call.
type Iterator interface {
	Next() ([]byte, bool)
}

type parser interface {
	Parse(line []byte, length int) (*tsv.ParsedLine, error)
	RowKeyIndex() int
	TimestampIndex() int
	AttributesIndex() int
	VisibilityIndex() int
	Family(i int) []byte
	Qualifier(i int) []byte
}

type expander interface {
	BuildLabeledCell(rowKey, family, qualifier []byte, ts int64, value []byte, expr string) (*cell.Cell, error)
}

type counters interface {
	IncBadLines()
	AddCellsEmitted(n int)
	IncBatches()
	IncBoundaries()
}

// Reducer holds the per-task state threaded through every group: the
// running default timestamp, the skip policy and the batch threshold.
// Not safe for concurrent use; one reducer serves one worker.
type Reducer struct {
	parser   parser
	expander expander
	sink     Sink
	counters counters

	// ts is the running default timestamp. A line that carries its own
	// timestamp replaces it for every following line that does not.
	ts           int64
	skipBadLines bool
	threshold    int64
}

type Config struct {
	Parser   parser
	Expander expander
	Sink     Sink
	Counters counters

	// DefaultTimestamp seeds the running default for lines without one.
	DefaultTimestamp int64
	// SkipBadLines counts and skips structurally bad lines instead of
	// failing the load.
	SkipBadLines bool
	// Threshold is the per-batch memory ceiling; DefaultThreshold when 0.
	Threshold int64
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Parser == nil {
		errGrp = append(errGrp, errors.New("parser is required"))
	}
	if c.Expander == nil {
		errGrp = append(errGrp, errors.New("expander is required"))
	}
	if c.Sink == nil {
		errGrp = append(errGrp, errors.New("sink is required"))
	}
	if c.Counters == nil {
		errGrp = append(errGrp, errors.New("counters are required"))
	}
	return errors.Join(errGrp...)
}

func New(cfg *Config) (*Reducer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Reducer{
		parser:       cfg.Parser,
		expander:     cfg.Expander,
		sink:         cfg.Sink,
		counters:     cfg.Counters,
		ts:           cfg.DefaultTimestamp,
		skipBadLines: cfg.SkipBadLines,
		threshold:    threshold,
	}, nil
}

// Reduce sorts and emits every line of one group. Cells are collected into
// a batch until the group is exhausted or the batch's estimated size
// reaches the threshold; each completed batch is emitted in comparator
// order. When a threshold cut leaves more lines for the same group, a
// boundary message is written before the next batch so the downstream
// writer does not assume sort-order continuity across the cut.
//
// A bad line ends the whole call: with skipping enabled it is counted and
// the remaining lines of this call are dropped (the driver may invoke
// Reduce again for the rest of the group); with skipping disabled the
// wrapped error fails the load. Cells already emitted stay emitted.
func (r *Reducer) Reduce(key []byte, lines Iterator) error {
	line, more := lines.Next()
	for more {
		b := newBatch()
		for more && b.size < r.threshold {
			parsed, err := r.parser.Parse(line, len(line))
			if err != nil {
				if r.skipBadLines {
					log.Warn().Err(err).Bytes("rowKey", key).Msg("Skipping bad line")
					r.counters.IncBadLines()
					// flush what was built before the bad line, then
					// abandon the rest of this call; the driver decides
					// whether the remaining lines are ever revisited
					return r.emit(key, b)
				}
				return fmt.Errorf("failed to parse line: %w", err)
			}

			r.ts = parsed.TimestampOr(r.ts)
			expr := parsed.Visibility()

			for i := 0; i < parsed.ColumnCount(); i++ {
				if r.reserved(i) {
					continue
				}
				c, buildErr := r.buildCell(parsed, i, expr)
				if buildErr != nil {
					return buildErr
				}
				b.add(c)
			}

			line, more = lines.Next()
		}

		if err := r.emit(key, b); err != nil {
			return err
		}

		if more {
			// the next batch for this group is sorted on its own, not
			// relative to the one just written
			if err := r.sink.Write(cell.NewBoundary()); err != nil {
				return fmt.Errorf("failed to write batch boundary: %w", err)
			}
			r.counters.IncBoundaries()
		}
	}
	return nil
}

// reserved reports whether column i carries loader metadata instead of
// cell data.
func (r *Reducer) reserved(i int) bool {
	return i == r.parser.RowKeyIndex() ||
		i == r.parser.TimestampIndex() ||
		i == r.parser.AttributesIndex() ||
		i == r.parser.VisibilityIndex()
}

func (r *Reducer) buildCell(parsed *tsv.ParsedLine, i int, expr string) (*cell.Cell, error) {
	if expr == "" {
		return cell.NewPut(parsed.RowKey(), r.parser.Family(i), r.parser.Qualifier(i), r.ts, parsed.Column(i)), nil
	}
	return r.expander.BuildLabeledCell(parsed.RowKey(), r.parser.Family(i), r.parser.Qualifier(i), r.ts, parsed.Column(i), expr)
}
