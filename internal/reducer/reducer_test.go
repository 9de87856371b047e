package reducer

import (
	"errors"
	"testing"

	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/litetable/litetable-bulkload/internal/tsv"
	"github.com/litetable/litetable-bulkload/internal/visibility"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sliceIter struct {
	lines []string
	i     int
}

func (it *sliceIter) Next() ([]byte, bool) {
	if it.i >= len(it.lines) {
		return nil, false
	}
	line := it.lines[it.i]
	it.i++
	return []byte(line), true
}

type captureSink struct {
	msgs []cell.Message
}

func (s *captureSink) Write(msg cell.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSink) cells() []*cell.Cell {
	var out []*cell.Cell
	for _, m := range s.msgs {
		if m.Kind == cell.KindCell {
			out = append(out, m.Cell)
		}
	}
	return out
}

func (s *captureSink) boundaries() int {
	n := 0
	for _, m := range s.msgs {
		if m.Kind == cell.KindBoundary {
			n++
		}
	}
	return n
}

type fakeCounters struct {
	badLines   int
	cells      int
	batches    int
	boundaries int
}

func (f *fakeCounters) IncBadLines()         { f.badLines++ }
func (f *fakeCounters) AddCellsEmitted(n int) { f.cells += n }
func (f *fakeCounters) IncBatches()          { f.batches++ }
func (f *fakeCounters) IncBoundaries()       { f.boundaries++ }

func newTestReducer(t *testing.T, columns string, sink Sink, counters counters, threshold int64, skip bool) *Reducer {
	t.Helper()

	p, err := tsv.New(&tsv.Config{Columns: columns, Separator: '\t'})
	require.NoError(t, err)

	r, err := New(&Config{
		Parser:           p,
		Expander:         visibility.New(),
		Sink:             sink,
		Counters:         counters,
		DefaultTimestamp: 1,
		SkipBadLines:     skip,
		Threshold:        threshold,
	})
	require.NoError(t, err)
	return r
}

func assertSorted(t *testing.T, cells []*cell.Cell) {
	t.Helper()
	for i := 1; i < len(cells); i++ {
		require.LessOrEqual(t, cell.Compare(cells[i-1], cells[i]), 0,
			"cells must be in non-decreasing comparator order")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		r, err := New(&Config{})
		req.Error(err)
		req.Nil(r)
	})

	t.Run("threshold defaults", func(t *testing.T) {
		t.Parallel()
		p, err := tsv.New(&tsv.Config{Columns: "LITETABLE_ROW_KEY,d:a", Separator: '\t'})
		req.NoError(err)

		r, err := New(&Config{
			Parser:   p,
			Expander: visibility.New(),
			Sink:     &captureSink{},
			Counters: &fakeCounters{},
		})
		req.NoError(err)
		req.Equal(DefaultThreshold, r.threshold)
	})
}

func TestReduce_SingleSortedBatch(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,LITETABLE_TS_KEY,d:a,d:b", sink, counters, 0, true)

	// two records, two eligible columns each, well under the threshold
	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\t100\tv1a\tv1b",
		"row1\t200\tv2a\tv2b",
	}})
	req.NoError(err)

	cells := sink.cells()
	req.Len(cells, 4)
	req.Zero(sink.boundaries())
	assertSorted(t, cells)

	for _, c := range cells {
		req.Equal([]byte("row1"), c.RowKey)
		req.Equal(cell.Put, c.Type)
	}
	// newest timestamp first within a qualifier
	req.Equal([]byte("a"), cells[0].Qualifier)
	req.Equal(int64(200), cells[0].Timestamp)
	req.Equal(int64(100), cells[1].Timestamp)

	req.Equal(4, counters.cells)
	req.Equal(1, counters.batches)
	req.Zero(counters.badLines)
	req.Zero(counters.boundaries)
}

func TestReduce_ThresholdCutsBatch(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	// threshold of 1 byte forces a cut after every record
	r := newTestReducer(t, "LITETABLE_ROW_KEY,LITETABLE_TS_KEY,d:a,d:b", sink, counters, 1, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\t100\tv1a\tv1b",
		"row1\t200\tv2a\tv2b",
	}})
	req.NoError(err)

	// two batches of two cells with exactly one boundary between them
	req.Len(sink.msgs, 5)
	req.Equal(cell.KindCell, sink.msgs[0].Kind)
	req.Equal(cell.KindCell, sink.msgs[1].Kind)
	req.Equal(cell.KindBoundary, sink.msgs[2].Kind)
	req.Equal(cell.KindCell, sink.msgs[3].Kind)
	req.Equal(cell.KindCell, sink.msgs[4].Kind)

	// each batch is sorted on its own
	assertSorted(t, []*cell.Cell{sink.msgs[0].Cell, sink.msgs[1].Cell})
	assertSorted(t, []*cell.Cell{sink.msgs[3].Cell, sink.msgs[4].Cell})

	req.Equal(1, counters.boundaries)
	req.Equal(2, counters.batches)
	req.Equal(4, counters.cells)
}

func TestReduce_NoBoundaryOnNaturalExhaustion(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	// threshold of 1 cuts after the only record, but no input remains so
	// no boundary may follow
	r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a", sink, &fakeCounters{}, 1, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{"row1\tv"}})
	req.NoError(err)
	req.Len(sink.cells(), 1)
	req.Zero(sink.boundaries())
}

func TestReduce_BadLineSkipped(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a,d:b", sink, counters, 0, true)

	// record 2 of 3 is malformed; record 1's cells flush, record 3 is
	// abandoned for this call
	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\tv1a\tv1b",
		"row1\tmissing-column",
		"row1\tv3a\tv3b",
	}})
	req.NoError(err)

	cells := sink.cells()
	req.Len(cells, 2)
	req.Equal([]byte("v1a"), cells[0].Value)
	req.Equal([]byte("v1b"), cells[1].Value)
	req.Equal(1, counters.badLines)
	req.Zero(sink.boundaries())
}

func TestReduce_BadLineFatal(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a,d:b", sink, counters, 0, false)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\tv1a\tv1b",
		"row1\tmissing-column",
	}})
	req.Error(err)

	var badLine *tsv.BadLineError
	req.True(errors.As(err, &badLine))

	// nothing is emitted and nothing is counted as skipped
	req.Empty(sink.msgs)
	req.Zero(counters.badLines)
}

func TestReduce_TimestampStickiness(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,LITETABLE_TS_KEY,d:a", sink, &fakeCounters{}, 0, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\t500\tv1",
		"row1\t\tv2",
		"row1\t600\tv3",
		"row1\t\tv4",
	}})
	req.NoError(err)

	seen := map[int64]bool{}
	for _, c := range sink.cells() {
		seen[c.Timestamp] = true
	}
	// records without a timestamp inherit the last parsed one, never the
	// configured default of 1
	req.True(seen[500])
	req.True(seen[600])
	req.False(seen[1])

	// the running default survives into the next group
	sink2 := &captureSink{}
	r.sink = sink2
	err = r.Reduce([]byte("row2"), &sliceIter{lines: []string{"row2\t\tv5"}})
	req.NoError(err)
	req.Equal(int64(600), sink2.cells()[0].Timestamp)
}

func TestReduce_Visibility(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,LITETABLE_TS_KEY,LITETABLE_VISIBILITY_KEY,d:a", sink, &fakeCounters{}, 0, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\t100\tsecret&audit\tclassified",
		"row1\t200\t\tpublic",
	}})
	req.NoError(err)

	cells := sink.cells()
	req.Len(cells, 2)
	assertSorted(t, cells)

	// newest first: the plain cell at ts 200 sorts before the labeled one
	req.Equal([]byte("public"), cells[0].Value)
	req.Empty(cells[0].Labels)
	req.Equal([]byte("classified"), cells[1].Value)
	req.NotEmpty(cells[1].Labels)
}

func TestReduce_MalformedVisibilityIsFatal(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	// skip policy does not apply to visibility expansion failures
	r := newTestReducer(t, "LITETABLE_ROW_KEY,LITETABLE_VISIBILITY_KEY,d:a", sink, counters, 0, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{"row1\tsecret&\tval"}})
	req.Error(err)
	req.True(errors.Is(err, visibility.ErrMalformedExpression))
	req.Zero(counters.badLines)
}

func TestReduce_DuplicatesCollapse(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	sink := &captureSink{}
	counters := &fakeCounters{}
	r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a", sink, counters, 0, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{
		"row1\tsame",
		"row1\tsame",
		"row1\tsame",
	}})
	req.NoError(err)
	req.Len(sink.cells(), 1)
	req.Equal(1, counters.cells)
}

func TestReduce_EmptyGroup(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	t.Run("no lines", func(t *testing.T) {
		t.Parallel()
		sink := &captureSink{}
		r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a", sink, &fakeCounters{}, 0, true)

		err := r.Reduce([]byte("row1"), &sliceIter{})
		req.NoError(err)
		req.Empty(sink.msgs)
	})

	t.Run("no eligible columns", func(t *testing.T) {
		t.Parallel()
		sink := &captureSink{}
		counters := &fakeCounters{}
		r := newTestReducer(t, "LITETABLE_ROW_KEY", sink, counters, 0, true)

		err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{"row1", "row1"}})
		req.NoError(err)
		req.Empty(sink.msgs)
		req.Zero(counters.batches)
	})
}

func TestReduce_SinkFailure(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Write(gomock.Any()).Return(errors.New("sink unavailable"))

	r := newTestReducer(t, "LITETABLE_ROW_KEY,d:a", sink, &fakeCounters{}, 0, true)

	err := r.Reduce([]byte("row1"), &sliceIter{lines: []string{"row1\tv"}})
	req.Error(err)
	req.Contains(err.Error(), "sink unavailable")
}
