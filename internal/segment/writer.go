// Package segment persists the loader's output stream as sorted segment
// files. Cells within one segment file are in comparator order; a boundary
// message on the stream rolls to a new segment because sort-order
// continuity is not guaranteed across it. Group-key changes do not roll
// segments, ordering across groups is already guaranteed by the driver.
package segment

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/rs/zerolog/log"
)

const segmentExtension = ".seg"

// Writer writes length-prefixed cell records into segment files under one
// output directory.
type Writer struct {
	mu  sync.Mutex
	dir string

	file *os.File
	buf  *bufio.Writer

	index      int
	segments   int
	cells      int
	totalCells int
	bytes      int64
}

type Config struct {
	// OutputDir is where segment files are created.
	OutputDir string
}

func (c *Config) validate() error {
	var errGrp []error
	if c.OutputDir == "" {
		errGrp = append(errGrp, errors.New("output directory is required"))
	}
	return errors.Join(errGrp...)
}

func New(cfg *Config) (*Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{dir: cfg.OutputDir}, nil
}

// Write consumes one message from the loader's output stream.
func (w *Writer) Write(msg cell.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch msg.Kind {
	case cell.KindBoundary:
		return w.roll()
	case cell.KindCell:
		return w.writeCell(msg.Cell)
	default:
		return fmt.Errorf("unknown message kind: %d", msg.Kind)
	}
}

// writeCell appends one encoded cell to the current segment, opening the
// first segment lazily so an empty load leaves no files behind.
func (w *Writer) writeCell(c *cell.Cell) error {
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	n, err := encodeCell(w.buf, c)
	if err != nil {
		return fmt.Errorf("failed to write cell: %w", err)
	}

	w.cells++
	w.totalCells++
	w.bytes += int64(n)
	return nil
}

func (w *Writer) open() error {
	name := fmt.Sprintf("segment-%05d-%s%s", w.index, uuid.NewString(), segmentExtension)
	file, err := os.OpenFile(filepath.Join(w.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriter(file)
	w.cells = 0
	log.Debug().Str("segment", name).Msg("Opened segment")
	return nil
}

// roll closes the current segment so the next cell starts a fresh one. A
// roll with no open segment is a no-op.
func (w *Writer) roll() error {
	if w.file == nil {
		return nil
	}
	if err := w.closeSegment(); err != nil {
		return err
	}
	w.index++
	return nil
}

func (w *Writer) closeSegment() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush segment: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment: %w", err)
	}

	log.Info().Int("segment", w.index).Int("cells", w.cells).Msg("Segment complete")
	w.segments++
	w.file = nil
	w.buf = nil
	return nil
}

// Start is a no-op; the output directory is prepared in New.
func (w *Writer) Start() error {
	return nil
}

// Stop flushes and closes the open segment, if any.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		if err := w.closeSegment(); err != nil {
			return err
		}
	}

	log.Info().
		Int("segments", w.segments).
		Int("cells", w.totalCells).
		Int64("bytes", w.bytes).
		Msg("Segment writer stopped")
	return nil
}

func (w *Writer) Name() string {
	return "Segment Writer"
}
