package segment

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/litetable/litetable-bulkload/internal/cell"
	"github.com/stretchr/testify/require"
)

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readSegment(t *testing.T, path string) []*cell.Cell {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var cells []*cell.Cell
	for {
		c, decodeErr := decodeCell(f)
		if decodeErr == io.EOF {
			return cells
		}
		require.NoError(t, decodeErr)
		cells = append(cells, c)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		w, err := New(&Config{})
		req.Error(err)
		req.Nil(w)
	})

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		w, err := New(&Config{OutputDir: t.TempDir()})
		req.NoError(err)
		req.NotNil(w)
		req.Equal("Segment Writer", w.Name())
		req.NoError(w.Start())
	})
}

func TestWriter_RoundTrip(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	dir := t.TempDir()
	w, err := New(&Config{OutputDir: dir})
	req.NoError(err)

	labeled := cell.NewPut([]byte("row1"), []byte("d"), []byte("a"), 100, []byte("v1"))
	labeled.Labels = []byte{1, 2}
	plain := cell.NewPut([]byte("row1"), []byte("d"), []byte("b"), 200, []byte("v2"))

	req.NoError(w.Write(cell.NewCellMessage([]byte("row1"), labeled)))
	req.NoError(w.Write(cell.NewCellMessage([]byte("row1"), plain)))
	req.NoError(w.Stop())

	files := segmentFiles(t, dir)
	req.Len(files, 1)

	cells := readSegment(t, filepath.Join(dir, files[0]))
	req.Len(cells, 2)
	req.Equal(labeled, cells[0])
	req.Equal(plain, cells[1])
}

func TestWriter_BoundaryRollsSegment(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	dir := t.TempDir()
	w, err := New(&Config{OutputDir: dir})
	req.NoError(err)

	first := cell.NewPut([]byte("row1"), []byte("d"), []byte("a"), 1, []byte("v1"))
	second := cell.NewPut([]byte("row1"), []byte("d"), []byte("a"), 2, []byte("v2"))

	req.NoError(w.Write(cell.NewCellMessage([]byte("row1"), first)))
	req.NoError(w.Write(cell.NewBoundary()))
	req.NoError(w.Write(cell.NewCellMessage([]byte("row1"), second)))
	req.NoError(w.Stop())

	files := segmentFiles(t, dir)
	req.Len(files, 2)

	req.Equal([]*cell.Cell{first}, readSegment(t, filepath.Join(dir, files[0])))
	req.Equal([]*cell.Cell{second}, readSegment(t, filepath.Join(dir, files[1])))
}

func TestWriter_GroupChangeDoesNotRoll(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	dir := t.TempDir()
	w, err := New(&Config{OutputDir: dir})
	req.NoError(err)

	req.NoError(w.Write(cell.NewCellMessage([]byte("row1"),
		cell.NewPut([]byte("row1"), []byte("d"), []byte("a"), 1, []byte("v")))))
	req.NoError(w.Write(cell.NewCellMessage([]byte("row2"),
		cell.NewPut([]byte("row2"), []byte("d"), []byte("a"), 1, []byte("v")))))
	req.NoError(w.Stop())

	req.Len(segmentFiles(t, dir), 1)
}

func TestWriter_EmptyLoadLeavesNoFiles(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	dir := t.TempDir()
	w, err := New(&Config{OutputDir: dir})
	req.NoError(err)

	// a boundary with nothing written yet must not create a file either
	req.NoError(w.Write(cell.NewBoundary()))
	req.NoError(w.Stop())
	req.Empty(segmentFiles(t, dir))
}
