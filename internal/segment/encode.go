package segment

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/litetable/litetable-bulkload/internal/cell"
)

// Cell record framing, all integers BigEndian so byte order of encoded
// keys matches the comparator order of the cells:
//
//	u32 rowKeyLen | rowKey | u32 familyLen | family | u32 qualifierLen |
//	qualifier | i64 timestamp | u8 type | u32 valueLen | value |
//	u32 labelsLen | labels

// encodeCell writes one framed cell and returns the number of bytes
// written.
func encodeCell(w io.Writer, c *cell.Cell) (int, error) {
	n := 0
	for _, b := range [][]byte{c.RowKey, c.Family, c.Qualifier} {
		m, err := writePrefixed(w, b)
		if err != nil {
			return n, err
		}
		n += m
	}

	if err := binary.Write(w, binary.BigEndian, c.Timestamp); err != nil {
		return n, err
	}
	n += 8

	if _, err := w.Write([]byte{byte(c.Type)}); err != nil {
		return n, err
	}
	n++

	for _, b := range [][]byte{c.Value, c.Labels} {
		m, err := writePrefixed(w, b)
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

// decodeCell reads one framed cell. Returns io.EOF cleanly at the end of a
// segment.
func decodeCell(r io.Reader) (*cell.Cell, error) {
	rowKey, err := readPrefixed(r)
	if err != nil {
		return nil, err
	}

	c := &cell.Cell{RowKey: rowKey}
	if c.Family, err = readPrefixed(r); err != nil {
		return nil, unexpectedEOF(err)
	}
	if c.Qualifier, err = readPrefixed(r); err != nil {
		return nil, unexpectedEOF(err)
	}
	if err = binary.Read(r, binary.BigEndian, &c.Timestamp); err != nil {
		return nil, unexpectedEOF(err)
	}

	var kind [1]byte
	if _, err = io.ReadFull(r, kind[:]); err != nil {
		return nil, unexpectedEOF(err)
	}
	c.Type = cell.Type(kind[0])

	if c.Value, err = readPrefixed(r); err != nil {
		return nil, unexpectedEOF(err)
	}
	if c.Labels, err = readPrefixed(r); err != nil {
		return nil, unexpectedEOF(err)
	}
	return c, nil
}

func writePrefixed(w io.Writer, b []byte) (int, error) {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return n + 4, err
}

func readPrefixed(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// unexpectedEOF converts a mid-record EOF into a hard error so a truncated
// segment is never mistaken for a clean end.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return fmt.Errorf("truncated cell record: %w", io.ErrUnexpectedEOF)
	}
	return err
}
