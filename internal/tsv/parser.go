// Package tsv parses delimited text lines into typed column spans.
//
// A parser is configured once with a column specification: a comma-separated
// list of family:qualifier pairs plus the reserved markers below. Parsing a
// line never copies bytes; a ParsedLine holds (offset, length) spans into
// the raw line buffer and is discarded after cell construction.
package tsv

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reserved column markers. A column named by one of these carries loader
// metadata instead of cell data.
const (
	RowKeyColumn     = "LITETABLE_ROW_KEY"
	TimestampColumn  = "LITETABLE_TS_KEY"
	AttributesColumn = "LITETABLE_ATTRIBUTES_KEY"
	VisibilityColumn = "LITETABLE_VISIBILITY_KEY"
)

const noIndex = -1

// Parser splits delimited lines according to a fixed column specification.
type Parser struct {
	separator byte

	// parallel to the column spec; nil entries are reserved columns
	families   [][]byte
	qualifiers [][]byte

	rowKeyIndex     int
	timestampIndex  int
	attributesIndex int
	visibilityIndex int
}

type Config struct {
	// Columns is the comma-separated column specification,
	// ex: "LITETABLE_ROW_KEY,d:name,d:age,LITETABLE_TS_KEY"
	Columns string
	// Separator is the single delimiter byte between columns.
	Separator byte
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Columns == "" {
		errGrp = append(errGrp, errors.New("column specification is required"))
	}
	if c.Separator == 0 {
		errGrp = append(errGrp, errors.New("separator is required"))
	}
	return errors.Join(errGrp...)
}

// New builds a parser from the column specification. A missing row-key
// column is a configuration error and fails immediately.
func New(cfg *Config) (*Parser, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Parser{
		separator:       cfg.Separator,
		rowKeyIndex:     noIndex,
		timestampIndex:  noIndex,
		attributesIndex: noIndex,
		visibilityIndex: noIndex,
	}

	for i, col := range strings.Split(cfg.Columns, ",") {
		col = strings.TrimSpace(col)
		switch col {
		case RowKeyColumn:
			p.rowKeyIndex = i
			p.families = append(p.families, nil)
			p.qualifiers = append(p.qualifiers, nil)
		case TimestampColumn:
			p.timestampIndex = i
			p.families = append(p.families, nil)
			p.qualifiers = append(p.qualifiers, nil)
		case AttributesColumn:
			p.attributesIndex = i
			p.families = append(p.families, nil)
			p.qualifiers = append(p.qualifiers, nil)
		case VisibilityColumn:
			p.visibilityIndex = i
			p.families = append(p.families, nil)
			p.qualifiers = append(p.qualifiers, nil)
		default:
			family, qualifier, _ := strings.Cut(col, ":")
			if family == "" {
				return nil, fmt.Errorf("column %d has no family: %q", i, col)
			}
			p.families = append(p.families, []byte(family))
			p.qualifiers = append(p.qualifiers, []byte(qualifier))
		}
	}

	if p.rowKeyIndex == noIndex {
		return nil, errors.New("no row key column specified")
	}

	return p, nil
}

// ColumnCount returns the number of columns every line must carry.
func (p *Parser) ColumnCount() int { return len(p.families) }

// RowKeyIndex returns the reserved row-key column index.
func (p *Parser) RowKeyIndex() int { return p.rowKeyIndex }

// TimestampIndex returns the reserved timestamp column index, or -1.
func (p *Parser) TimestampIndex() int { return p.timestampIndex }

// AttributesIndex returns the reserved attributes column index, or -1.
func (p *Parser) AttributesIndex() int { return p.attributesIndex }

// VisibilityIndex returns the reserved visibility column index, or -1.
func (p *Parser) VisibilityIndex() int { return p.visibilityIndex }

// Family returns the column family bytes for column i; nil for reserved
// columns.
func (p *Parser) Family(i int) []byte { return p.families[i] }

// Qualifier returns the column qualifier bytes for column i; nil for
// reserved columns.
func (p *Parser) Qualifier(i int) []byte { return p.qualifiers[i] }

// ParsedLine is the span view of one parsed line. It aliases the raw line
// buffer and must not outlive it.
type ParsedLine struct {
	line    []byte
	offsets []int
	lengths []int

	rowKeyIndex     int
	attributesIndex int
	visibilityIndex int

	timestamp    int64
	hasTimestamp bool
}

// ColumnCount returns the number of column spans on the line.
func (l *ParsedLine) ColumnCount() int { return len(l.offsets) }

// ColumnOffset returns the byte offset of column i in the raw line.
func (l *ParsedLine) ColumnOffset(i int) int { return l.offsets[i] }

// ColumnLength returns the byte length of column i.
func (l *ParsedLine) ColumnLength(i int) int { return l.lengths[i] }

// Column returns the span of column i. The slice aliases the raw line.
func (l *ParsedLine) Column(i int) []byte {
	return l.line[l.offsets[i] : l.offsets[i]+l.lengths[i]]
}

// RowKey returns the row-key span. The slice aliases the raw line.
func (l *ParsedLine) RowKey() []byte { return l.Column(l.rowKeyIndex) }

// Attributes returns the attributes span, or nil when the line carries none.
func (l *ParsedLine) Attributes() []byte {
	if l.attributesIndex == noIndex || l.lengths[l.attributesIndex] == 0 {
		return nil
	}
	return l.Column(l.attributesIndex)
}

// Visibility returns the visibility expression, or "" when the line
// carries none.
func (l *ParsedLine) Visibility() string {
	if l.visibilityIndex == noIndex || l.lengths[l.visibilityIndex] == 0 {
		return ""
	}
	return string(l.Column(l.visibilityIndex))
}

// TimestampOr returns the line's own timestamp when it carries one,
// otherwise def.
func (l *ParsedLine) TimestampOr(def int64) int64 {
	if l.hasTimestamp {
		return l.timestamp
	}
	return def
}

// Parse splits line[:length] into column spans. Structural failures (wrong
// column count, empty row key, unparseable timestamp) return a
// *BadLineError.
func (p *Parser) Parse(line []byte, length int) (*ParsedLine, error) {
	line = line[:length]

	parsed := &ParsedLine{
		line:            line,
		rowKeyIndex:     p.rowKeyIndex,
		attributesIndex: p.attributesIndex,
		visibilityIndex: p.visibilityIndex,
	}

	start := 0
	for {
		i := bytes.IndexByte(line[start:], p.separator)
		if i < 0 {
			parsed.offsets = append(parsed.offsets, start)
			parsed.lengths = append(parsed.lengths, len(line)-start)
			break
		}
		parsed.offsets = append(parsed.offsets, start)
		parsed.lengths = append(parsed.lengths, i)
		start += i + 1
	}

	if len(parsed.offsets) != p.ColumnCount() {
		return nil, newBadLine(errColumnCount, "got %d, want %d", len(parsed.offsets), p.ColumnCount())
	}
	if parsed.lengths[p.rowKeyIndex] == 0 {
		return nil, newBadLine(errEmptyRowKey, "column %d", p.rowKeyIndex)
	}
	if p.timestampIndex != noIndex && parsed.lengths[p.timestampIndex] > 0 {
		ts, err := strconv.ParseInt(string(parsed.Column(p.timestampIndex)), 10, 64)
		if err != nil {
			return nil, newBadLine(errBadTimestamp, "%q", parsed.Column(p.timestampIndex))
		}
		parsed.timestamp = ts
		parsed.hasTimestamp = true
	}

	return parsed, nil
}

// RowKey extracts only the row-key span from line[:length], used by the
// grouping driver before the full parse happens in the reducer. The span
// aliases the line buffer.
func (p *Parser) RowKey(line []byte, length int) ([]byte, error) {
	line = line[:length]

	start := 0
	for col := 0; ; col++ {
		i := bytes.IndexByte(line[start:], p.separator)
		if col == p.rowKeyIndex {
			end := len(line)
			if i >= 0 {
				end = start + i
			}
			if end == start {
				return nil, newBadLine(errEmptyRowKey, "column %d", p.rowKeyIndex)
			}
			return line[start:end], nil
		}
		if i < 0 {
			return nil, newBadLine(errColumnCount, "line ended before row key column %d", p.rowKeyIndex)
		}
		start += i + 1
	}
}
