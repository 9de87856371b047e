// Package visibility turns cell visibility expressions into encoded label
// metadata carried on a cell.
//
// An expression is a boolean combination of label atoms, ex:
// "secret&(audit|!billing)". Labels are mapped to small integer ordinals by
// a process-local registry; the encoded form is the postfix walk of the
// expression with ordinals varint-encoded. A malformed expression is always
// a fatal error, there is no skip policy for visibility.
package visibility

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/litetable/litetable-bulkload/internal/cell"
)

// encoded element markers
const (
	opLabel byte = 1
	opAnd   byte = 2
	opOr    byte = 3
	opNot   byte = 4
)

var (
	// ErrMalformedExpression is returned when a visibility expression
	// cannot be parsed.
	ErrMalformedExpression = errors.New("malformed visibility expression")
)

// Expander builds labeled cells from visibility expressions. Safe for use
// from multiple goroutines; the ordinal registry is guarded.
type Expander struct {
	mu       sync.Mutex
	ordinals map[string]int
	next     int
}

// New creates an expander with an empty label registry.
func New() *Expander {
	return &Expander{
		ordinals: make(map[string]int),
		next:     1,
	}
}

// ordinal returns the stable ordinal for a label, assigning the next free
// one on first sight.
func (e *Expander) ordinal(label string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ord, ok := e.ordinals[label]; ok {
		return ord
	}
	ord := e.next
	e.next++
	e.ordinals[label] = ord
	return ord
}

// BuildLabeledCell constructs a write-cell carrying the encoded form of
// expr. Inputs are copied, same as a plain cell. The error is fatal for the
// whole load.
func (e *Expander) BuildLabeledCell(rowKey, family, qualifier []byte, ts int64, value []byte, expr string) (*cell.Cell, error) {
	labels, err := e.Encode(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to expand visibility expression: %w", err)
	}

	c := cell.NewPut(rowKey, family, qualifier, ts, value)
	c.Labels = labels
	return c, nil
}

// Encode parses expr and returns its encoded label metadata.
func (e *Expander) Encode(expr string) ([]byte, error) {
	p := &exprParser{input: expr, expander: e}
	out, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, newMalformed(expr, p.pos, "trailing input")
	}
	return out, nil
}

func newMalformed(expr string, pos int, what string) error {
	return fmt.Errorf("%w: %s at position %d in %q", ErrMalformedExpression, what, pos, expr)
}

// exprParser is a recursive-descent parser emitting postfix bytes.
//
//	or     := and ('|' and)*
//	and    := factor ('&' factor)*
//	factor := '!' factor | '(' or ')' | label
type exprParser struct {
	input    string
	pos      int
	expander *Expander
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseOr() ([]byte, error) {
	out, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		c, ok := p.peek()
		if !ok || c != '|' {
			return out, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		out = append(append(out, right...), opOr)
	}
}

func (p *exprParser) parseAnd() ([]byte, error) {
	out, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		c, ok := p.peek()
		if !ok || c != '&' {
			return out, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		out = append(append(out, right...), opAnd)
	}
}

func (p *exprParser) parseFactor() ([]byte, error) {
	c, ok := p.peek()
	if !ok {
		return nil, newMalformed(p.input, p.pos, "unexpected end of expression")
	}

	switch c {
	case '!':
		p.pos++
		out, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return append(out, opNot), nil
	case '(':
		p.pos++
		out, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		next, nextOK := p.peek()
		if !nextOK || next != ')' {
			return nil, newMalformed(p.input, p.pos, "missing closing parenthesis")
		}
		p.pos++
		return out, nil
	default:
		return p.parseLabel()
	}
}

func isLabelByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '.':
		return true
	}
	return false
}

func (p *exprParser) parseLabel() ([]byte, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isLabelByte(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, newMalformed(p.input, p.pos, fmt.Sprintf("unexpected %q", p.input[p.pos]))
	}

	ord := p.expander.ordinal(p.input[start:p.pos])
	out := []byte{opLabel}
	return binary.AppendUvarint(out, uint64(ord)), nil
}
