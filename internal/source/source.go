// Package source is the grouping driver: it reads the delimited input
// file, groups lines by row key, and feeds each group to the reducer in
// byte order of the keys. Grouping holds the raw lines in memory; the
// memory-bounded part of the pipeline is the reducer's batching.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/litetable/litetable-bulkload/internal/reducer"
	"github.com/rs/zerolog/log"
)

// input lines longer than this fail the scan
const maxLineSize = 16 * 1024 * 1024

type keyExtractor interface {
	RowKey(line []byte, length int) ([]byte, error)
}

type groupReducer interface {
	Reduce(key []byte, lines reducer.Iterator) error
}

type counters interface {
	IncBadLines()
}

// Manager drives the whole load. It implements the app.Dependency
// interface and closes Done when every group has been processed.
type Manager struct {
	inputPath    string
	parser       keyExtractor
	reducer      groupReducer
	counters     counters
	skipBadLines bool

	done    chan struct{}
	stopped atomic.Bool
}

type Config struct {
	InputPath string
	Parser    keyExtractor
	Reducer   groupReducer
	Counters  counters
	// SkipBadLines counts and drops lines whose row key cannot be
	// extracted instead of failing the load.
	SkipBadLines bool
}

func (c *Config) validate() error {
	var errGrp []error
	if c.InputPath == "" {
		errGrp = append(errGrp, errors.New("input path is required"))
	}
	if c.Parser == nil {
		errGrp = append(errGrp, errors.New("parser is required"))
	}
	if c.Reducer == nil {
		errGrp = append(errGrp, errors.New("reducer is required"))
	}
	if c.Counters == nil {
		errGrp = append(errGrp, errors.New("counters are required"))
	}
	return errors.Join(errGrp...)
}

func New(cfg *Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		inputPath:    cfg.InputPath,
		parser:       cfg.Parser,
		reducer:      cfg.Reducer,
		counters:     cfg.Counters,
		skipBadLines: cfg.SkipBadLines,
		done:         make(chan struct{}),
	}, nil
}

// Start runs the load to completion: scan, group, then reduce group by
// group. Done is closed only on success; a failure surfaces through the
// returned error instead.
func (m *Manager) Start() error {
	groups, order, err := m.load()
	if err != nil {
		return err
	}

	log.Info().Int("groups", len(order)).Str("input", m.inputPath).Msg("Input grouped")

	for _, key := range order {
		if m.stopped.Load() {
			return errors.New("load interrupted")
		}
		if err := m.reducer.Reduce([]byte(key), &lineIterator{lines: groups[key]}); err != nil {
			return fmt.Errorf("failed to process group %q: %w", key, err)
		}
	}

	log.Info().Msg("Load complete")
	close(m.done)
	return nil
}

// Stop aborts the load at the next group change.
func (m *Manager) Stop() error {
	m.stopped.Store(true)
	return nil
}

func (m *Manager) Name() string {
	return "Bulkload Source"
}

// Done is closed when every group has been reduced.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// load scans the input file once and buckets raw lines by row key.
// Returns the buckets and the keys in byte order.
func (m *Manager) load() (map[string][][]byte, []string, error) {
	file, err := os.Open(m.inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	groups := make(map[string][][]byte)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		key, keyErr := m.parser.RowKey(line, len(line))
		if keyErr != nil {
			if m.skipBadLines {
				log.Warn().Err(keyErr).Int("line", lineNo).Msg("Skipping line with no row key")
				m.counters.IncBadLines()
				continue
			}
			return nil, nil, fmt.Errorf("line %d: %w", lineNo, keyErr)
		}

		// the scanner reuses its buffer between lines
		groups[string(key)] = append(groups[string(key)], bytes.Clone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}

	order := make([]string, 0, len(groups))
	for key := range groups {
		order = append(order, key)
	}
	sort.Strings(order)
	return groups, order, nil
}

// lineIterator is the forward-only, single-pass view of one group's lines.
type lineIterator struct {
	lines [][]byte
	i     int
}

func (it *lineIterator) Next() ([]byte, bool) {
	if it.i >= len(it.lines) {
		return nil, false
	}
	line := it.lines[it.i]
	it.i++
	return line, true
}
