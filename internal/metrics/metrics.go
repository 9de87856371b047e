// Package metrics holds the loader's prometheus collectors. The bad-line
// counter is the one piece of state shared across workers; prometheus
// counters increment atomically so no extra locking is needed here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all loader-level collectors.
type Metrics struct {
	BadLines     prometheus.Counter
	CellsEmitted prometheus.Counter
	Batches      prometheus.Counter
	Boundaries   prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered on its
// own registry.
func New() *Metrics {
	m := &Metrics{
		BadLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litetable",
			Subsystem: "bulkload",
			Name:      "bad_lines_total",
			Help:      "Total number of input lines skipped as malformed",
		}),
		CellsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litetable",
			Subsystem: "bulkload",
			Name:      "cells_emitted_total",
			Help:      "Total number of cells written downstream",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litetable",
			Subsystem: "bulkload",
			Name:      "batches_total",
			Help:      "Total number of sorted batches emitted",
		}),
		Boundaries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "litetable",
			Subsystem: "bulkload",
			Name:      "boundaries_total",
			Help:      "Total number of batch boundaries signaled after threshold cuts",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.BadLines, m.CellsEmitted, m.Batches, m.Boundaries)
	return m
}

// Registry exposes the underlying registry for scraping or gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncBadLines counts one skipped input line.
func (m *Metrics) IncBadLines() { m.BadLines.Inc() }

// AddCellsEmitted counts n cells written downstream.
func (m *Metrics) AddCellsEmitted(n int) { m.CellsEmitted.Add(float64(n)) }

// IncBatches counts one emitted batch.
func (m *Metrics) IncBatches() { m.Batches.Inc() }

// IncBoundaries counts one boundary signal.
func (m *Metrics) IncBoundaries() { m.Boundaries.Inc() }
