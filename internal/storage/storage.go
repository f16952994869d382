// Package storage accumulates extracted records for the run and writes them
// to the configured sinks once, at the end.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// Sink persists the complete set of records of a run.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []*models.ProductRecord) error
}

// Aggregator keeps records in arrival order. Nothing is written before Flush.
type Aggregator struct {
	mu       sync.RWMutex
	records  []*models.ProductRecord
	primary  Sink
	optional []Sink
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewAggregator returns an aggregator whose Flush fails when primary fails.
func NewAggregator(primary Sink, m *metrics.Collector, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		primary: primary,
		metrics: m,
		logger:  logger.With("component", "aggregator"),
	}
}

// AddSink registers a best-effort sink. Its failures are logged only.
func (a *Aggregator) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.optional = append(a.optional, s)
}

func (a *Aggregator) Add(rec *models.ProductRecord) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Records returns a copy of the accumulated records.
func (a *Aggregator) Records() []*models.ProductRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*models.ProductRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Flush writes every record to the primary sink, then to each optional sink.
func (a *Aggregator) Flush(ctx context.Context) error {
	records := a.Records()

	a.mu.RLock()
	optional := append([]Sink(nil), a.optional...)
	a.mu.RUnlock()

	err := a.primary.Write(ctx, records)
	a.metrics.SinkWrite(a.primary.Name(), err)
	if err != nil {
		return fmt.Errorf("failed to write %s sink: %w", a.primary.Name(), err)
	}
	a.logger.Info("records written", "sink", a.primary.Name(), "count", len(records))

	for _, s := range optional {
		err := s.Write(ctx, records)
		a.metrics.SinkWrite(s.Name(), err)
		if err != nil {
			a.logger.Error("failed to write optional sink", "sink", s.Name(), "error", err)
			continue
		}
		a.logger.Info("records written", "sink", s.Name(), "count", len(records))
	}

	return nil
}
