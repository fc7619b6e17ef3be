// Package pipeline answers forecast requests from the source topic with
// classified reports, or with rejections naming why a report could not be
// produced, on the sink topic.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Handler answers one raw request. It never fails: requests that cannot be
// served come back as a rejection event.
type Handler interface {
	Handle(ctx context.Context, raw domain.RawEvent) Response
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline reads request batches, answers every request and commits a batch
// only once all of its answers are on the sink topic.
type Pipeline struct {
	extractor BatchExtractor
	handler   Handler
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, h Handler, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		handler:   h,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has completed a fetch from the
// source. A quiet request topic does not hold readiness back.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not reached the request topic yet")
	}
	return nil
}

// Run serves request batches until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := newBackoff(minBackoff, maxBackoff)
	for ctx.Err() == nil {
		batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("extract batch failed", "error", err, "retry_in", retry.delay())
			retry.wait(ctx)
			continue
		}
		p.ready.Store(true)
		retry.reset()

		if len(batch) > 0 {
			p.serve(ctx, batch)
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// serve answers every request in batch, delivers the answers and commits the
// batch. A batch whose delivery is cut short by shutdown stays uncommitted and
// is redelivered.
func (p *Pipeline) serve(ctx context.Context, batch []domain.RawEvent) {
	start := time.Now()
	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	events := make([]domain.OutputEvent, 0, len(batch))
	for _, raw := range batch {
		resp := p.handler.Handle(ctx, raw)
		p.observe(raw, resp)
		events = append(events, resp.Event)
	}

	if !p.deliver(ctx, events) {
		return
	}
	for _, raw := range batch {
		p.commit(ctx, raw)
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
}

func (p *Pipeline) observe(raw domain.RawEvent, resp Response) {
	if resp.Outcome == OutcomeServed {
		p.metrics.RequestsServed.WithLabelValues(string(resp.Strategy)).Inc()
		return
	}
	p.metrics.RequestsRejected.WithLabelValues(string(resp.Outcome)).Inc()

	attrs := []any{
		"reason", resp.Outcome,
		"error", resp.Err,
		"topic", raw.Topic,
		"partition", raw.Partition,
		"offset", raw.Offset,
	}
	if resp.Outcome == OutcomeFailed {
		p.logger.Error("forecast request failed", attrs...)
		return
	}
	p.logger.Warn("forecast request rejected", attrs...)
}

// deliver writes events to the sink, retrying with backoff. It returns false
// only when ctx ends before the write succeeds.
func (p *Pipeline) deliver(ctx context.Context, events []domain.OutputEvent) bool {
	retry := newBackoff(minBackoff, maxBackoff)
	for {
		err := p.loader.LoadBatch(ctx, events)
		if err == nil {
			p.metrics.MessagesProduced.Add(float64(len(events)))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.metrics.DeliveryRetries.Inc()
		p.logger.Error("load batch failed", "error", err, "batch_size", len(events), "retry_in", retry.delay())
		if !retry.wait(ctx) {
			return false
		}
	}
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff is a doubling delay between floor and ceiling.
type backoff struct {
	floor, ceiling, next time.Duration
}

func newBackoff(floor, ceiling time.Duration) *backoff {
	return &backoff{floor: floor, ceiling: ceiling, next: floor}
}

func (b *backoff) delay() time.Duration { return b.next }

func (b *backoff) reset() { b.next = b.floor }

// wait sleeps for the current delay, then doubles it. It returns false if ctx
// ends first.
func (b *backoff) wait(ctx context.Context) bool {
	d := b.next
	b.next = min(b.next*2, b.ceiling)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
