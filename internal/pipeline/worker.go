package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"aumon/internal/platform/metrics"
)

const (
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// Worker drains the ring buffer and fans batches out to the configured
// sinks. A failing sink is logged and counted, never fatal: the audit
// stream must keep flowing even when a downstream system is down.
type Worker struct {
	buf     *RingBuffer
	notify  <-chan struct{}
	sinks   []Sink
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	batchSize     int
	flushInterval time.Duration
}

// NewWorker creates a worker draining buf on notifications from pub.
func NewWorker(buf *RingBuffer, pub *Publisher, sinks []Sink, log *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		buf:           buf,
		notify:        pub.Notify(),
		sinks:         sinks,
		log:           log,
		metrics:       m,
		tracer:        otel.Tracer("aumon/pipeline"),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
}

// Run drains the buffer until ctx is cancelled, then performs one final
// flush so shutdown does not lose buffered records.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-w.notify:
			w.flush(ctx)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Worker) flush(ctx context.Context) {
	for {
		batch := w.buf.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		w.deliver(ctx, batch)
	}
}

func (w *Worker) deliver(ctx context.Context, batch []Record) {
	ctx, span := w.tracer.Start(ctx, "pipeline.deliver",
		trace.WithAttributes(
			attribute.Int("batch.size", len(batch)),
			attribute.Int("sinks", len(w.sinks)),
		))
	defer span.End()

	for _, sink := range w.sinks {
		for _, rec := range batch {
			if err := sink.Append(ctx, rec); err != nil {
				w.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				w.log.Error("sink append failed",
					"sink", sink.Name(),
					"record_id", rec.ID,
					"error", err,
				)
			}
		}
	}
}
