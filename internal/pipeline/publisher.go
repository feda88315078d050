package pipeline

import (
	"log/slog"

	"aumon/internal/platform/metrics"
)

// Publisher is the collector-facing entry point of the pipeline. Publish
// never blocks: records land in the ring buffer and the worker is nudged
// over a best-effort notification channel.
type Publisher struct {
	buf     *RingBuffer
	notify  chan struct{}
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a publisher over the given buffer.
func NewPublisher(buf *RingBuffer, log *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		buf:     buf,
		notify:  make(chan struct{}, 1),
		log:     log,
		metrics: m,
	}
}

// Publish enqueues a record for delivery, dropping the oldest buffered
// record if the buffer is full.
func (p *Publisher) Publish(rec Record) {
	if dropped := p.buf.Enqueue(rec); dropped {
		p.metrics.RecordsDropped.Inc()
		p.log.Warn("pipeline buffer full, dropped oldest record",
			"buffered", p.buf.Len(),
			"dropped_total", p.buf.Dropped(),
		)
	}
	p.metrics.RecordsQueued.Inc()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Notify exposes the wakeup channel for the worker.
func (p *Publisher) Notify() <-chan struct{} {
	return p.notify
}
