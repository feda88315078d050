// Package collector runs the record-to-pipeline loop: it assembles one
// event per audit record and hands produced events to the pipeline.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aumon/internal/event"
	"aumon/internal/pipeline"
	"aumon/internal/platform/metrics"
)

// Collector drives the assembler over a record source until the source
// drains or fails.
type Collector struct {
	asm     *event.Assembler
	src     *trackingSource
	filter  []uint16
	capture event.CaptureFlags
	pub     *pipeline.Publisher
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a collector. filter and capture are passed through to the
// assembler on every record.
func New(asm *event.Assembler, src event.RecordSource, filter []uint16, capture event.CaptureFlags,
	pub *pipeline.Publisher, log *slog.Logger, m *metrics.Metrics) *Collector {
	return &Collector{
		asm:     asm,
		src:     &trackingSource{src: src},
		filter:  filter,
		capture: capture,
		pub:     pub,
		log:     log,
		metrics: m,
	}
}

// Run assembles records until the source is exhausted, the stream fails
// or ctx is cancelled. A drained source (live pipes never drain; trail
// files and closed pipes do) ends the run without error.
func (c *Collector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := event.NewEvent()
		outcome, err := c.asm.Assemble(ev, c.filter, c.capture, c.src)
		if err != nil {
			ev.Close()
			if errors.Is(err, event.ErrResourceExhausted) {
				c.metrics.EventsExhausted.Inc()
				c.log.Warn("record abandoned, capture budget exhausted", "error", err)
				continue
			}
			// Shutdown closes the stream out from under a blocked read;
			// that read error is the cancellation, not a stream failure.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("assemble record: %w", err)
		}

		if outcome == event.OutcomeSkipped {
			ev.Close()
			if c.src.drained {
				return nil
			}
			c.metrics.EventsSkipped.Inc()
			continue
		}

		c.metrics.EventsProduced.Inc()
		c.pub.Publish(pipeline.FromEvent(ev))
		c.log.Debug("event produced", "type", ev.Type, "name", ev.Name())
		ev.Close()
	}
}

// trackingSource remembers whether the last read hit end of stream, so
// Run can tell a drained source apart from a filtered record: both come
// back from the assembler as a skip.
type trackingSource struct {
	src     event.RecordSource
	drained bool
}

func (t *trackingSource) ReadRecord() ([]byte, error) {
	buf, err := t.src.ReadRecord()
	t.drained = err == nil && len(buf) == 0
	return buf, err
}
