package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"aumon/internal/platform/metrics"
)

type WorkerSuite struct {
	suite.Suite
	buf     *RingBuffer
	pub     *Publisher
	store   *MemoryStore
	metrics *metrics.Metrics
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.buf = NewRingBuffer(16)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.pub = NewPublisher(s.buf, log, s.metrics)
	s.store = NewMemoryStore(100)
}

func (s *WorkerSuite) runWorker(sinks ...Sink) (cancel func()) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(s.buf, s.pub, sinks, log, s.metrics)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return func() {
		stop()
		<-done
	}
}

func (s *WorkerSuite) TestDeliversPublishedRecords() {
	stop := s.runWorker(s.store)
	defer stop()

	s.pub.Publish(rec("a"))
	s.pub.Publish(rec("b"))

	s.Eventually(func() bool {
		got, err := s.store.ListRecent(context.Background(), 10)
		return err == nil && len(got) == 2
	}, time.Second, 5*time.Millisecond)
}

func (s *WorkerSuite) TestFinalFlushOnShutdown() {
	// Enqueue before the worker starts so delivery can only happen in
	// the shutdown flush.
	s.pub.Publish(rec("late"))

	stop := s.runWorker(s.store)
	stop()

	got, err := s.store.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *WorkerSuite) TestFailingSinkDoesNotStopDelivery() {
	stop := s.runWorker(&failingSink{}, s.store)
	defer stop()

	s.pub.Publish(rec("a"))

	s.Eventually(func() bool {
		got, err := s.store.ListRecent(context.Background(), 10)
		return err == nil && len(got) == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *WorkerSuite) TestPublishNeverBlocksWhenFull() {
	small := NewRingBuffer(2)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := NewPublisher(small, log, s.metrics)

	for i := 0; i < 10; i++ {
		pub.Publish(rec("x"))
	}
	s.Equal(2, small.Len())
	s.Equal(int64(8), small.Dropped())
}

type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Append(context.Context, Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("sink unavailable")
}
