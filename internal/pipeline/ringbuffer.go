package pipeline

import "sync"

// RingBuffer is a bounded, thread-safe buffer of pipeline records.
// When full, the oldest records are dropped to make room for new ones:
// the collector must never block on a slow sink.
type RingBuffer struct {
	mu       sync.Mutex
	records  []Record
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000 // default
	}
	return &RingBuffer{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// Enqueue adds a record, dropping the oldest if necessary. Reports
// whether an older record was dropped.
func (b *RingBuffer) Enqueue(rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var droppedOne bool
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		droppedOne = true
	}

	b.records[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	b.count++
	return droppedOne
}

// DequeueBatch removes up to n records from the buffer.
func (b *RingBuffer) DequeueBatch(n int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]Record, n)
	for i := 0; i < n; i++ {
		result[i] = b.records[b.tail]
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n

	return result
}

// Len returns the current number of records in the buffer.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of dropped records.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
