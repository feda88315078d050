package pipeline

import "context"

// Sink accepts pipeline records for delivery. Implementations must be
// safe for concurrent use.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	Append(ctx context.Context, rec Record) error
}

// Store is a sink that can also serve recent records back to the query
// surface.
type Store interface {
	Sink
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
