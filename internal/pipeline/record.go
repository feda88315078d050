// Package pipeline carries assembled audit events downstream: buffering,
// fan-out to sinks and the query surface backing the HTTP API.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"aumon/internal/event"
)

// Category buckets event records for downstream routing.
type Category string

const (
	// CategorySecurity marks events the detection pipeline cares about:
	// process launches, exits and network connections.
	CategorySecurity Category = "security"
	// CategoryOps is everything else; retained for troubleshooting.
	CategoryOps Category = "ops"
)

// securityEventTypes is the source of truth for classification. Audit
// event types are kernel-assigned and stable.
var securityEventTypes = map[uint16]struct{}{
	1:     {}, // exit
	2:     {}, // fork
	23:    {}, // execve
	32:    {}, // connect
	33:    {}, // accept
	34:    {}, // bind
	43190: {}, // posix_spawn
	43195: {}, // fork1
}

// Classify returns the category for an audit event type.
func Classify(eventType uint16) Category {
	if _, ok := securityEventTypes[eventType]; ok {
		return CategorySecurity
	}
	return CategoryOps
}

// Record is the pipeline's unit of work: a flattened, serializable view
// of one assembled audit event. Unlike event.AuditEvent it owns all its
// memory and stays valid after the source event is closed.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType uint16    `json:"event_type"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`

	SubjectPID *uint32 `json:"subject_pid,omitempty"`
	SubjectUID *uint32 `json:"subject_uid,omitempty"`

	ExecArgs []string `json:"exec_args,omitempty"`
	Paths    []string `json:"paths,omitempty"`

	ReturnError *uint32 `json:"return_error,omitempty"`

	// Line is the rendered diagnostic line, the canonical human-readable
	// form of the event.
	Line string `json:"line"`
}

// FromEvent flattens an assembled event into a Record. The event remains
// owned by the caller; all slices are copied.
func FromEvent(ev *event.AuditEvent) Record {
	rec := Record{
		ID:        uuid.New(),
		Timestamp: ev.Timestamp,
		EventType: ev.Type,
		Name:      ev.Name(),
		Category:  Classify(ev.Type),
		ExecArgs:  append([]string(nil), ev.ExecArgs...),
		Paths:     append([]string(nil), ev.Path...),
		Line:      ev.String(),
	}
	if ev.Subject != nil {
		pid, uid := ev.Subject.PID, ev.Subject.EUID
		rec.SubjectPID = &pid
		rec.SubjectUID = &uid
	}
	if ev.Return != nil {
		e := ev.Return.Error
		rec.ReturnError = &e
	}
	return rec
}
