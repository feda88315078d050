package event

import "errors"

// Sentinel errors for record assembly. Callers match with errors.Is; the
// assembler wraps them with token-level context.
//
// ErrDuplicateToken and ErrCapacityExceeded indicate structural defects in
// the record, not user-facing failures: by default the assembler recovers
// by skipping the record and only surfaces them when running strict.
var (
	// ErrDuplicateToken means a set-at-most-once token occurred twice in
	// one record, or an argument slot was written twice.
	ErrDuplicateToken = errors.New("duplicate token in record")

	// ErrCapacityExceeded means a record declared more variable-length
	// entries than the event's fixed capacities allow.
	ErrCapacityExceeded = errors.New("token capacity exceeded")

	// ErrMalformedRecord means the tokenizer could not decode the
	// remaining bytes of a record.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrResourceExhausted means a variable-length payload exceeded the
	// configured size budget; the event carries a sticky invalid flag.
	ErrResourceExhausted = errors.New("event payload budget exhausted")
)
