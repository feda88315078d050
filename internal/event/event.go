// Package event turns raw BSM audit records into typed audit events.
//
// The central type is AuditEvent, one per record, exclusively owned by the
// caller between NewEvent and Close. The Assembler populates it in a
// single pass over the record's tokens, enforcing per-record invariants
// and fixed capacities; Render serializes it as the normative diagnostic
// line consumed by downstream tooling.
package event

import "time"

// Capacity limits. Records exceeding them are skipped as a whole, never
// truncated into a partially filled event.
const (
	// MaxArgs is the number of syscall argument slots.
	MaxArgs = 32
	// MaxText bounds free-form text tokens per record.
	MaxText = 4
	// MaxPath bounds path tokens per record. macOS emits an unresolved
	// and a resolved path per path argument, and syscalls have at most
	// two path arguments, hence four.
	MaxPath = 4
	// MaxAttrs bounds vnode attribute tokens per record.
	MaxAttrs = 4
	// MaxUnknownTokenIDs bounds the diagnostic set of uninterpreted
	// token kinds.
	MaxUnknownTokenIDs = 256
)

// NoDevice marks an absent controlling-terminal device. The kernel
// reports subjects without a TTY as attached to /dev/null; the assembler
// normalizes that to this value.
const NoDevice = ^uint32(0)

// Identity describes an audit subject or an audited process: the
// credential set, session and controlling terminal.
type Identity struct {
	AUID uint32
	EUID uint32
	EGID uint32
	RUID uint32
	RGID uint32
	PID  uint32
	SID  uint32
	// TTYDev is the controlling-terminal device id, NoDevice if absent.
	TTYDev uint32
	// TTYAddr is the controlling-terminal network address, unspecified
	// unless a non-zero address was present in the token.
	TTYAddr NetAddr
}

// ArgSlot holds one syscall argument. Text is the kernel's diagnostic
// label for the argument, captured only when requested.
type ArgSlot struct {
	Present bool
	Value   uint64
	Text    string
}

// ReturnValue is the normalized syscall outcome shared by both on-disk
// return token variants.
type ReturnValue struct {
	Error uint32
	Value uint32
}

// ExitStatus carries a process exit token.
type ExitStatus struct {
	Status uint32
	Return uint32
}

// FileAttr carries one vnode attribute token.
type FileAttr struct {
	Mode uint32
	UID  uint32
	GID  uint32
	Dev  uint32
	Ino  uint64
}

// SockPeer is the internet socket peer from a socket address token.
type SockPeer struct {
	Addr NetAddr
	Port uint16
}

// AuditEvent is one decoded audit record. Pointer fields model
// set-at-most-once tokens; nil means the token did not occur.
type AuditEvent struct {
	Type      uint16
	Modifier  uint16
	Timestamp time.Time

	Subject *Identity
	Process *Identity

	Args      [MaxArgs]ArgSlot
	ArgsCount int

	Return *ReturnValue
	Exit   *ExitStatus

	Text  []string
	Path  []string
	Attrs []FileAttr

	ExecArgs []string
	ExecEnv  []string

	SockPeer *SockPeer

	unknownIDs tokenIDSet

	// allocFailed is sticky: once a variable-length payload could not be
	// built, the event is invalid and must be discarded by the caller.
	allocFailed bool

	raw []byte
}

// NewEvent returns a zeroed event ready for one Assemble call.
func NewEvent() *AuditEvent {
	return &AuditEvent{}
}

// Reset returns the event to its freshly created state.
func (ev *AuditEvent) Reset() {
	*ev = AuditEvent{}
}

// Close releases the raw record buffer and the exec vectors. It is safe on
// a partially populated or never-produced event and is idempotent.
func (ev *AuditEvent) Close() {
	ev.raw = nil
	ev.ExecArgs = nil
	ev.ExecEnv = nil
}

// Raw exposes the raw record bytes backing this event, valid until Close.
func (ev *AuditEvent) Raw() []byte {
	return ev.raw
}

// UnknownTokenIDs lists token kinds the assembler did not interpret, in
// first-seen order.
func (ev *AuditEvent) UnknownTokenIDs() []uint16 {
	return ev.unknownIDs.ids
}

// AllocFailed reports whether a payload could not be built; such an event
// must not be treated as valid.
func (ev *AuditEvent) AllocFailed() bool {
	return ev.allocFailed
}

// tokenIDSet is a bounded, insertion-ordered set of token ids. Purely a
// diagnostic aid: once full, further ids are dropped.
type tokenIDSet struct {
	ids []uint16
}

func (s *tokenIDSet) add(id uint16) {
	if len(s.ids) >= MaxUnknownTokenIDs {
		return
	}
	for _, have := range s.ids {
		if have == id {
			return
		}
	}
	s.ids = append(s.ids, id)
}
