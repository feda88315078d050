package event

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"aumon/internal/bsm"
)

// Outcome reports what one Assemble call did with the record it read.
type Outcome int

const (
	// OutcomeSkipped means no event was produced: the stream had no
	// record, the record was filtered out, or it was discarded.
	OutcomeSkipped Outcome = iota
	// OutcomeProduced means the event is fully populated and immutable
	// from the caller's perspective until closed.
	OutcomeProduced
)

// EnvCapture selects how much of an exec's environment is kept.
type EnvCapture int

const (
	// CaptureEnvNone drops exec environment tokens entirely.
	CaptureEnvNone EnvCapture = iota
	// CaptureEnvDyld keeps only DYLD_-prefixed entries.
	CaptureEnvDyld
	// CaptureEnvFull keeps the whole environment.
	CaptureEnvFull
)

// CaptureFlags are the caller-selected per-invocation capture options.
type CaptureFlags struct {
	Env EnvCapture
	// ArgText attaches the kernel's diagnostic label to argument slots.
	ArgText bool
}

// RecordSource yields whole audit records. A nil slice with a nil error
// means no record is available; errors are unrecoverable stream failures.
// *bsm.RecordReader satisfies this.
type RecordSource interface {
	ReadRecord() ([]byte, error)
}

// defaultExecVecBudget bounds the total byte size of one exec argv or
// envp vector.
const defaultExecVecBudget = 256 * 1024

// Config is the per-process assembler configuration, resolved once at
// startup and read-only afterwards.
type Config struct {
	// NullDevice is the device id of the system null device. The kernel
	// reports TTY-less subjects with this device; it normalizes to
	// NoDevice.
	NullDevice uint32

	// SockPort6HostOrder reproduces the kernel defect where sockinet128
	// tokens carry the port in host byte order instead of network byte
	// order (Apple radar 43063872, unfixed as of macOS 10.14). Set false
	// only for producers known to emit network order.
	SockPort6HostOrder bool

	// MaxExecVecBytes caps the byte size of one exec argv/envp vector;
	// 0 means the default budget.
	MaxExecVecBytes int

	// Strict surfaces structural invariant violations (duplicate
	// set-once tokens) as errors instead of silently skipping the
	// record. Intended for tests and debug deployments.
	Strict bool
}

// Assembler interprets the token stream of audit records into
// AuditEvents. Safe for use by a single goroutine per stream; it holds no
// per-record state between calls.
type Assembler struct {
	cfg Config
	log *slog.Logger
}

// NewAssembler builds an assembler. A nil logger falls back to the
// default slog logger.
func NewAssembler(cfg Config, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxExecVecBytes == 0 {
		cfg.MaxExecVecBytes = defaultExecVecBudget
	}
	return &Assembler{cfg: cfg, log: log}
}

// Assemble reads exactly one record from src and populates ev from its
// tokens. ev must be freshly created or reset.
//
// A nil filter accepts every record type; a non-nil filter accepts only
// the listed types. Filtered, malformed and structurally defective
// records yield (OutcomeSkipped, nil) and leave ev in its zero state.
// Stream errors and payload budget exhaustion are returned as errors the
// caller must not ignore.
func (a *Assembler) Assemble(ev *AuditEvent, filter []uint16, capture CaptureFlags, src RecordSource) (Outcome, error) {
	buf, err := src.ReadRecord()
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("read record: %w", err)
	}
	if len(buf) == 0 {
		return OutcomeSkipped, nil
	}
	ev.raw = buf

	headerSeen := false
	for off := 0; off < len(buf); {
		tok, n, err := bsm.FetchToken(buf[off:])
		if err != nil {
			// The record reader never hands out partial records, so a
			// token that does not decode means corruption or an
			// unsupported format version. Reassembly cannot help.
			return a.skip(ev, "undecodable token, skipping record",
				"offset", off, "err", err)
		}

		if _, ok := tok.(bsm.Header); !ok && !headerSeen {
			return a.skip(ev, "record does not start with a header token",
				"offset", off)
		}

		switch t := tok.(type) {
		case bsm.Header:
			if headerSeen {
				return a.violation(ev, fmt.Errorf("second header token: %w", ErrDuplicateToken))
			}
			headerSeen = true
			if filter != nil && !slices.Contains(filter, t.Type) {
				ev.Reset()
				return OutcomeSkipped, nil
			}
			ev.Type = t.Type
			ev.Modifier = t.Modifier
			ev.Timestamp = time.Unix(t.Sec, t.NSec)

		case bsm.Trailer:
			// End marker, nothing to record.

		case bsm.Subject:
			if ev.Subject != nil {
				return a.violation(ev, fmt.Errorf("second subject token: %w", ErrDuplicateToken))
			}
			ev.Subject = a.identity(bsm.Process(t))

		case bsm.Process:
			if ev.Process != nil {
				return a.violation(ev, fmt.Errorf("second process token: %w", ErrDuplicateToken))
			}
			ev.Process = a.identity(t)

		case bsm.Arg:
			if int(t.No) >= MaxArgs {
				return a.skip(ev, "argument index beyond capacity, skipping record",
					"index", t.No)
			}
			if ev.Args[t.No].Present {
				return a.violation(ev, fmt.Errorf("argument %d set twice: %w", t.No, ErrDuplicateToken))
			}
			ev.Args[t.No].Present = true
			ev.Args[t.No].Value = t.Value
			if capture.ArgText {
				ev.Args[t.No].Text = t.Text
			}
			ev.ArgsCount = max(ev.ArgsCount, int(t.No)+1)

		case bsm.Return:
			if ev.Return != nil {
				return a.violation(ev, fmt.Errorf("second return token: %w", ErrDuplicateToken))
			}
			ev.Return = &ReturnValue{Error: uint32(t.Status), Value: uint32(t.Val)}

		case bsm.Text:
			if len(ev.Text) >= MaxText {
				return a.skip(ev, "too many text tokens, skipping record")
			}
			ev.Text = append(ev.Text, t.Text)

		case bsm.Path:
			if len(ev.Path) >= MaxPath {
				return a.skip(ev, "too many path tokens, skipping record")
			}
			ev.Path = append(ev.Path, t.Path)

		case bsm.Attr:
			if len(ev.Attrs) >= MaxAttrs {
				return a.skip(ev, "too many attr tokens, skipping record")
			}
			ev.Attrs = append(ev.Attrs, FileAttr{
				Mode: t.Mode,
				UID:  t.UID,
				GID:  t.GID,
				Dev:  t.FSID,
				Ino:  t.Node,
			})

		case bsm.ExecArgs:
			if ev.ExecArgs != nil {
				return a.violation(ev, fmt.Errorf("second exec-args token: %w", ErrDuplicateToken))
			}
			ev.ExecArgs = a.execVec(ev, t.Args, "")

		case bsm.ExecEnv:
			if capture.Env == CaptureEnvNone {
				break
			}
			if ev.ExecEnv != nil {
				return a.violation(ev, fmt.Errorf("second exec-env token: %w", ErrDuplicateToken))
			}
			prefix := ""
			if capture.Env == CaptureEnvDyld {
				prefix = "DYLD_"
			}
			ev.ExecEnv = a.execVec(ev, t.Env, prefix)

		case bsm.Exit:
			if ev.Exit != nil {
				return a.violation(ev, fmt.Errorf("second exit token: %w", ErrDuplicateToken))
			}
			ev.Exit = &ExitStatus{Status: t.Status, Return: t.Return}

		case bsm.SockInet:
			peer, ok := a.sockPeer(t)
			if ok {
				ev.SockPeer = peer
			}

		case bsm.SockUnix:
			// Reserved for future use.

		case bsm.Unknown:
			ev.unknownIDs.add(uint16(t.ID))
		}

		off += n
	}

	if ev.allocFailed {
		return OutcomeSkipped, fmt.Errorf("exec vector: %w", ErrResourceExhausted)
	}
	return OutcomeProduced, nil
}

// skip discards the record: diagnostic log line, event back to zero
// state, recovered result.
func (a *Assembler) skip(ev *AuditEvent, msg string, args ...any) (Outcome, error) {
	a.log.Warn(msg, args...)
	ev.Reset()
	return OutcomeSkipped, nil
}

// violation handles a structural defect in the record. The producer is
// expected to never emit these, so they are logged at error level; strict
// mode additionally surfaces them so callers can decide to treat them as
// fatal.
func (a *Assembler) violation(ev *AuditEvent, err error) (Outcome, error) {
	a.log.Error("structural invariant violated, skipping record", "err", err)
	ev.Reset()
	if a.cfg.Strict {
		return OutcomeSkipped, err
	}
	return OutcomeSkipped, nil
}

// identity normalizes a subject/process token into an Identity. The
// controlling terminal of TTY-less processes arrives as the null device
// with address 0.0.0.0 and becomes NoDevice plus an absent address.
func (a *Assembler) identity(t bsm.Process) *Identity {
	id := &Identity{
		AUID: t.AUID,
		EUID: t.EUID,
		EGID: t.EGID,
		RUID: t.RUID,
		RGID: t.RGID,
		PID:  t.PID,
		SID:  t.SID,
	}
	id.TTYDev = t.TID.Port
	if id.TTYDev == a.cfg.NullDevice {
		id.TTYDev = NoDevice
	}
	if t.TID.AddrType == 0 {
		var v4 [4]byte
		copy(v4[:], t.TID.Addr[:4])
		id.TTYAddr = legacyAddr(v4)
	} else {
		id.TTYAddr = exAddr(t.TID.AddrType, t.TID.Addr)
	}
	return id
}

// execVec builds a compact owned argument/environment vector, optionally
// keeping only entries whose name starts with prefix. Exceeding the byte
// budget marks the event invalid rather than truncating silently.
func (a *Assembler) execVec(ev *AuditEvent, src []string, prefix string) []string {
	out := make([]string, 0, len(src))
	size := 0
	for _, s := range src {
		if prefix != "" && !strings.HasPrefix(s, prefix) {
			continue
		}
		size += len(s)
		if size > a.cfg.MaxExecVecBytes {
			a.log.Error("exec vector exceeds byte budget", "budget", a.cfg.MaxExecVecBytes)
			ev.allocFailed = true
			return nil
		}
		out = append(out, s)
	}
	return out
}

// sockPeer validates the family discriminant and fixes up the port byte
// order. The sockinet32 variant carries the port in network order; the
// sockinet128 variant carries it in the recording host's byte order on
// affected kernels, which the policy flag selects.
func (a *Assembler) sockPeer(t bsm.SockInet) (*SockPeer, bool) {
	if !t.IPv6 {
		if t.Family != bsm.FamilyInet {
			return nil, false
		}
		var v4 [4]byte
		copy(v4[:], t.Addr[:4])
		return &SockPeer{
			Addr: IPv4Addr(v4),
			Port: binary.BigEndian.Uint16(t.PortRaw[:]),
		}, true
	}
	if t.Family != bsm.FamilyInet6 {
		return nil, false
	}
	port := binary.BigEndian.Uint16(t.PortRaw[:])
	if a.cfg.SockPort6HostOrder {
		// Verbatim host-order read on a little-endian recorder.
		port = binary.LittleEndian.Uint16(t.PortRaw[:])
	}
	return &SockPeer{Addr: IPv6Addr(t.Addr), Port: port}, true
}
