// Package bsm decodes BSM audit trail data: whole records from an audit
// pipe or trail file, and the individual tokens inside a record.
//
// Token layouts follow the OpenBSM on-disk encodings (big-endian). The
// package is deliberately dumb: it knows how to frame and decode tokens,
// not what they mean. Interpretation lives in internal/event.
package bsm

import (
	"errors"
	"fmt"
)

// Token ids, from the kernel's audit_record.h.
const (
	IDOtherFile32 uint8 = 0x11
	IDTrailer     uint8 = 0x13
	IDHeader32    uint8 = 0x14
	IDHeader32Ex  uint8 = 0x15
	IDData        uint8 = 0x21
	IDPath        uint8 = 0x23
	IDSubject32   uint8 = 0x24
	IDProcess32   uint8 = 0x26
	IDReturn32    uint8 = 0x27
	IDText        uint8 = 0x28
	IDOpaque      uint8 = 0x29
	IDArg32       uint8 = 0x2d
	IDSeq         uint8 = 0x2f
	IDAttr32      uint8 = 0x3e
	IDExecArgs    uint8 = 0x3c
	IDExecEnv     uint8 = 0x3d
	IDExit        uint8 = 0x52
	IDZonename    uint8 = 0x60
	IDArg64       uint8 = 0x71
	IDReturn64    uint8 = 0x72
	IDAttr64      uint8 = 0x73
	IDHeader64    uint8 = 0x74
	IDSubject64   uint8 = 0x75
	IDProcess64   uint8 = 0x77
	IDHeader64Ex  uint8 = 0x79
	IDSubject32Ex uint8 = 0x7a
	IDSubject64Ex uint8 = 0x7b
	IDProcess32Ex uint8 = 0x7c
	IDProcess64Ex uint8 = 0x7d
	IDSockInet32  uint8 = 0x80
	IDSockInet128 uint8 = 0x81
	IDSockUnix    uint8 = 0x82
)

// Terminal address types in extended subject/process tokens. The value is
// the address length in bytes.
const (
	AddrTypeIPv4 uint32 = 4
	AddrTypeIPv6 uint32 = 16
)

// TrailerMagic is the fixed marker in every trailer token.
const TrailerMagic uint16 = 0xb105

// ErrTruncated reports that the buffer ended inside a token. A record read
// by RecordReader is always complete, so a truncated token means the trail
// is corrupt or uses an unsupported format version.
var ErrTruncated = errors.New("bsm: truncated token")

// Token is one decoded audit token. Exactly one concrete type per token
// kind; the assembler switches on the concrete type.
type Token interface {
	isToken()
}

// Header carries record type, modifier and timestamp. All four on-disk
// header variants decode into this one type.
type Header struct {
	Size     uint32 // declared record byte count
	Version  uint8
	Type     uint16
	Modifier uint16
	Sec      int64
	NSec     int64
}

// Trailer closes a record.
type Trailer struct {
	Count uint32
}

// TerminalID is the controlling-terminal part of subject and process
// tokens. Addr holds the raw on-wire address bytes: 4 bytes for the legacy
// and IPv4 forms, 16 for IPv6. AddrType is zero for the legacy form.
type TerminalID struct {
	Port     uint32
	AddrType uint32
	Addr     [16]byte
}

// Subject identifies the acting credential set of a record.
type Subject struct {
	AUID uint32
	EUID uint32
	EGID uint32
	RUID uint32
	RGID uint32
	PID  uint32
	SID  uint32
	TID  TerminalID
}

// Process is structurally a Subject but describes a process acted upon
// rather than the actor.
type Process Subject

// Arg is a syscall argument. No is zero-based on the wire.
type Arg struct {
	No    uint8
	Value uint64
	Text  string
}

// Return carries the syscall outcome. Status/Val keep the 32-bit form's
// split; the 64-bit form maps its error byte onto Status.
type Return struct {
	Status uint8
	Val    uint64
}

// Text is a free-form text token (e.g. symlink targets).
type Text struct {
	Text string
}

// Path is a pathname token.
type Path struct {
	Path string
}

// Attr carries vnode attributes.
type Attr struct {
	Mode uint32
	UID  uint32
	GID  uint32
	FSID uint32
	Node uint64
	Dev  uint64
}

// ExecArgs is the argument vector of an exec.
type ExecArgs struct {
	Args []string
}

// ExecEnv is the environment vector of an exec.
type ExecEnv struct {
	Env []string
}

// Exit carries process exit status.
type Exit struct {
	Status uint32
	Return uint32
}

// SockInet is an internet socket address token. Family holds the BSM
// domain constant, not the local one. PortRaw keeps the two port bytes
// exactly as they appear on the wire because the kernel is inconsistent
// about their byte order across token variants; the interpretation policy
// belongs to the caller.
type SockInet struct {
	Family  uint16
	PortRaw [2]byte
	IPv6    bool
	Addr    [16]byte
}

// SockUnix is a unix domain socket address token.
type SockUnix struct {
	Family uint16
	Path   string
}

// Unknown is any token kind the decoder can frame but has no dedicated
// representation for.
type Unknown struct {
	ID   uint8
	Data []byte
}

func (Header) isToken()   {}
func (Trailer) isToken()  {}
func (Subject) isToken()  {}
func (Process) isToken()  {}
func (Arg) isToken()      {}
func (Return) isToken()   {}
func (Text) isToken()     {}
func (Path) isToken()     {}
func (Attr) isToken()     {}
func (ExecArgs) isToken() {}
func (ExecEnv) isToken()  {}
func (Exit) isToken()     {}
func (SockInet) isToken() {}
func (SockUnix) isToken() {}
func (Unknown) isToken()  {}

// FetchToken decodes the token at the head of buf and returns it together
// with the number of bytes it consumed. An error means the remaining bytes
// do not form a valid token; the whole record should be discarded.
func FetchToken(buf []byte) (Token, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrTruncated
	}
	c := &cursor{buf: buf}
	id := c.u8()

	var tok Token
	switch id {
	case IDHeader32:
		h := Header{Size: c.u32(), Version: c.u8(), Type: c.u16(), Modifier: c.u16()}
		h.Sec = int64(c.u32())
		h.NSec = int64(c.u32()) * 1000000 // milliseconds on the wire
		tok = h
	case IDHeader32Ex:
		h := Header{Size: c.u32(), Version: c.u8(), Type: c.u16(), Modifier: c.u16()}
		c.skipAddr(c.u32())
		h.Sec = int64(c.u32())
		h.NSec = int64(c.u32()) * 1000000
		tok = h
	case IDHeader64:
		h := Header{Size: c.u32(), Version: c.u8(), Type: c.u16(), Modifier: c.u16()}
		h.Sec = int64(c.u64())
		h.NSec = int64(c.u64())
		tok = h
	case IDHeader64Ex:
		h := Header{Size: c.u32(), Version: c.u8(), Type: c.u16(), Modifier: c.u16()}
		c.skipAddr(c.u32())
		h.Sec = int64(c.u64())
		h.NSec = int64(c.u64())
		tok = h
	case IDTrailer:
		if magic := c.u16(); magic != TrailerMagic && c.err == nil {
			return nil, 0, fmt.Errorf("bsm: bad trailer magic %#04x", magic)
		}
		tok = Trailer{Count: c.u32()}
	case IDSubject32:
		tok = Subject(c.process32(false))
	case IDSubject32Ex:
		tok = Subject(c.process32(true))
	case IDSubject64:
		tok = Subject(c.process64(false))
	case IDSubject64Ex:
		tok = Subject(c.process64(true))
	case IDProcess32:
		tok = c.process32(false)
	case IDProcess32Ex:
		tok = c.process32(true)
	case IDProcess64:
		tok = c.process64(false)
	case IDProcess64Ex:
		tok = c.process64(true)
	case IDArg32:
		a := Arg{No: c.u8(), Value: uint64(c.u32())}
		a.Text = c.str16()
		tok = a
	case IDArg64:
		a := Arg{No: c.u8(), Value: c.u64()}
		a.Text = c.str16()
		tok = a
	case IDReturn32:
		tok = Return{Status: c.u8(), Val: uint64(c.u32())}
	case IDReturn64:
		tok = Return{Status: c.u8(), Val: c.u64()}
	case IDText:
		tok = Text{Text: c.str16()}
	case IDPath:
		tok = Path{Path: c.str16()}
	case IDAttr32:
		tok = Attr{Mode: c.u32(), UID: c.u32(), GID: c.u32(), FSID: c.u32(), Node: c.u64(), Dev: uint64(c.u32())}
	case IDAttr64:
		tok = Attr{Mode: c.u32(), UID: c.u32(), GID: c.u32(), FSID: c.u32(), Node: c.u64(), Dev: c.u64()}
	case IDExecArgs:
		tok = ExecArgs{Args: c.strvec()}
	case IDExecEnv:
		tok = ExecEnv{Env: c.strvec()}
	case IDExit:
		tok = Exit{Status: c.u32(), Return: c.u32()}
	case IDSockInet32:
		s := SockInet{Family: c.u16()}
		c.read(s.PortRaw[:])
		c.read(s.Addr[:4])
		tok = s
	case IDSockInet128:
		s := SockInet{Family: c.u16(), IPv6: true}
		c.read(s.PortRaw[:])
		c.read(s.Addr[:])
		tok = s
	case IDSockUnix:
		tok = SockUnix{Family: c.u16(), Path: c.strz()}
	case IDOpaque:
		tok = Unknown{ID: id, Data: c.bytes16()}
	case IDSeq:
		c.u32()
		tok = Unknown{ID: id}
	case IDZonename:
		c.str16()
		tok = Unknown{ID: id}
	default:
		return nil, 0, fmt.Errorf("bsm: unsupported token id %#02x", id)
	}

	if c.err != nil {
		return nil, 0, c.err
	}
	return tok, c.off, nil
}

func (c *cursor) process32(ex bool) Process {
	p := Process{
		AUID: c.u32(), EUID: c.u32(), EGID: c.u32(),
		RUID: c.u32(), RGID: c.u32(), PID: c.u32(), SID: c.u32(),
	}
	p.TID.Port = c.u32()
	c.terminalAddr(&p.TID, ex)
	return p
}

func (c *cursor) process64(ex bool) Process {
	p := Process{
		AUID: c.u32(), EUID: c.u32(), EGID: c.u32(),
		RUID: c.u32(), RGID: c.u32(), PID: c.u32(), SID: c.u32(),
	}
	// 64-bit terminal port; the id itself fits 32 bits.
	p.TID.Port = uint32(c.u64())
	c.terminalAddr(&p.TID, ex)
	return p
}

func (c *cursor) terminalAddr(tid *TerminalID, ex bool) {
	if !ex {
		c.read(tid.Addr[:4])
		return
	}
	tid.AddrType = c.u32()
	switch tid.AddrType {
	case AddrTypeIPv4:
		c.read(tid.Addr[:4])
	case AddrTypeIPv6:
		c.read(tid.Addr[:])
	default:
		c.fail(fmt.Errorf("bsm: bad terminal address type %d", tid.AddrType))
	}
}

func (c *cursor) skipAddr(addrType uint32) {
	switch addrType {
	case AddrTypeIPv4:
		c.skip(4)
	case AddrTypeIPv6:
		c.skip(16)
	default:
		c.fail(fmt.Errorf("bsm: bad header address type %d", addrType))
	}
}
