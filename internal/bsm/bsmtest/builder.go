// Package bsmtest builds raw BSM records for tests. The encoders mirror
// the OpenBSM token layouts that internal/bsm decodes; keeping them in a
// separate package ensures production code never depends on them.
package bsmtest

import (
	"bytes"
	"encoding/binary"
)

// Record accumulates encoded tokens and fixes up the header's record size
// on Bytes.
type Record struct {
	buf bytes.Buffer
}

// NewRecord starts a record with a header32 token.
func NewRecord(eventType, modifier uint16, sec int64, msec uint32) *Record {
	r := &Record{}
	r.byte(0x14) // header32
	r.u32(0)     // size, patched in Bytes
	r.byte(11)   // version
	r.u16(eventType)
	r.u16(modifier)
	r.u32(uint32(sec))
	r.u32(msec)
	return r
}

// NewRecord64 starts a record with a header64 token (nanosecond field).
func NewRecord64(eventType, modifier uint16, sec int64, nsec int64) *Record {
	r := &Record{}
	r.byte(0x74) // header64
	r.u32(0)
	r.byte(11)
	r.u16(eventType)
	r.u16(modifier)
	r.u64(uint64(sec))
	r.u64(uint64(nsec))
	return r
}

// NewHeaderless starts a record without any header token, for exercising
// streams that do not begin with one.
func NewHeaderless() *Record {
	return &Record{}
}

// Identity is the field set shared by subject and process tokens.
type Identity struct {
	AUID, EUID, EGID, RUID, RGID, PID, SID uint32
	TTYDev                                 uint32
	TTYAddr                                uint32 // legacy single-word address
}

// Subject32 appends a subject32 token.
func (r *Record) Subject32(id Identity) *Record {
	r.byte(0x24)
	r.identity32(id)
	return r
}

// Process32 appends a process32 token.
func (r *Record) Process32(id Identity) *Record {
	r.byte(0x26)
	r.identity32(id)
	return r
}

// Subject32Ex appends a subject32_ex token with the given terminal
// address. addr must be 4 or 16 bytes.
func (r *Record) Subject32Ex(id Identity, addr []byte) *Record {
	r.byte(0x7a)
	r.identityEx(id, addr)
	return r
}

// Process32Ex appends a process32_ex token.
func (r *Record) Process32Ex(id Identity, addr []byte) *Record {
	r.byte(0x7c)
	r.identityEx(id, addr)
	return r
}

// Subject64 appends a subject64 token (64-bit terminal port).
func (r *Record) Subject64(id Identity) *Record {
	r.byte(0x75)
	r.ids(id)
	r.u64(uint64(id.TTYDev))
	r.u32(id.TTYAddr)
	return r
}

// Arg32 appends an arg32 token.
func (r *Record) Arg32(no uint8, val uint32, text string) *Record {
	r.byte(0x2d)
	r.byte(no)
	r.u32(val)
	r.str16(text)
	return r
}

// Arg64 appends an arg64 token.
func (r *Record) Arg64(no uint8, val uint64, text string) *Record {
	r.byte(0x71)
	r.byte(no)
	r.u64(val)
	r.str16(text)
	return r
}

// Return32 appends a return32 token.
func (r *Record) Return32(status uint8, ret uint32) *Record {
	r.byte(0x27)
	r.byte(status)
	r.u32(ret)
	return r
}

// Return64 appends a return64 token.
func (r *Record) Return64(err uint8, val uint64) *Record {
	r.byte(0x72)
	r.byte(err)
	r.u64(val)
	return r
}

// Text appends a text token.
func (r *Record) Text(s string) *Record {
	r.byte(0x28)
	r.str16(s)
	return r
}

// Path appends a path token.
func (r *Record) Path(s string) *Record {
	r.byte(0x23)
	r.str16(s)
	return r
}

// Attr32 appends an attr32 token.
func (r *Record) Attr32(mode, uid, gid, fsid uint32, node uint64, dev uint32) *Record {
	r.byte(0x3e)
	r.u32(mode)
	r.u32(uid)
	r.u32(gid)
	r.u32(fsid)
	r.u64(node)
	r.u32(dev)
	return r
}

// ExecArgs appends an exec_args token.
func (r *Record) ExecArgs(args ...string) *Record {
	r.byte(0x3c)
	r.strvec(args)
	return r
}

// ExecEnv appends an exec_env token.
func (r *Record) ExecEnv(env ...string) *Record {
	r.byte(0x3d)
	r.strvec(env)
	return r
}

// Exit appends an exit token.
func (r *Record) Exit(status, ret uint32) *Record {
	r.byte(0x52)
	r.u32(status)
	r.u32(ret)
	return r
}

// SockInet32 appends a sockinet32 token. port is written exactly as
// given, high byte first, so pass a network-order value to mimic the
// kernel.
func (r *Record) SockInet32(family uint16, port [2]byte, addr [4]byte) *Record {
	r.byte(0x80)
	r.u16(family)
	r.buf.Write(port[:])
	r.buf.Write(addr[:])
	return r
}

// SockInet128 appends a sockinet128 token with raw port bytes.
func (r *Record) SockInet128(family uint16, port [2]byte, addr [16]byte) *Record {
	r.byte(0x81)
	r.u16(family)
	r.buf.Write(port[:])
	r.buf.Write(addr[:])
	return r
}

// SockUnix appends a sockunix token.
func (r *Record) SockUnix(family uint16, path string) *Record {
	r.byte(0x82)
	r.u16(family)
	r.buf.WriteString(path)
	r.byte(0)
	return r
}

// Opaque appends an opaque token, which the assembler treats as unknown.
func (r *Record) Opaque(data []byte) *Record {
	r.byte(0x29)
	r.u16(uint16(len(data)))
	r.buf.Write(data)
	return r
}

// Seq appends a sequence token, another assembler-unknown kind.
func (r *Record) Seq(n uint32) *Record {
	r.byte(0x2f)
	r.u32(n)
	return r
}

// Raw appends arbitrary bytes, for constructing malformed records.
func (r *Record) Raw(b []byte) *Record {
	r.buf.Write(b)
	return r
}

// Trailer appends a trailer token.
func (r *Record) Trailer() *Record {
	r.byte(0x13)
	r.u16(0xb105)
	r.u32(0)
	return r
}

// Bytes finalizes the record: the trailer count and the header's record
// size are patched to the real length.
func (r *Record) Bytes() []byte {
	out := make([]byte, r.buf.Len())
	copy(out, r.buf.Bytes())
	if len(out) >= 5 && (out[0] == 0x14 || out[0] == 0x15 || out[0] == 0x74 || out[0] == 0x79) {
		binary.BigEndian.PutUint32(out[1:5], uint32(len(out)))
	}
	// Trailer count mirrors the record size.
	if n := len(out); n >= 7 && out[n-7] == 0x13 {
		binary.BigEndian.PutUint32(out[n-4:], uint32(n))
	}
	return out
}

// Stream concatenates finalized records into one byte stream.
func Stream(records ...*Record) *bytes.Reader {
	var buf bytes.Buffer
	for _, rec := range records {
		buf.Write(rec.Bytes())
	}
	return bytes.NewReader(buf.Bytes())
}

func (r *Record) byte(b uint8) { r.buf.WriteByte(b) }

func (r *Record) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	r.buf.Write(b[:])
}

func (r *Record) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	r.buf.Write(b[:])
}

func (r *Record) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	r.buf.Write(b[:])
}

func (r *Record) str16(s string) {
	r.u16(uint16(len(s) + 1))
	r.buf.WriteString(s)
	r.byte(0)
}

func (r *Record) strvec(ss []string) {
	r.u32(uint32(len(ss)))
	for _, s := range ss {
		r.buf.WriteString(s)
		r.byte(0)
	}
}

func (r *Record) ids(id Identity) {
	r.u32(id.AUID)
	r.u32(id.EUID)
	r.u32(id.EGID)
	r.u32(id.RUID)
	r.u32(id.RGID)
	r.u32(id.PID)
	r.u32(id.SID)
}

func (r *Record) identity32(id Identity) {
	r.ids(id)
	r.u32(id.TTYDev)
	r.u32(id.TTYAddr)
}

func (r *Record) identityEx(id Identity, addr []byte) {
	r.ids(id)
	r.u32(id.TTYDev)
	r.u32(uint32(len(addr)))
	r.buf.Write(addr)
}
