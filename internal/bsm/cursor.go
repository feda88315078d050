package bsm

import "encoding/binary"

// cursor walks a byte buffer, decoding big-endian fields. The first decode
// past the end latches ErrTruncated and turns every later read into a
// no-op, so token decoders can read fields unconditionally and check the
// error once at the end.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.fail(ErrTruncated)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) skip(n int) {
	c.take(n)
}

func (c *cursor) read(dst []byte) {
	if b := c.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

func (c *cursor) u8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// str16 reads a 16-bit length followed by that many bytes, the last of
// which is a NUL terminator. Returns the string without the NUL.
func (c *cursor) str16() string {
	n := int(c.u16())
	b := c.take(n)
	if b == nil {
		return ""
	}
	if n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// bytes16 reads a 16-bit length followed by that many raw bytes.
func (c *cursor) bytes16() []byte {
	n := int(c.u16())
	b := c.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// strz reads a NUL-terminated string.
func (c *cursor) strz() string {
	if c.err != nil {
		return ""
	}
	start := c.off
	for c.off < len(c.buf) {
		if c.buf[c.off] == 0 {
			s := string(c.buf[start:c.off])
			c.off++
			return s
		}
		c.off++
	}
	c.fail(ErrTruncated)
	return ""
}

// strvec reads a 32-bit count followed by count NUL-terminated strings.
func (c *cursor) strvec() []string {
	n := int(c.u32())
	if c.err != nil {
		return nil
	}
	out := make([]string, 0, min(n, 64))
	for i := 0; i < n; i++ {
		out = append(out, c.strz())
		if c.err != nil {
			return nil
		}
	}
	return out
}
