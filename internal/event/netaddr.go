package event

import "net/netip"

// NetAddr is a tagged network address: absent, IPv4 or IPv6. The zero
// value is absent.
type NetAddr struct {
	addr netip.Addr
}

// IPv4Addr builds an address from the 4 raw bytes of an audit token.
func IPv4Addr(b [4]byte) NetAddr {
	return NetAddr{addr: netip.AddrFrom4(b)}
}

// IPv6Addr builds an address from the 16 raw bytes of an audit token.
func IPv6Addr(b [16]byte) NetAddr {
	return NetAddr{addr: netip.AddrFrom16(b)}
}

// IsSet reports whether an address is present.
func (a NetAddr) IsSet() bool {
	return a.addr.IsValid()
}

// Is4 reports whether the address is IPv4.
func (a NetAddr) Is4() bool {
	return a.addr.Is4()
}

// Addr returns the underlying address; only meaningful when IsSet.
func (a NetAddr) Addr() netip.Addr {
	return a.addr
}

// StringOr renders the address, or def when absent.
func (a NetAddr) StringOr(def string) string {
	if !a.addr.IsValid() {
		return def
	}
	return a.addr.String()
}

// legacyAddr normalizes the single-word terminal address of non-extended
// subject/process tokens: all-zero means absent.
func legacyAddr(b [4]byte) NetAddr {
	if b == [4]byte{} {
		return NetAddr{}
	}
	return IPv4Addr(b)
}

// exAddr normalizes the family-tagged terminal address of extended
// tokens. IPv4 keeps the zero-means-absent rule; any family other than
// IPv4 or IPv6 stays absent.
func exAddr(addrType uint32, b [16]byte) NetAddr {
	switch addrType {
	case 4:
		var v4 [4]byte
		copy(v4[:], b[:4])
		return legacyAddr(v4)
	case 16:
		return IPv6Addr(b)
	default:
		return NetAddr{}
	}
}
