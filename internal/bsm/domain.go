package bsm

// BSM encodes socket domain and type constants inherited from the Solaris
// lineage; they do not match the local platform's numbering. The kernel
// emits them inside generic arg tokens, so translation cannot happen in
// the decoder and is exposed here for callers that interpret those args.
// Unknown codes map to (0, false), never to a guessed value.

// Solaris-lineage socket domain constants as emitted in audit records.
const (
	bsmPFUnspec  = 0
	bsmPFLocal   = 1
	bsmPFInet    = 2
	bsmPFRoute   = 24
	bsmPFInet6   = 26
	bsmPFKey     = 27
	bsmPFUnknown = 700
)

// Local (BSD) socket domain constants.
const (
	PFUnspec = 0
	PFLocal  = 1
	PFInet   = 2
	PFRoute  = 17
	PFKey    = 29
	PFInet6  = 30
)

// Solaris-lineage socket type constants.
const (
	bsmSockDgram     = 1
	bsmSockStream    = 2
	bsmSockRaw       = 4
	bsmSockRDM       = 5
	bsmSockSeqpacket = 6
	bsmSockUnknown   = 500
)

// Local (BSD) socket type constants.
const (
	SockStream    = 1
	SockDgram     = 2
	SockRaw       = 3
	SockRDM       = 4
	SockSeqpacket = 5
)

// MapSocketDomain translates a BSM socket domain constant to the local
// one.
func MapSocketDomain(bsmDomain uint32) (int, bool) {
	switch bsmDomain {
	case bsmPFUnspec:
		return PFUnspec, true
	case bsmPFLocal:
		return PFLocal, true
	case bsmPFInet:
		return PFInet, true
	case bsmPFRoute:
		return PFRoute, true
	case bsmPFKey:
		return PFKey, true
	case bsmPFInet6:
		return PFInet6, true
	default:
		return 0, false
	}
}

// MapSocketType translates a BSM socket type constant to the local one.
func MapSocketType(bsmType uint32) (int, bool) {
	switch bsmType {
	case bsmSockDgram:
		return SockDgram, true
	case bsmSockStream:
		return SockStream, true
	case bsmSockRaw:
		return SockRaw, true
	case bsmSockRDM:
		return SockRDM, true
	case bsmSockSeqpacket:
		return SockSeqpacket, true
	default:
		return 0, false
	}
}

// BSM address family constants as found in socket address tokens. These
// are the same Solaris-lineage values as the domain constants; named
// separately because socket tokens carry them as uint16.
const (
	FamilyInet  uint16 = bsmPFInet
	FamilyInet6 uint16 = bsmPFInet6
)
