package event_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aumon/internal/bsm"
	"aumon/internal/bsm/bsmtest"
	"aumon/internal/event"
)

// nullDev is the device id standing in for /dev/null in tests.
const nullDev = 0x03000002

type AssembleSuite struct {
	suite.Suite
	asm    *event.Assembler
	strict *event.Assembler
}

func TestAssembleSuite(t *testing.T) {
	suite.Run(t, new(AssembleSuite))
}

func (s *AssembleSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.asm = event.NewAssembler(event.Config{
		NullDevice:         nullDev,
		SockPort6HostOrder: true,
	}, log)
	s.strict = event.NewAssembler(event.Config{
		NullDevice:         nullDev,
		SockPort6HostOrder: true,
		Strict:             true,
	}, log)
}

func source(records ...*bsmtest.Record) event.RecordSource {
	return bsm.NewRecordReader(bsmtest.Stream(records...))
}

// assemble runs one default-config Assemble call on a fresh event.
func (s *AssembleSuite) assemble(rec *bsmtest.Record) (*event.AuditEvent, event.Outcome) {
	ev := event.NewEvent()
	outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
	s.Require().NoError(err)
	return ev, outcome
}

func (s *AssembleSuite) TestHeaderFields() {
	ev, outcome := s.assemble(bsmtest.NewRecord(23, 3, 1700000000, 500).Trailer())
	s.Equal(event.OutcomeProduced, outcome)
	s.Equal(uint16(23), ev.Type)
	s.Equal(uint16(3), ev.Modifier)
	s.Equal(time.Unix(1700000000, 500_000_000).UTC(), ev.Timestamp.UTC())
}

func (s *AssembleSuite) TestEmptyStreamSkips() {
	ev := event.NewEvent()
	outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source())
	s.Require().NoError(err)
	s.Equal(event.OutcomeSkipped, outcome)
}

func (s *AssembleSuite) TestStreamErrorPropagates() {
	ev := event.NewEvent()
	_, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, failingSource{})
	s.Require().Error(err)
	s.ErrorIs(err, errBoom)
}

func (s *AssembleSuite) TestFilterSkipLeavesEventZero() {
	ev := event.NewEvent()
	rec := bsmtest.NewRecord(1, 9, 1700000000, 0).
		Subject32(bsmtest.Identity{PID: 100}).
		Arg32(0, 42, "").
		Trailer()
	outcome, err := s.asm.Assemble(ev, []uint16{2, 3}, event.CaptureFlags{}, source(rec))
	s.Require().NoError(err)
	s.Equal(event.OutcomeSkipped, outcome)
	s.Equal(event.NewEvent(), ev, "skipped event must be indistinguishable from freshly created")
}

func (s *AssembleSuite) TestFilterMatchProduces() {
	ev := event.NewEvent()
	rec := bsmtest.NewRecord(2, 0, 0, 0).Trailer()
	outcome, err := s.asm.Assemble(ev, []uint16{2, 3}, event.CaptureFlags{}, source(rec))
	s.Require().NoError(err)
	s.Equal(event.OutcomeProduced, outcome)
	s.Equal(uint16(2), ev.Type)
}

func (s *AssembleSuite) TestSubjectNormalization() {
	s.Run("null device and zero address become absent", func() {
		ev, outcome := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
			Subject32(bsmtest.Identity{
				AUID: 0, EUID: 501, PID: 100,
				TTYDev: nullDev, TTYAddr: 0,
			}))
		s.Equal(event.OutcomeProduced, outcome)
		s.Require().NotNil(ev.Subject)
		s.Equal(event.NoDevice, ev.Subject.TTYDev)
		s.False(ev.Subject.TTYAddr.IsSet())
		s.Equal(uint32(501), ev.Subject.EUID)
	})

	s.Run("real device and address pass through", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
			Subject32(bsmtest.Identity{PID: 1, TTYDev: 0x12000004, TTYAddr: 0x7f000001}))
		s.Require().NotNil(ev.Subject)
		s.Equal(uint32(0x12000004), ev.Subject.TTYDev)
		s.Require().True(ev.Subject.TTYAddr.IsSet())
		s.Equal("127.0.0.1", ev.Subject.TTYAddr.StringOr("-"))
	})

	s.Run("extended ipv6 terminal address", func() {
		addr := make([]byte, 16)
		addr[0], addr[1], addr[15] = 0xfe, 0x80, 0x01
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
			Subject32Ex(bsmtest.Identity{PID: 1}, addr))
		s.Require().NotNil(ev.Subject)
		s.True(ev.Subject.TTYAddr.IsSet())
		s.False(ev.Subject.TTYAddr.Is4())
	})
}

func (s *AssembleSuite) TestProcessToken() {
	ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
		Subject32(bsmtest.Identity{PID: 10}).
		Process32(bsmtest.Identity{PID: 20}))
	s.Require().NotNil(ev.Subject)
	s.Require().NotNil(ev.Process)
	s.Equal(uint32(10), ev.Subject.PID)
	s.Equal(uint32(20), ev.Process.PID)
}

func (s *AssembleSuite) TestDuplicateSubject() {
	rec := func() *bsmtest.Record {
		return bsmtest.NewRecord(1, 0, 0, 0).
			Subject32(bsmtest.Identity{PID: 1, EUID: 100}).
			Subject32(bsmtest.Identity{PID: 2, EUID: 200})
	}

	s.Run("default skips without overwriting", func() {
		ev := event.NewEvent()
		outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec()))
		s.Require().NoError(err)
		s.Equal(event.OutcomeSkipped, outcome)
		s.Nil(ev.Subject, "no partially filled event leaks out")
	})

	s.Run("strict surfaces the violation", func() {
		ev := event.NewEvent()
		_, err := s.strict.Assemble(ev, nil, event.CaptureFlags{}, source(rec()))
		s.Require().ErrorIs(err, event.ErrDuplicateToken)
	})
}

func (s *AssembleSuite) TestDuplicateHeader() {
	// A second header32 token mid-record, byte-built since the builder
	// only ever emits one.
	rec := func() *bsmtest.Record {
		return bsmtest.NewRecord(1, 0, 0, 0).
			Subject32(bsmtest.Identity{PID: 1}).
			Raw([]byte{
				0x14,        // header32
				0, 0, 0, 18, // size
				11,          // version
				0, 23,       // type
				0, 0,        // modifier
				0, 0, 0, 0,  // sec
				0, 0, 0, 0,  // msec
			})
	}

	s.Run("default skips without overwriting", func() {
		ev := event.NewEvent()
		outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec()))
		s.Require().NoError(err)
		s.Equal(event.OutcomeSkipped, outcome)
		s.Zero(ev.Type, "no partially filled event leaks out")
		s.Nil(ev.Subject)
	})

	s.Run("strict surfaces the violation", func() {
		ev := event.NewEvent()
		_, err := s.strict.Assemble(ev, nil, event.CaptureFlags{}, source(rec()))
		s.Require().ErrorIs(err, event.ErrDuplicateToken)
	})
}

func (s *AssembleSuite) TestArguments() {
	s.Run("slots and count", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
			Arg32(0, 42, "fd").
			Arg64(5, 1<<33, "addr"))
		s.True(ev.Args[0].Present)
		s.Equal(uint64(42), ev.Args[0].Value)
		s.False(ev.Args[1].Present)
		s.True(ev.Args[5].Present)
		s.Equal(6, ev.ArgsCount)
	})

	s.Run("arg text only captured on request", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).Arg32(0, 1, "fd"))
		s.Empty(ev.Args[0].Text)

		ev2 := event.NewEvent()
		rec := bsmtest.NewRecord(1, 0, 0, 0).Arg32(0, 1, "fd")
		_, err := s.asm.Assemble(ev2, nil, event.CaptureFlags{ArgText: true}, source(rec))
		s.Require().NoError(err)
		s.Equal("fd", ev2.Args[0].Text)
	})

	s.Run("same index from 64 and 32 bit variants is a duplicate", func() {
		ev := event.NewEvent()
		rec := bsmtest.NewRecord(1, 0, 0, 0).
			Arg64(3, 1111, "").
			Arg32(3, 2222, "")
		_, err := s.strict.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
		s.Require().ErrorIs(err, event.ErrDuplicateToken)
	})

	s.Run("index beyond capacity skips the record", func() {
		ev := event.NewEvent()
		rec := bsmtest.NewRecord(1, 0, 0, 0).Arg32(event.MaxArgs, 1, "")
		outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
		s.Require().NoError(err)
		s.Equal(event.OutcomeSkipped, outcome)
	})
}

func (s *AssembleSuite) TestReturnNormalization() {
	s.Run("32 bit variant", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).Return32(2, 0xffffffff))
		s.Require().NotNil(ev.Return)
		s.Equal(uint32(2), ev.Return.Error)
		s.Equal(uint32(0xffffffff), ev.Return.Value)
	})

	s.Run("64 bit variant", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).Return64(0, 7))
		s.Require().NotNil(ev.Return)
		s.Equal(uint32(0), ev.Return.Error)
		s.Equal(uint32(7), ev.Return.Value)
	})

	s.Run("duplicate return", func() {
		ev := event.NewEvent()
		rec := bsmtest.NewRecord(1, 0, 0, 0).Return32(0, 0).Return64(0, 1)
		_, err := s.strict.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
		s.Require().ErrorIs(err, event.ErrDuplicateToken)
	})
}

func (s *AssembleSuite) TestTextOverflowSkipsRecord() {
	rec := bsmtest.NewRecord(1, 0, 0, 0)
	for i := 0; i < event.MaxText+1; i++ {
		rec.Text("t")
	}
	ev, outcome := s.assemble(rec)
	s.Equal(event.OutcomeSkipped, outcome)
	s.Equal(event.NewEvent(), ev, "no partially filled event")
}

func (s *AssembleSuite) TestPathOverflowSkipsRecord() {
	rec := bsmtest.NewRecord(1, 0, 0, 0)
	for i := 0; i < event.MaxPath+1; i++ {
		rec.Path("/p")
	}
	_, outcome := s.assemble(rec)
	s.Equal(event.OutcomeSkipped, outcome)
}

func (s *AssembleSuite) TestAttrOverflowSkipsRecord() {
	rec := bsmtest.NewRecord(1, 0, 0, 0)
	for i := 0; i < event.MaxAttrs+1; i++ {
		rec.Attr32(0o644, 0, 0, 1, uint64(i), 0)
	}
	_, outcome := s.assemble(rec)
	s.Equal(event.OutcomeSkipped, outcome)
}

func (s *AssembleSuite) TestAttrWithinCapacity() {
	ev, outcome := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
		Attr32(0o100755, 0, 0, 0x1a, 999, 0).
		Path("/bin/ls"))
	s.Equal(event.OutcomeProduced, outcome)
	s.Require().Len(ev.Attrs, 1)
	s.Equal(uint32(0o100755), ev.Attrs[0].Mode)
	s.Equal(uint32(0x1a), ev.Attrs[0].Dev)
	s.Equal(uint64(999), ev.Attrs[0].Ino)
	s.Equal([]string{"/bin/ls"}, ev.Path)
}

func (s *AssembleSuite) TestExecEnvCapture() {
	env := []string{"PATH=/usr/bin", "DYLD_INSERT_LIBRARIES=/x.dylib", "HOME=/root"}
	rec := func() *bsmtest.Record {
		return bsmtest.NewRecord(23, 0, 0, 0).
			ExecArgs("/bin/ls", "-l").
			ExecEnv(env...)
	}

	s.Run("none drops the token", func() {
		ev := event.NewEvent()
		_, err := s.asm.Assemble(ev, nil, event.CaptureFlags{Env: event.CaptureEnvNone}, source(rec()))
		s.Require().NoError(err)
		s.Equal([]string{"/bin/ls", "-l"}, ev.ExecArgs)
		s.Nil(ev.ExecEnv)
	})

	s.Run("dyld keeps only the prefix", func() {
		ev := event.NewEvent()
		_, err := s.asm.Assemble(ev, nil, event.CaptureFlags{Env: event.CaptureEnvDyld}, source(rec()))
		s.Require().NoError(err)
		s.Equal([]string{"DYLD_INSERT_LIBRARIES=/x.dylib"}, ev.ExecEnv)
	})

	s.Run("full keeps everything", func() {
		ev := event.NewEvent()
		_, err := s.asm.Assemble(ev, nil, event.CaptureFlags{Env: event.CaptureEnvFull}, source(rec()))
		s.Require().NoError(err)
		s.Equal(env, ev.ExecEnv)
	})
}

func (s *AssembleSuite) TestExecVecBudgetExhaustion() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tight := event.NewAssembler(event.Config{MaxExecVecBytes: 8}, log)

	ev := event.NewEvent()
	rec := bsmtest.NewRecord(23, 0, 0, 0).ExecArgs("/usr/local/bin/very-long-path")
	_, err := tight.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
	s.Require().ErrorIs(err, event.ErrResourceExhausted)
	s.True(ev.AllocFailed(), "flag is sticky, event must be discarded")
}

func (s *AssembleSuite) TestExit() {
	ev, _ := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).Exit(0, 12))
	s.Require().NotNil(ev.Exit)
	s.Equal(uint32(0), ev.Exit.Status)
	s.Equal(uint32(12), ev.Exit.Return)
}

func (s *AssembleSuite) TestSockPeerPortByteOrder() {
	s.Run("ipv4 port is network order", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(32, 0, 0, 0).
			SockInet32(2, [2]byte{0x1f, 0x90}, [4]byte{10, 0, 0, 1}))
		s.Require().NotNil(ev.SockPeer)
		s.Equal(uint16(8080), ev.SockPeer.Port)
		s.Equal("10.0.0.1", ev.SockPeer.Addr.StringOr("-"))
	})

	s.Run("ipv6 port taken verbatim under the quirk policy", func() {
		// 8080 written by a little-endian kernel in host order.
		ev, _ := s.assemble(bsmtest.NewRecord(32, 0, 0, 0).
			SockInet128(26, [2]byte{0x90, 0x1f}, [16]byte{0xfe, 0x80}))
		s.Require().NotNil(ev.SockPeer)
		s.Equal(uint16(8080), ev.SockPeer.Port)
		s.False(ev.SockPeer.Addr.Is4())
	})

	s.Run("ipv6 network order when quirk disabled", func() {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		fixed := event.NewAssembler(event.Config{SockPort6HostOrder: false}, log)
		ev := event.NewEvent()
		rec := bsmtest.NewRecord(32, 0, 0, 0).
			SockInet128(26, [2]byte{0x1f, 0x90}, [16]byte{0xfe, 0x80})
		_, err := fixed.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
		s.Require().NoError(err)
		s.Equal(uint16(8080), ev.SockPeer.Port)
	})

	s.Run("family mismatch leaves peer unset", func() {
		ev, _ := s.assemble(bsmtest.NewRecord(32, 0, 0, 0).
			SockInet32(26, [2]byte{0, 80}, [4]byte{10, 0, 0, 1}))
		s.Nil(ev.SockPeer)
	})
}

func (s *AssembleSuite) TestSockUnixIgnored() {
	ev, outcome := s.assemble(bsmtest.NewRecord(32, 0, 0, 0).
		SockUnix(1, "/var/run/foo.sock"))
	s.Equal(event.OutcomeProduced, outcome)
	s.Nil(ev.SockPeer)
}

func (s *AssembleSuite) TestUnknownTokenBookkeeping() {
	ev, outcome := s.assemble(bsmtest.NewRecord(1, 0, 0, 0).
		Opaque([]byte{1}).
		Seq(1).
		Opaque([]byte{2}))
	s.Equal(event.OutcomeProduced, outcome)
	s.Equal([]uint16{0x29, 0x2f}, ev.UnknownTokenIDs(), "deduplicated, insertion order")
}

func (s *AssembleSuite) TestMalformedTokenSkipsRecord() {
	ev := event.NewEvent()
	rec := bsmtest.NewRecord(1, 0, 0, 0).Raw([]byte{0xfe, 0x01})
	outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
	s.Require().NoError(err)
	s.Equal(event.OutcomeSkipped, outcome)
	s.Equal(event.NewEvent(), ev)
}

func (s *AssembleSuite) TestEndToEndScenario() {
	ev := event.NewEvent()
	rec := bsmtest.NewRecord(1, 0, 1700000000, 0).
		Subject32(bsmtest.Identity{AUID: 0, EUID: 501, PID: 100, TTYDev: nullDev}).
		Arg32(0, 42, "").
		Return32(0, 0).
		Trailer()
	outcome, err := s.asm.Assemble(ev, nil, event.CaptureFlags{}, source(rec))
	s.Require().NoError(err)
	s.Equal(event.OutcomeProduced, outcome)

	line := ev.String()
	s.Contains(line, "AUE_EXIT [1:0]")
	s.Contains(line, "subject_pid=100")
	s.Contains(line, "subject_tid=/dev/-[-]")
	s.Contains(line, "subject_euid=501")
	s.Contains(line, "args[0]=42")
	s.Contains(line, "return_error=0 return_value=0")
}

var errBoom = errors.New("boom")

type failingSource struct{}

func (failingSource) ReadRecord() ([]byte, error) {
	return nil, errBoom
}
