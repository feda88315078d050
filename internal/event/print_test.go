package event_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"aumon/internal/bsm"
	"aumon/internal/bsm/bsmtest"
	"aumon/internal/event"
)

type PrintSuite struct {
	suite.Suite
	asm *event.Assembler
}

func TestPrintSuite(t *testing.T) {
	suite.Run(t, new(PrintSuite))
}

func (s *PrintSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.asm = event.NewAssembler(event.Config{NullDevice: nullDev, SockPort6HostOrder: true}, log)
}

func (s *PrintSuite) produce(rec *bsmtest.Record, capture event.CaptureFlags) *event.AuditEvent {
	ev := event.NewEvent()
	outcome, err := s.asm.Assemble(ev, nil, capture, bsm.NewRecordReader(bsmtest.Stream(rec)))
	s.Require().NoError(err)
	s.Require().Equal(event.OutcomeProduced, outcome)
	return ev
}

// labels extracts the set of field labels present in a rendered line.
func labels(line string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(line) {
		if i := strings.IndexAny(f, "=["); i > 0 {
			out[f[:i]] = true
		}
	}
	return out
}

func (s *PrintSuite) TestLabelPresenceMatchesPopulation() {
	s.Run("minimal event", func() {
		ev := s.produce(bsmtest.NewRecord(2, 0, 0, 0).Trailer(), event.CaptureFlags{})
		got := labels(ev.String())
		for _, absent := range []string{
			"subject_pid", "process_pid", "args", "return_error",
			"exit_status", "text", "path", "attr", "execarg", "execenv",
			"sockinet", "unk_tokids",
		} {
			s.False(got[absent], "label %q must be absent", absent)
		}
	})

	s.Run("fully populated event", func() {
		rec := bsmtest.NewRecord(23, 0, 1700000000, 0).
			Subject32(bsmtest.Identity{PID: 1, TTYDev: nullDev}).
			Process32(bsmtest.Identity{PID: 2, TTYDev: nullDev}).
			Arg32(0, 42, "").
			Return32(0, 0).
			Exit(0, 0).
			Text("symlink-target").
			Path("/bin/ls").
			Attr32(0o100755, 0, 0, 1, 2, 0).
			ExecArgs("/bin/ls", "-l").
			ExecEnv("DYLD_X=1").
			SockInet32(2, [2]byte{0, 80}, [4]byte{10, 0, 0, 1}).
			Opaque([]byte{1}).
			Trailer()
		ev := s.produce(rec, event.CaptureFlags{Env: event.CaptureEnvFull})
		got := labels(ev.String())
		for _, present := range []string{
			"subject_pid", "subject_sid", "subject_tid", "subject_auid",
			"subject_euid", "subject_egid", "subject_ruid", "subject_rgid",
			"process_pid", "args", "return_error", "return_value",
			"exit_status", "exit_return", "text", "path", "attr",
			"execarg", "execenv", "sockinet", "unk_tokids",
		} {
			s.True(got[present], "label %q must be present", present)
		}
	})
}

func (s *PrintSuite) TestFieldRendering() {
	rec := bsmtest.NewRecord(23, 0, 1700000000, 0).
		Subject32(bsmtest.Identity{AUID: 0, EUID: 501, EGID: 20, RUID: 501, RGID: 20, PID: 100, SID: 100001, TTYDev: nullDev}).
		ExecArgs("/bin/ls", "-l").
		Trailer()
	ev := s.produce(rec, event.CaptureFlags{})
	line := ev.String()

	s.Contains(line, "AUE_EXECVE [23:0]")
	s.Contains(line, "subject_pid=100 subject_sid=100001 subject_tid=/dev/-[-] subject_auid=0 subject_euid=501 subject_egid=20 subject_ruid=501 subject_rgid=20")
	s.Contains(line, "execarg='/bin/ls' '-l'")
	s.True(strings.HasPrefix(line, "2023-11-14T22:13:20.000000000Z"), line)
}

func (s *PrintSuite) TestUnknownTokenIDsRenderAsHexList() {
	rec := bsmtest.NewRecord(1, 0, 0, 0).Opaque(nil).Seq(0).Trailer()
	ev := s.produce(rec, event.CaptureFlags{})
	s.Contains(ev.String(), "unk_tokids=0x29,0x2f")
}

func (s *PrintSuite) TestRenderWritesSameLine() {
	ev := s.produce(bsmtest.NewRecord(1, 0, 0, 0).Trailer(), event.CaptureFlags{})
	var b strings.Builder
	require.NoError(s.T(), ev.Render(&b))
	s.Equal(ev.String(), b.String())
}

func (s *PrintSuite) TestUnlistedTypeGetsNumericName() {
	ev := s.produce(bsmtest.NewRecord(60000, 0, 0, 0).Trailer(), event.CaptureFlags{})
	s.Contains(ev.String(), "AUE_60000 [60000:0]")
}
