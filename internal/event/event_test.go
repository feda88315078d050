package event_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"aumon/internal/bsm"
	"aumon/internal/bsm/bsmtest"
	"aumon/internal/event"
)

type LifecycleSuite struct {
	suite.Suite
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) produce(rec *bsmtest.Record) *event.AuditEvent {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	asm := event.NewAssembler(event.Config{}, log)
	ev := event.NewEvent()
	outcome, err := asm.Assemble(ev, nil, event.CaptureFlags{Env: event.CaptureEnvFull},
		bsm.NewRecordReader(bsmtest.Stream(rec)))
	require.NoError(s.T(), err)
	require.Equal(s.T(), event.OutcomeProduced, outcome)
	return ev
}

func (s *LifecycleSuite) TestNewEventIsZero() {
	ev := event.NewEvent()
	s.Zero(ev.Type)
	s.Nil(ev.Subject)
	s.Nil(ev.Return)
	s.Zero(ev.ArgsCount)
	s.Empty(ev.UnknownTokenIDs())
	s.False(ev.AllocFailed())
	s.Nil(ev.Raw())
}

func (s *LifecycleSuite) TestProducedEventOwnsRawRecord() {
	rec := bsmtest.NewRecord(1, 0, 0, 0).Text("x").Trailer()
	ev := s.produce(rec)
	s.Equal(rec.Bytes(), ev.Raw())
}

func (s *LifecycleSuite) TestCloseReleasesOwnedPayloads() {
	ev := s.produce(bsmtest.NewRecord(23, 0, 0, 0).
		ExecArgs("/bin/ls").
		ExecEnv("HOME=/root").
		Trailer())
	s.NotNil(ev.Raw())
	s.NotNil(ev.ExecArgs)
	s.NotNil(ev.ExecEnv)

	ev.Close()
	s.Nil(ev.Raw())
	s.Nil(ev.ExecArgs)
	s.Nil(ev.ExecEnv)
}

func (s *LifecycleSuite) TestCloseIsIdempotent() {
	ev := s.produce(bsmtest.NewRecord(1, 0, 0, 0).Trailer())
	ev.Close()
	ev.Close()
	s.Nil(ev.Raw())
}

func (s *LifecycleSuite) TestCloseOnFreshEvent() {
	ev := event.NewEvent()
	ev.Close()
	s.Nil(ev.Raw())
}

func (s *LifecycleSuite) TestResetRestoresZeroState() {
	ev := s.produce(bsmtest.NewRecord(1, 0, 0, 0).
		Subject32(bsmtest.Identity{PID: 1}).
		Trailer())
	ev.Reset()
	s.Equal(event.NewEvent(), ev)
}
