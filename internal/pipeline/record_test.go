package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aumon/internal/event"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, CategorySecurity, Classify(23), "execve")
	assert.Equal(t, CategorySecurity, Classify(32), "connect")
	assert.Equal(t, CategoryOps, Classify(42), "readlink")
	assert.Equal(t, CategoryOps, Classify(60000))
}

func TestFromEvent(t *testing.T) {
	ev := &event.AuditEvent{
		Type:      23,
		Timestamp: time.Unix(1700000000, 0),
		Subject:   &event.Identity{PID: 100, EUID: 501},
		Return:    &event.ReturnValue{Error: 2},
		ExecArgs:  []string{"/bin/ls", "-l"},
		Path:      []string{"/bin/ls"},
	}

	rec := FromEvent(ev)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, uint16(23), rec.EventType)
	assert.Equal(t, "AUE_EXECVE", rec.Name)
	assert.Equal(t, CategorySecurity, rec.Category)
	require.NotNil(t, rec.SubjectPID)
	assert.Equal(t, uint32(100), *rec.SubjectPID)
	require.NotNil(t, rec.SubjectUID)
	assert.Equal(t, uint32(501), *rec.SubjectUID)
	require.NotNil(t, rec.ReturnError)
	assert.Equal(t, uint32(2), *rec.ReturnError)
	assert.Equal(t, []string{"/bin/ls", "-l"}, rec.ExecArgs)
	assert.Contains(t, rec.Line, "AUE_EXECVE [23:0]")
}

func TestFromEventCopiesSlices(t *testing.T) {
	ev := &event.AuditEvent{Type: 23, ExecArgs: []string{"/bin/ls"}}
	rec := FromEvent(ev)

	ev.Close()
	assert.Equal(t, []string{"/bin/ls"}, rec.ExecArgs, "record must survive event close")
}

func TestFromEventWithoutOptionalTokens(t *testing.T) {
	rec := FromEvent(&event.AuditEvent{Type: 42})
	assert.Nil(t, rec.SubjectPID)
	assert.Nil(t, rec.ReturnError)
	assert.Empty(t, rec.ExecArgs)
	assert.Equal(t, "AUE_42", rec.Name)
}
