package roster_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/roster"
	"github.com/psds-microservice/dispatch-service/internal/shift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
agents:
  - id: alice
    name: Alice Martin
    email: alice@example.com
    role: SUPERVISOR
    capacity: 4
    online: true
    shift:
      start: "09:00"
      end: "17:00"
      weekdays: [1, 2, 3, 4, 5]
      timezone: Europe/Berlin
  - name: Bob
    email: bob@example.com
    available: false
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	agents, err := roster.Load(path)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	alice := agents[0]
	assert.Equal(t, "alice", alice.ID)
	assert.Equal(t, model.AgentRoleSupervisor, alice.Role)
	assert.Equal(t, 4, alice.Capacity)
	assert.True(t, alice.IsOnline)
	assert.True(t, alice.IsAvailable)
	require.NotNil(t, alice.Shift)
	assert.Equal(t, shift.Clock(17, 0), alice.Shift.End)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, alice.Shift.Weekdays)

	bob := agents[1]
	assert.Empty(t, bob.ID)
	assert.False(t, bob.IsOnline)
	assert.False(t, bob.IsAvailable)
	assert.Nil(t, bob.Shift)
}

func TestParseRejectsBadShift(t *testing.T) {
	_, err := roster.Parse(strings.NewReader(`
agents:
  - name: Night Owl
    email: owl@example.com
    shift: {start: "22:00", end: "06:00", weekdays: [1]}
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "owl@example.com")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := roster.Parse(strings.NewReader("agents:\n  - name: X\n    mail: x@example.com\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	agents, err := roster.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, agents)
}
