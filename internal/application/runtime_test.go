package application_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/application"
	"github.com/psds-microservice/dispatch-service/internal/config"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/logging"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "dispatch.db"))
	t.Setenv("DISPATCH_EVENT_BUFFER", "0")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestBootstrapSurvivesRestart(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	rt, err := application.Bootstrap(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	_, err = rt.Engine.RegisterAgent(ctx, dispatch.NewAgent{ID: "a1", Name: "Alice", Email: "alice@example.com", IsOnline: true, IsAvailable: true})
	require.NoError(t, err)
	tk, err := rt.Engine.Submit(ctx, dispatch.SubmitRequest{Title: "VPN is down", DueDate: time.Now().Add(time.Hour), EstimatedHours: 2})
	require.NoError(t, err)
	require.Equal(t, "a1", tk.AgentID())
	require.NoError(t, rt.Close())

	again, err := application.Bootstrap(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })

	a, err := again.Engine.Agent("a1")
	require.NoError(t, err)
	assert.Equal(t, cfg.Dispatch.DefaultCapacity, a.Capacity)
	assert.True(t, a.Holds(tk.ID))

	got, err := again.Engine.Ticket(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusAssigned, got.Status)
	assert.NoError(t, again.Store.Ping(ctx))
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Dispatch.DefaultCapacity = 0
	_, err := application.Bootstrap(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "DISPATCH_DEFAULT_CAPACITY")
}
