package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/logging"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Type
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestRedisStreamPublish(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := events.NewRedisStream(rdb, "dispatch.events", 1000)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "dispatch.events",
		MaxLen: 1000,
		Approx: true,
		Values: []interface{}{
			"event", "ticket.assigned",
			"ticket_id", "t-1",
			"agent_id", "a-1",
			"status", "ASSIGNED",
			"via", "claim",
			"at", "2026-10-12T10:00:00Z",
		},
	}).SetVal("1-0")

	err := sink.Publish(context.Background(), events.Event{
		Type:     events.TicketAssigned,
		TicketID: "t-1",
		AgentID:  "a-1",
		Status:   model.TicketStatusAssigned,
		Via:      events.ViaClaim,
		At:       at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamPublishError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := events.NewRedisStream(rdb, "dispatch.events", 0)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "dispatch.events",
		Values: []interface{}{
			"event", "ticket.closed",
			"ticket_id", "t-2",
			"agent_id", "",
			"status", "CLOSED",
			"via", "",
			"at", "2026-10-12T10:00:00Z",
		},
	}).SetErr(errors.New("connection refused"))

	err := sink.Publish(context.Background(), events.Event{
		Type:     events.TicketClosed,
		TicketID: "t-2",
		Status:   model.TicketStatusClosed,
		At:       at,
	})
	assert.EqualError(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiJoinsErrors(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	failing := events.SinkFunc(func(context.Context, events.Event) error { return boom })

	err := events.Multi{failing, rec, events.Nop}.Publish(context.Background(), events.Event{Type: events.TicketQueued})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []events.Type{events.TicketQueued}, rec.types())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := events.LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, sink.Publish(context.Background(), events.Event{
		Type:     events.TicketAssigned,
		TicketID: "t-1",
		AgentID:  "a-1",
		Via:      events.ViaSweep,
	}))
	out := buf.String()
	assert.Contains(t, out, "event=ticket.assigned")
	assert.Contains(t, out, "ticket_id=t-1")
	assert.Contains(t, out, "via=sweep")
}

func TestNotifierDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	n := events.NewNotifier(rec, 16, time.Second, logging.Discard())

	for _, typ := range []events.Type{events.TicketSubmitted, events.TicketQueued, events.TicketAssigned} {
		require.NoError(t, n.Publish(context.Background(), events.Event{Type: typ}))
	}
	require.NoError(t, n.Close())

	assert.Equal(t, []events.Type{events.TicketSubmitted, events.TicketQueued, events.TicketAssigned}, rec.types())
	assert.ErrorIs(t, n.Publish(context.Background(), events.Event{}), events.ErrClosed)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	slow := events.SinkFunc(func(ctx context.Context, e events.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-unblock
		return rec.Publish(ctx, e)
	})
	n := events.NewNotifier(slow, 1, time.Second, logging.Discard())

	require.NoError(t, n.Publish(context.Background(), events.Event{Type: events.TicketSubmitted}))
	<-started
	require.NoError(t, n.Publish(context.Background(), events.Event{Type: events.TicketQueued}))
	assert.ErrorIs(t, n.Publish(context.Background(), events.Event{Type: events.TicketAssigned}), events.ErrDropped)

	close(unblock)
	require.NoError(t, n.Close())
	assert.Equal(t, []events.Type{events.TicketSubmitted, events.TicketQueued}, rec.types())
}

func TestNotifierSurvivesSinkErrors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	failing := events.SinkFunc(func(context.Context, events.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("unreachable")
	})
	n := events.NewNotifier(failing, 4, time.Second, logging.Discard())
	require.NoError(t, n.Publish(context.Background(), events.Event{Type: events.TicketClosed}))
	require.NoError(t, n.Publish(context.Background(), events.Event{Type: events.TicketClosed}))
	require.NoError(t, n.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}
