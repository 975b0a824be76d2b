package dispatch_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/clock"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/shift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 10:00 UTC.
var base = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

var ctx = context.Background()

// idSeq is shared by all harnesses so engines over one store never reuse
// an id.
var idSeq atomic.Int64

// memStore is an in-memory Store that can be told to fail the next commit.
type memStore struct {
	mu       sync.Mutex
	agents   map[string]model.Agent
	tickets  map[string]model.Ticket
	comments []model.Comment
	commits  int
	failNext error
}

func newMemStore() *memStore {
	return &memStore{agents: map[string]model.Agent{}, tickets: map[string]model.Ticket{}}
}

func (s *memStore) Load(context.Context) ([]model.Agent, []model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var agents []model.Agent
	for _, a := range s.agents {
		agents = append(agents, *a.Clone())
	}
	var tickets []model.Ticket
	for _, t := range s.tickets {
		tickets = append(tickets, *t.Clone())
	}
	return agents, tickets, nil
}

func (s *memStore) Commit(_ context.Context, ch dispatch.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.commits++
	for _, a := range ch.Agents {
		c := *a.Clone()
		c.CurrentTickets = nil
		s.agents[a.ID] = c
	}
	for _, t := range ch.Tickets {
		s.tickets[t.ID] = *t.Clone()
	}
	for _, c := range ch.Comments {
		s.comments = append(s.comments, *c)
	}
	for _, id := range ch.DeletedTickets {
		delete(s.tickets, id)
	}
	for _, id := range ch.DeletedAgents {
		delete(s.agents, id)
	}
	return nil
}

func (s *memStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

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

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) types() []events.Type {
	var out []events.Type
	for _, e := range r.all() {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	*dispatch.Engine
	clock *clock.FakeClock
	store *memStore
	sink  *recorder
}

func newHarness(t *testing.T, opts ...dispatch.Option) *harness {
	return newHarnessWithStore(t, newMemStore(), opts...)
}

func newHarnessWithStore(t *testing.T, store *memStore, opts ...dispatch.Option) *harness {
	t.Helper()
	h := &harness{clock: clock.Fake(base), store: store, sink: &recorder{}}
	nextID := func() string {
		return fmt.Sprintf("id-%06d", idSeq.Add(1))
	}
	all := append([]dispatch.Option{
		dispatch.WithClock(h.clock),
		dispatch.WithSink(h.sink),
		dispatch.WithEventBuffer(0),
		dispatch.WithIDGenerator(nextID),
	}, opts...)
	h.Engine = dispatch.New(store, all...)
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

type agentOpt func(*dispatch.NewAgent)

func offline(a *dispatch.NewAgent) { a.IsOnline = false }

func withShift(s *shift.Shift) agentOpt {
	return func(a *dispatch.NewAgent) { a.Shift = s }
}

func (h *harness) agent(t *testing.T, id string, capacity int, opts ...agentOpt) *model.Agent {
	t.Helper()
	req := dispatch.NewAgent{
		ID:          id,
		Name:        "Agent " + id,
		Email:       id + "@example.com",
		Capacity:    capacity,
		IsOnline:    true,
		IsAvailable: true,
	}
	for _, opt := range opts {
		opt(&req)
	}
	a, err := h.RegisterAgent(ctx, req)
	require.NoError(t, err)
	return a
}

func (h *harness) submit(t *testing.T, title string, p model.Priority, dueIn time.Duration) *model.Ticket {
	t.Helper()
	tk, err := h.Submit(ctx, dispatch.SubmitRequest{
		Title:          title,
		Priority:       p,
		DueDate:        h.clock.Now().Add(dueIn),
		EstimatedHours: 1,
	})
	require.NoError(t, err)
	return tk
}

func (h *harness) status(t *testing.T, id string) model.TicketStatus {
	t.Helper()
	tk, err := h.Ticket(id)
	require.NoError(t, err)
	return tk.Status
}

func (h *harness) load(t *testing.T, agentID string) int {
	t.Helper()
	a, err := h.Agent(agentID)
	require.NoError(t, err)
	return a.Load()
}

func queueIDs(e *dispatch.Engine) []string {
	var out []string
	for _, q := range e.ListQueue() {
		out = append(out, q.TicketID)
	}
	return out
}

// checkInvariants asserts that no agent is over capacity and that ticket
// assignments agree with agent workloads.
func checkInvariants(t *testing.T, e *dispatch.Engine) {
	t.Helper()
	held := map[string][]string{}
	for _, tk := range e.Tickets(dispatch.TicketFilter{}) {
		assert.Equal(t, tk.Status.Held(), tk.AssignedAgentID != nil, "ticket %s in %s", tk.ID, tk.Status)
		if tk.Status.Held() {
			held[tk.AgentID()] = append(held[tk.AgentID()], tk.ID)
		}
		if tk.Status == model.TicketStatusQueued {
			assert.Contains(t, queueIDs(e), tk.ID)
		}
	}
	for _, l := range e.AgentLoad() {
		assert.LessOrEqual(t, l.Load, l.Capacity, "agent %s", l.AgentID)
		want := held[l.AgentID]
		slices.Sort(want)
		assert.ElementsMatch(t, want, l.TicketIDs, "agent %s", l.AgentID)
	}
}

func mustShift(t *testing.T, start, end string, weekdays ...int) *shift.Shift {
	t.Helper()
	s, err := shift.Parse(start, end, weekdays, "")
	require.NoError(t, err)
	return s
}
