// Package dispatch distributes tickets to agents. The Engine owns the
// ticket table, the agent registry and the priority queue, and serializes
// every mutation of the three through one lock so that eligibility checks
// and reservations happen in the same critical section.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/dispatch-service/internal/clock"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/logging"
	"github.com/psds-microservice/dispatch-service/internal/metrics"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/queue"
	"github.com/psds-microservice/dispatch-service/internal/registry"
)

const (
	DefaultCapacity    = 3
	DefaultEventBuffer = 256
)

type Engine struct {
	mu sync.RWMutex

	store  Store
	clock  clock.Clock
	logger *slog.Logger
	sink   events.Sink
	newID  func() string

	defaultCapacity int
	autoAssign      bool
	eventBuffer     int
	notifier        *events.Notifier

	tickets map[string]*model.Ticket
	agents  *registry.Registry
	queue   *queue.Queue
	seq     uint64

	// pending collects events inside the critical section; they are
	// published after the lock is released.
	pending []events.Event
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithSink sets where events go. Delivery is asynchronous unless the event
// buffer is set to zero.
func WithSink(s events.Sink) Option { return func(e *Engine) { e.sink = s } }

// WithEventBuffer sets the notifier buffer. Zero delivers events
// synchronously after each operation releases the lock.
func WithEventBuffer(n int) Option { return func(e *Engine) { e.eventBuffer = n } }

func WithDefaultCapacity(n int) Option { return func(e *Engine) { e.defaultCapacity = n } }

// WithAutoAssign controls whether operations that may create eligibility
// run a sweep before returning.
func WithAutoAssign(on bool) Option { return func(e *Engine) { e.autoAssign = on } }

func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// New creates an engine over store. A nil store keeps state in memory only.
// Call Restore to load persisted state and Stop to release the notifier.
func New(store Store, opts ...Option) *Engine {
	if store == nil {
		store = nopStore{}
	}
	e := &Engine{
		store:           store,
		clock:           clock.Real(),
		logger:          logging.Discard(),
		sink:            events.Nop,
		newID:           uuid.NewString,
		defaultCapacity: DefaultCapacity,
		autoAssign:      true,
		eventBuffer:     DefaultEventBuffer,
		tickets:         make(map[string]*model.Ticket),
		agents:          registry.New(),
		queue:           queue.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultCapacity < 1 {
		e.defaultCapacity = DefaultCapacity
	}
	if e.eventBuffer > 0 {
		e.notifier = events.NewNotifier(e.sink, e.eventBuffer, 5*time.Second, e.logger)
	}
	return e
}

// Stop waits for buffered events to be delivered. The engine must not be
// used afterwards.
func (e *Engine) Stop() error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.Close()
}

// Restore replaces the in-memory state with the store's contents,
// rebuilding agent workloads from ticket assignments and the queue from
// queued tickets, then sweeps when auto-assignment is on.
func (e *Engine) Restore(ctx context.Context) error {
	agents, tickets, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	return e.write(func() error {
		e.tickets = make(map[string]*model.Ticket, len(tickets))
		e.agents = registry.New()
		e.queue = queue.New()
		e.seq = 0

		for i := range agents {
			a := agents[i]
			a.CurrentTickets = nil
			e.agents.Put(&a)
		}
		for i := range tickets {
			t := tickets[i]
			if t.QueueSeq > e.seq {
				e.seq = t.QueueSeq
			}
			if t.Status.Held() && !e.agents.Reserve(t.AgentID(), t.ID) {
				e.logger.Warn("held ticket references unknown agent", "ticket_id", t.ID, "agent_id", t.AgentID())
			}
			if t.Status == model.TicketStatusQueued {
				if t.EnqueuedAt == nil {
					at := t.CreatedAt
					t.EnqueuedAt = &at
				}
				e.queue.Enqueue(entryOf(&t))
			}
			e.tickets[t.ID] = &t
		}
		for _, a := range e.agents.All() {
			if a.Load() > a.Capacity {
				e.logger.Warn("restored agent is over capacity", "agent_id", a.ID, "load", a.Load(), "capacity", a.Capacity)
			}
		}
		e.logger.Info("dispatch state restored", "agents", e.agents.Len(), "tickets", len(e.tickets), "queued", e.queue.Len())

		if e.autoAssign {
			e.sweepLocked(ctx, e.clock.Now())
		}
		return nil
	})
}

// write runs fn under the write lock, refreshes gauges and publishes the
// events fn collected once the lock is released.
func (e *Engine) write(fn func() error) error {
	e.mu.Lock()
	err := fn()
	e.observe()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	e.publish(pending)
	return err
}

func (e *Engine) publish(evs []events.Event) {
	for _, ev := range evs {
		var err error
		if e.notifier != nil {
			err = e.notifier.Publish(context.Background(), ev)
		} else {
			err = e.sink.Publish(context.Background(), ev)
		}
		if err != nil {
			e.logger.Warn("publish event", "event", ev.Type, "ticket_id", ev.TicketID, "error", err)
		}
	}
}

func (e *Engine) emit(ev events.Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) ticketEvent(typ events.Type, t *model.Ticket, agentID, via string, now time.Time) {
	e.emit(events.Event{
		Type:     typ,
		TicketID: t.ID,
		AgentID:  agentID,
		Status:   t.Status,
		Priority: t.Priority,
		Via:      via,
		At:       now,
		Ticket:   t.Clone(),
	})
}

func (e *Engine) observe() {
	metrics.QueueDepth.Set(float64(e.queue.Len()))
	for _, a := range e.agents.All() {
		metrics.AgentLoad.WithLabelValues(a.ID).Set(float64(a.Load()))
	}
}

// commit persists ch and then applies it to memory. Nothing in memory
// changes when the store rejects the commit.
func (e *Engine) commit(ctx context.Context, ch Changes) error {
	if ch.Empty() {
		return nil
	}
	if err := e.store.Commit(ctx, ch); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, a := range ch.Agents {
		e.applyAgent(a)
	}
	for _, t := range ch.Tickets {
		e.applyTicket(t)
	}
	for _, c := range ch.Comments {
		if t, ok := e.tickets[c.TicketID]; ok {
			next := t.Clone()
			next.Comments = append(next.Comments, *c)
			e.tickets[c.TicketID] = next
		}
	}
	for _, id := range ch.DeletedTickets {
		e.dropTicket(id)
	}
	for _, id := range ch.DeletedAgents {
		e.agents.Remove(id)
		metrics.ForgetAgent(id)
	}
	return nil
}

// applyAgent stores a, keeping the workload of the agent it replaces.
func (e *Engine) applyAgent(a *model.Agent) {
	if old, ok := e.agents.Get(a.ID); ok {
		a.CurrentTickets = old.CurrentTickets
	} else {
		a.CurrentTickets = nil
	}
	e.agents.Put(a)
}

// applyTicket stores t and derives workload and queue membership from its
// status and assignment.
func (e *Engine) applyTicket(t *model.Ticket) {
	oldAgent := ""
	if old, ok := e.tickets[t.ID]; ok && old.Status.Held() {
		oldAgent = old.AgentID()
	}
	newAgent := ""
	if t.Status.Held() {
		newAgent = t.AgentID()
	}
	if oldAgent != "" && oldAgent != newAgent {
		e.agents.Release(oldAgent, t.ID)
	}
	if newAgent != "" {
		e.agents.Reserve(newAgent, t.ID)
	}

	e.queue.Remove(t.ID)
	if t.Status == model.TicketStatusQueued {
		e.queue.Enqueue(entryOf(t))
	}
	e.tickets[t.ID] = t
}

func (e *Engine) dropTicket(id string) {
	t, ok := e.tickets[id]
	if !ok {
		return
	}
	if t.Status.Held() {
		e.agents.Release(t.AgentID(), id)
	}
	e.queue.Remove(id)
	delete(e.tickets, id)
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// markQueued sets t to QUEUED, stamping its arrival the first time it
// enters the queue. A ticket that was queued before keeps its original
// position.
func (e *Engine) markQueued(t *model.Ticket, now time.Time) {
	t.Status = model.TicketStatusQueued
	t.AssignedAgentID = nil
	if t.EnqueuedAt == nil {
		at := t.CreatedAt
		t.EnqueuedAt = &at
		t.QueueSeq = e.nextSeq()
	}
	t.UpdatedAt = now
}

func (e *Engine) maybeSweep(ctx context.Context, now time.Time) {
	if e.autoAssign {
		e.sweepLocked(ctx, now)
	}
}

func entryOf(t *model.Ticket) queue.Entry {
	entry := queue.Entry{TicketID: t.ID, Priority: t.Priority, Seq: t.QueueSeq}
	if t.EnqueuedAt != nil {
		entry.EnqueuedAt = *t.EnqueuedAt
	}
	return entry
}
