package dispatch

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/queue"
)

// Reads take the read lock and return copies, so callers never observe a
// half-applied operation and cannot mutate engine state.

// TicketFilter selects tickets; empty fields match everything.
type TicketFilter struct {
	Status   model.TicketStatus
	Priority model.Priority
	AgentID  string
}

func (f TicketFilter) match(t *model.Ticket) bool {
	return (f.Status == "" || t.Status == f.Status) &&
		(f.Priority == "" || t.Priority == f.Priority) &&
		(f.AgentID == "" || t.AgentID() == f.AgentID)
}

// QueuedTicket is one line of the queue listing.
type QueuedTicket struct {
	Position int `json:"position"`
	queue.Entry
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
}

// AgentLoad is one agent's workload.
type AgentLoad struct {
	AgentID     string   `json:"agent_id"`
	Name        string   `json:"name"`
	Load        int      `json:"load"`
	Capacity    int      `json:"capacity"`
	IsOnline    bool     `json:"is_online"`
	IsAvailable bool     `json:"is_available"`
	OnDuty      bool     `json:"on_duty"`
	TicketIDs   []string `json:"ticket_ids"`
}

func (e *Engine) Ticket(id string) (*model.Ticket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return t.Clone(), nil
}

// Tickets returns the matching tickets, oldest first.
func (e *Engine) Tickets(f TicketFilter) []*model.Ticket {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*model.Ticket, 0, len(e.tickets))
	for _, t := range e.tickets {
		if f.match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) Agent(id string) (*model.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents.Get(id)
	if !ok {
		return nil, errs.ErrAgentNotFound
	}
	return a.Clone(), nil
}

// Agents returns every agent ordered by id.
func (e *Engine) Agents() []*model.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := e.agents.All()
	out := make([]*model.Agent, len(all))
	for i, a := range all {
		out[i] = a.Clone()
	}
	return out
}

// ListQueue returns the queued tickets in dispatch order.
func (e *Engine) ListQueue() []QueuedTicket {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries := e.queue.Entries()
	out := make([]QueuedTicket, len(entries))
	for i, entry := range entries {
		out[i] = QueuedTicket{Position: i + 1, Entry: entry}
		if t, ok := e.tickets[entry.TicketID]; ok {
			out[i].Title = t.Title
			out[i].DueDate = t.DueDate
		}
	}
	return out
}

// QueuePosition reports where one queued ticket stands in dispatch order.
// A ticket that exists but is not waiting yields a wrapped ErrNotFound.
func (e *Engine) QueuePosition(ticketID string) (QueuedTicket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickets[ticketID]
	if !ok {
		return QueuedTicket{}, errs.ErrTicketNotFound
	}
	if !e.queue.Contains(ticketID) {
		return QueuedTicket{}, fmt.Errorf("%w: ticket %s is %s, not queued", errs.ErrNotFound, ticketID, t.Status)
	}
	return QueuedTicket{
		Position: e.queue.Position(ticketID) + 1,
		Entry:    entryOf(t),
		Title:    t.Title,
		DueDate:  t.DueDate,
	}, nil
}

// AgentLoad reports the workload of every agent, ordered by id.
func (e *Engine) AgentLoad() []AgentLoad {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.clock.Now()
	all := e.agents.All()
	out := make([]AgentLoad, len(all))
	for i, a := range all {
		out[i] = AgentLoad{
			AgentID:     a.ID,
			Name:        a.Name,
			Load:        a.Load(),
			Capacity:    a.Capacity,
			IsOnline:    a.IsOnline,
			IsAvailable: a.IsAvailable,
			OnDuty:      a.Shift.OnDuty(now),
			TicketIDs:   sortedKeys(a.CurrentTickets),
		}
	}
	return out
}

// QueueLen is the number of queued tickets.
func (e *Engine) QueueLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queue.Len()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
