// Package registry is the dispatch engine's view of agents and their
// current workload.
package registry

import (
	"iter"
	"sort"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/model"
)

// Registry maps agent ids to agents. It is not safe for concurrent use; the
// dispatch engine serializes access.
type Registry struct {
	agents map[string]*model.Agent
}

func New() *Registry {
	return &Registry{agents: make(map[string]*model.Agent)}
}

// Put stores a, replacing any agent with the same id.
func (r *Registry) Put(a *model.Agent) {
	if a.CurrentTickets == nil {
		a.CurrentTickets = make(map[string]struct{})
	}
	r.agents[a.ID] = a
}

func (r *Registry) Get(id string) (*model.Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

func (r *Registry) Remove(id string) {
	delete(r.agents, id)
}

func (r *Registry) Len() int {
	return len(r.agents)
}

// All returns the agents ordered by id.
func (r *Registry) All() []*model.Agent {
	out := make([]*model.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Eligible reports whether a can take t at now: online, available, under
// capacity, and with a shift covering the due date.
func Eligible(a *model.Agent, t *model.Ticket, now time.Time) bool {
	return a.AcceptsWork() &&
		a.Load() < a.Capacity &&
		a.Shift.CanServe(t.DueDate, now)
}

// FindEligible yields the agents that can take t at now, least loaded
// first and then by id. The candidates are computed from the current state
// when iteration starts.
func (r *Registry) FindEligible(t *model.Ticket, now time.Time) iter.Seq[*model.Agent] {
	return func(yield func(*model.Agent) bool) {
		candidates := make([]*model.Agent, 0, len(r.agents))
		for _, a := range r.agents {
			if Eligible(a, t, now) {
				candidates = append(candidates, a)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			if li, lj := candidates[i].Load(), candidates[j].Load(); li != lj {
				return li < lj
			}
			return candidates[i].ID < candidates[j].ID
		})
		for _, a := range candidates {
			if !yield(a) {
				return
			}
		}
	}
}

// Reserve adds ticketID to the agent's workload. Reserving a ticket the
// agent already holds, or for an unknown agent, changes nothing and
// returns false.
func (r *Registry) Reserve(agentID, ticketID string) bool {
	a, ok := r.agents[agentID]
	if !ok || a.Holds(ticketID) {
		return false
	}
	a.CurrentTickets[ticketID] = struct{}{}
	return true
}

// Release removes ticketID from the agent's workload. Releasing a ticket
// the agent does not hold is a no-op and returns false.
func (r *Registry) Release(agentID, ticketID string) bool {
	a, ok := r.agents[agentID]
	if !ok || !a.Holds(ticketID) {
		return false
	}
	delete(a.CurrentTickets, ticketID)
	return true
}
