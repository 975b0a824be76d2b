package dispatch

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/shift"
)

// NewAgent describes an agent to register. An empty ID is generated and a
// zero Capacity takes the engine default.
type NewAgent struct {
	ID          string
	Name        string
	Email       string
	Role        model.AgentRole
	Capacity    int
	IsOnline    bool
	IsAvailable bool
	Shift       *shift.Shift
}

// AgentUpdate changes an agent's profile. Nil fields are left as they are.
type AgentUpdate struct {
	Name  *string
	Email *string
	Role  *model.AgentRole
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.Invalid("name", "must not be empty")
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return errs.Invalid("email", "must be a valid address")
	}
	return nil
}

func validateRole(r model.AgentRole) error {
	if !r.Valid() {
		return errs.Invalid("role", "must be one of SUPPORT, SUPERVISOR, ADMIN")
	}
	return nil
}

// emailTaken reports whether another agent already uses email.
func (e *Engine) emailTaken(email, exceptID string) bool {
	for _, a := range e.agents.All() {
		if a.ID != exceptID && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

func (e *Engine) RegisterAgent(ctx context.Context, req NewAgent) (*model.Agent, error) {
	if req.Role == "" {
		req.Role = model.AgentRoleSupport
	}
	if req.Capacity == 0 {
		req.Capacity = e.defaultCapacity
	}
	var out *model.Agent
	err := e.write(func() error {
		now := e.clock.Now()
		if err := validateName(req.Name); err != nil {
			return err
		}
		if err := validateEmail(req.Email); err != nil {
			return err
		}
		if err := validateRole(req.Role); err != nil {
			return err
		}
		if req.Capacity < 1 {
			return errs.Invalid("capacity", "must be at least 1")
		}
		if err := req.Shift.Validate(); err != nil {
			return err
		}
		if req.ID == "" {
			req.ID = e.newID()
		} else if _, ok := e.agents.Get(req.ID); ok {
			return errs.Invalid("id", "already registered")
		}
		if e.emailTaken(req.Email, "") {
			return errs.Invalid("email", "already registered")
		}

		a := &model.Agent{
			ID:          req.ID,
			Name:        strings.TrimSpace(req.Name),
			Email:       strings.TrimSpace(req.Email),
			Role:        req.Role,
			IsOnline:    req.IsOnline,
			IsAvailable: req.IsAvailable,
			Capacity:    req.Capacity,
			Shift:       req.Shift.Clone(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.commit(ctx, Changes{Agents: []*model.Agent{a}}); err != nil {
			return err
		}
		e.emit(events.Event{Type: events.AgentRegistered, AgentID: a.ID, At: now})
		if a.AcceptsWork() {
			e.maybeSweep(ctx, now)
		}
		out = e.agentSnapshot(a.ID)
		return nil
	})
	return out, err
}

func (e *Engine) UpdateAgent(ctx context.Context, agentID string, upd AgentUpdate) (*model.Agent, error) {
	return e.updateAgent(ctx, agentID, func(next *model.Agent) (bool, error) {
		if upd.Name != nil {
			if err := validateName(*upd.Name); err != nil {
				return false, err
			}
			next.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Email != nil {
			if err := validateEmail(*upd.Email); err != nil {
				return false, err
			}
			if e.emailTaken(*upd.Email, next.ID) {
				return false, errs.Invalid("email", "already registered")
			}
			next.Email = strings.TrimSpace(*upd.Email)
		}
		if upd.Role != nil {
			if err := validateRole(*upd.Role); err != nil {
				return false, err
			}
			next.Role = *upd.Role
		}
		return false, nil
	})
}

// SetAgentStatus changes the online and availability flags. An agent going
// offline gives its held tickets back to the queue; an agent that is merely
// unavailable keeps them but receives no new work.
func (e *Engine) SetAgentStatus(ctx context.Context, agentID string, online, available *bool) (*model.Agent, error) {
	return e.updateAgent(ctx, agentID, func(next *model.Agent) (bool, error) {
		if online != nil {
			next.IsOnline = *online
		}
		if available != nil {
			next.IsAvailable = *available
		}
		return !next.IsOnline, nil
	})
}

// SetCapacity changes how many tickets the agent may hold. It cannot drop
// below the agent's current load.
func (e *Engine) SetCapacity(ctx context.Context, agentID string, capacity int) (*model.Agent, error) {
	return e.updateAgent(ctx, agentID, func(next *model.Agent) (bool, error) {
		if capacity < 1 {
			return false, errs.Invalid("capacity", "must be at least 1")
		}
		if load := next.Load(); capacity < load {
			return false, errs.Invalid("capacity", "agent holds %d tickets", load)
		}
		next.Capacity = capacity
		return false, nil
	})
}

// SetShift replaces the agent's shift; nil removes it, making the agent
// eligible at any time. Tickets already held are kept; the new shift
// applies to later assignments.
func (e *Engine) SetShift(ctx context.Context, agentID string, s *shift.Shift) (*model.Agent, error) {
	return e.updateAgent(ctx, agentID, func(next *model.Agent) (bool, error) {
		if err := s.Validate(); err != nil {
			return false, err
		}
		next.Shift = s.Clone()
		return false, nil
	})
}

// updateAgent applies mutate to a copy of the agent and commits it. When
// mutate asks for it, the agent's held tickets are re-queued in the same
// commit.
func (e *Engine) updateAgent(ctx context.Context, agentID string, mutate func(next *model.Agent) (releaseHeld bool, err error)) (*model.Agent, error) {
	var out *model.Agent
	err := e.write(func() error {
		now := e.clock.Now()
		a, ok := e.agents.Get(agentID)
		if !ok {
			return errs.ErrAgentNotFound
		}
		next := a.Clone()
		releaseHeld, err := mutate(next)
		if err != nil {
			return err
		}
		next.UpdatedAt = now

		ch := Changes{Agents: []*model.Agent{next}}
		released := e.heldTickets(a, now, releaseHeld)
		ch.Tickets = released
		if err := e.commit(ctx, ch); err != nil {
			return err
		}
		e.emit(events.Event{Type: events.AgentUpdated, AgentID: next.ID, At: now})
		for _, t := range released {
			e.ticketEvent(events.TicketReleased, t, agentID, "", now)
		}
		e.maybeSweep(ctx, now)
		out = e.agentSnapshot(agentID)
		return nil
	})
	return out, err
}

// RemoveAgent deletes the agent and re-queues every ticket it held.
func (e *Engine) RemoveAgent(ctx context.Context, agentID string) error {
	return e.write(func() error {
		now := e.clock.Now()
		a, ok := e.agents.Get(agentID)
		if !ok {
			return errs.ErrAgentNotFound
		}
		released := e.heldTickets(a, now, true)
		if err := e.commit(ctx, Changes{Tickets: released, DeletedAgents: []string{agentID}}); err != nil {
			return err
		}
		for _, t := range released {
			e.ticketEvent(events.TicketReleased, t, agentID, "", now)
		}
		e.emit(events.Event{Type: events.AgentRemoved, AgentID: agentID, At: now})
		e.logger.Info("agent removed", "agent_id", agentID, "released", len(released))
		e.maybeSweep(ctx, now)
		return nil
	})
}

// heldTickets returns re-queued copies of the tickets a holds, in id order,
// or nil when release is false.
func (e *Engine) heldTickets(a *model.Agent, now time.Time, release bool) []*model.Ticket {
	if !release || a.Load() == 0 {
		return nil
	}
	out := make([]*model.Ticket, 0, a.Load())
	for _, id := range sortedKeys(a.CurrentTickets) {
		t, ok := e.tickets[id]
		if !ok {
			continue
		}
		next := t.Clone()
		e.markQueued(next, now)
		out = append(out, next)
	}
	return out
}

func (e *Engine) agentSnapshot(id string) *model.Agent {
	a, _ := e.agents.Get(id)
	return a.Clone()
}
