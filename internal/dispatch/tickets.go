package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/metrics"
	"github.com/psds-microservice/dispatch-service/internal/model"
)

const (
	MinEstimatedHours = 0.5
	MaxEstimatedHours = 24
	minTitleLength    = 3
	maxTitleLength    = 255
)

// SubmitRequest holds the fields of a new ticket. With AgentID set the
// ticket is assigned to that agent directly instead of being queued.
type SubmitRequest struct {
	Title          string
	Description    string
	Priority       model.Priority
	DueDate        time.Time
	EstimatedHours float64
	AgentID        string
}

// TicketUpdate changes the descriptive fields of a ticket. Nil fields are
// left as they are.
type TicketUpdate struct {
	Title          *string
	Description    *string
	Priority       *model.Priority
	DueDate        *time.Time
	EstimatedHours *float64
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < minTitleLength || n > maxTitleLength {
		return errs.Invalid("title", "must be %d to %d characters", minTitleLength, maxTitleLength)
	}
	return nil
}

func validatePriority(p model.Priority) error {
	if !p.Valid() {
		return errs.Invalid("priority", "must be one of LOW, MEDIUM, HIGH")
	}
	return nil
}

func validateDueDate(due, now time.Time) error {
	if !due.After(now) {
		return errs.Invalid("due_date", "must be in the future")
	}
	return nil
}

func validateHours(h float64) error {
	if h < MinEstimatedHours || h > MaxEstimatedHours {
		return errs.Invalid("estimated_hours", "must be between %g and %g", MinEstimatedHours, float64(MaxEstimatedHours))
	}
	return nil
}

// Submit creates a ticket. Without a target agent the ticket is queued and
// a sweep may assign it before Submit returns. With a target agent the
// ticket is created OPEN and assigned directly; when that assignment fails
// the created ticket is returned together with the error.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*model.Ticket, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		if err := validateTitle(req.Title); err != nil {
			return err
		}
		if err := validatePriority(req.Priority); err != nil {
			return err
		}
		if err := validateDueDate(req.DueDate, now); err != nil {
			return err
		}
		if err := validateHours(req.EstimatedHours); err != nil {
			return err
		}
		if req.AgentID != "" {
			if _, ok := e.agents.Get(req.AgentID); !ok {
				return errs.ErrAgentNotFound
			}
		}

		t := &model.Ticket{
			ID:             e.newID(),
			Title:          strings.TrimSpace(req.Title),
			Description:    strings.TrimSpace(req.Description),
			Priority:       req.Priority,
			Status:         model.TicketStatusOpen,
			DueDate:        req.DueDate,
			EstimatedHours: req.EstimatedHours,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if req.AgentID == "" {
			e.markQueued(t, now)
		}
		if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{t}}); err != nil {
			return err
		}
		e.ticketEvent(events.TicketSubmitted, t, "", "", now)

		if req.AgentID != "" {
			if _, err := e.assignLocked(ctx, t.ID, req.AgentID, false, events.ViaAssign, now); err != nil {
				out = e.tickets[t.ID].Clone()
				return err
			}
		} else {
			e.maybeSweep(ctx, now)
		}
		out = e.tickets[t.ID].Clone()
		return nil
	})
	if err != nil && out == nil {
		return nil, err
	}
	return out, err
}

// Assign gives the ticket to agentID. An ASSIGNED ticket held by another
// agent is moved; assigning to the current holder changes nothing.
func (e *Engine) Assign(ctx context.Context, ticketID, agentID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, err := e.assignLocked(ctx, ticketID, agentID, false, events.ViaAssign, now)
		if err != nil {
			return err
		}
		out = t.Clone()
		e.maybeSweep(ctx, now)
		return nil
	})
	if err != nil {
		metrics.RejectionsTotal.WithLabelValues("assign", errs.Kind(err)).Inc()
	}
	return out, err
}

// Claim assigns an unheld ticket to the agent asking for it. A ticket that
// already has an agent yields ErrAlreadyAssigned.
func (e *Engine) Claim(ctx context.Context, ticketID, agentID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		t, err := e.assignLocked(ctx, ticketID, agentID, true, events.ViaClaim, e.clock.Now())
		if err != nil {
			return err
		}
		out = t.Clone()
		return nil
	})
	if err != nil {
		metrics.RejectionsTotal.WithLabelValues("claim", errs.Kind(err)).Inc()
	}
	return out, err
}

// assignLocked checks and performs one assignment. Checks run in a fixed
// order: unknown ids, state, holder, shift coverage, availability, capacity.
// A ticket already held by another agent is never moved; callers release it
// first.
func (e *Engine) assignLocked(ctx context.Context, ticketID, agentID string, claim bool, via string, now time.Time) (*model.Ticket, error) {
	t, ok := e.tickets[ticketID]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	a, ok := e.agents.Get(agentID)
	if !ok {
		return nil, errs.ErrAgentNotFound
	}

	switch t.Status {
	case model.TicketStatusClosed, model.TicketStatusInProgress:
		if claim && t.Status == model.TicketStatusInProgress {
			return nil, fmt.Errorf("%w: ticket %s is held by agent %s", errs.ErrAlreadyAssigned, t.ID, t.AgentID())
		}
		return nil, fmt.Errorf("%w: cannot assign a %s ticket", errs.ErrInvalidTransition, t.Status)
	case model.TicketStatusAssigned:
		if !claim && t.AgentID() == agentID {
			return t, nil
		}
		return nil, fmt.Errorf("%w: ticket %s is held by agent %s", errs.ErrAlreadyAssigned, t.ID, t.AgentID())
	}

	if !a.Shift.CanServe(t.DueDate, now) {
		return nil, fmt.Errorf("%w: shift of agent %s ends before ticket %s is due", errs.ErrShiftViolation, a.ID, t.ID)
	}
	if !a.AcceptsWork() {
		return nil, fmt.Errorf("%w: agent %s is offline or unavailable", errs.ErrAgentUnavailable, a.ID)
	}
	if a.Load() >= a.Capacity {
		return nil, fmt.Errorf("%w: agent %s holds %d of %d tickets", errs.ErrCapacityExceeded, a.ID, a.Load(), a.Capacity)
	}

	next := t.Clone()
	next.Status = model.TicketStatusAssigned
	next.AssignedAgentID = &agentID
	next.UpdatedAt = now
	if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
		return nil, err
	}

	metrics.AssignmentsTotal.WithLabelValues(via).Inc()
	metrics.TransitionsTotal.WithLabelValues(string(next.Status)).Inc()
	e.ticketEvent(events.TicketAssigned, next, agentID, via, now)
	return next, nil
}

// Start moves an ASSIGNED ticket to IN_PROGRESS.
func (e *Engine) Start(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		if t.Status != model.TicketStatusAssigned {
			return fmt.Errorf("%w: cannot start a %s ticket", errs.ErrInvalidTransition, t.Status)
		}
		next := t.Clone()
		next.Status = model.TicketStatusInProgress
		next.UpdatedAt = now
		if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
			return err
		}
		metrics.TransitionsTotal.WithLabelValues(string(next.Status)).Inc()
		e.ticketEvent(events.TicketStarted, next, next.AgentID(), "", now)
		out = next.Clone()
		return nil
	})
	return out, err
}

// Release takes the ticket away from its agent and puts it back in the
// queue at its original position. Releasing a queued ticket changes nothing.
func (e *Engine) Release(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		switch t.Status {
		case model.TicketStatusClosed:
			return fmt.Errorf("%w: cannot release a CLOSED ticket", errs.ErrInvalidTransition)
		case model.TicketStatusQueued:
			out = t.Clone()
			return nil
		}
		next, err := e.releaseLocked(ctx, t, now)
		if err != nil {
			return err
		}
		e.maybeSweep(ctx, now)
		out = e.tickets[next.ID].Clone()
		return nil
	})
	return out, err
}

func (e *Engine) releaseLocked(ctx context.Context, t *model.Ticket, now time.Time) (*model.Ticket, error) {
	previous := t.AgentID()
	next := t.Clone()
	e.markQueued(next, now)
	if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(next.Status)).Inc()
	e.ticketEvent(events.TicketReleased, next, previous, "", now)
	return next, nil
}

// Close ends the ticket's life. Closing an OPEN or QUEUED ticket cancels
// it; closing a held ticket frees the agent's slot.
func (e *Engine) Close(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		if t.Status == model.TicketStatusClosed {
			return fmt.Errorf("%w: ticket %s is already CLOSED", errs.ErrInvalidTransition, t.ID)
		}
		previous := t.AgentID()
		next := t.Clone()
		next.Status = model.TicketStatusClosed
		next.AssignedAgentID = nil
		next.ClosedAt = &now
		next.UpdatedAt = now
		if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
			return err
		}
		metrics.TransitionsTotal.WithLabelValues(string(next.Status)).Inc()
		e.ticketEvent(events.TicketClosed, next, previous, "", now)
		out = next.Clone()
		if t.Status.Held() {
			e.maybeSweep(ctx, now)
		}
		return nil
	})
	return out, err
}

// Enqueue queues an OPEN ticket, typically one whose direct assignment at
// submission failed.
func (e *Engine) Enqueue(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		switch t.Status {
		case model.TicketStatusQueued:
			out = t.Clone()
			return nil
		case model.TicketStatusOpen:
		default:
			return fmt.Errorf("%w: cannot enqueue a %s ticket", errs.ErrInvalidTransition, t.Status)
		}
		next := t.Clone()
		e.markQueued(next, now)
		if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
			return err
		}
		metrics.TransitionsTotal.WithLabelValues(string(next.Status)).Inc()
		e.ticketEvent(events.TicketQueued, next, "", "", now)
		e.maybeSweep(ctx, now)
		out = e.tickets[next.ID].Clone()
		return nil
	})
	return out, err
}

// UpdateTicket edits the descriptive fields of an open ticket. A queued
// ticket whose priority changes moves within the queue but keeps its
// arrival; a held ticket cannot get a due date its agent's shift does not
// cover.
func (e *Engine) UpdateTicket(ctx context.Context, ticketID string, upd TicketUpdate) (*model.Ticket, error) {
	var out *model.Ticket
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		if t.Status == model.TicketStatusClosed {
			return fmt.Errorf("%w: cannot update a CLOSED ticket", errs.ErrInvalidTransition)
		}
		next := t.Clone()
		if upd.Title != nil {
			if err := validateTitle(*upd.Title); err != nil {
				return err
			}
			next.Title = strings.TrimSpace(*upd.Title)
		}
		if upd.Description != nil {
			next.Description = strings.TrimSpace(*upd.Description)
		}
		if upd.Priority != nil {
			if err := validatePriority(*upd.Priority); err != nil {
				return err
			}
			next.Priority = *upd.Priority
		}
		if upd.EstimatedHours != nil {
			if err := validateHours(*upd.EstimatedHours); err != nil {
				return err
			}
			next.EstimatedHours = *upd.EstimatedHours
		}
		if upd.DueDate != nil {
			if err := validateDueDate(*upd.DueDate, now); err != nil {
				return err
			}
			next.DueDate = *upd.DueDate
			if next.Status.Held() {
				if a, ok := e.agents.Get(next.AgentID()); ok && !a.Shift.CanServe(next.DueDate, now) {
					return fmt.Errorf("%w: shift of agent %s ends before the new due date", errs.ErrShiftViolation, a.ID)
				}
			}
		}
		next.UpdatedAt = now
		if err := e.commit(ctx, Changes{Tickets: []*model.Ticket{next}}); err != nil {
			return err
		}
		e.ticketEvent(events.TicketUpdated, next, next.AgentID(), "", now)
		if next.Status == model.TicketStatusQueued {
			e.maybeSweep(ctx, now)
		}
		out = e.tickets[next.ID].Clone()
		return nil
	})
	return out, err
}

// DeleteTicket removes a ticket, freeing its agent's slot.
func (e *Engine) DeleteTicket(ctx context.Context, ticketID string) error {
	return e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		held := t.Status.Held()
		previous := t.AgentID()
		if err := e.commit(ctx, Changes{DeletedTickets: []string{ticketID}}); err != nil {
			return err
		}
		e.emit(events.Event{Type: events.TicketDeleted, TicketID: ticketID, AgentID: previous, At: now})
		if held {
			e.maybeSweep(ctx, now)
		}
		return nil
	})
}

// AddComment appends a note by a known agent to the ticket.
func (e *Engine) AddComment(ctx context.Context, ticketID, authorID, text string) (*model.Comment, error) {
	var out *model.Comment
	err := e.write(func() error {
		now := e.clock.Now()
		t, ok := e.tickets[ticketID]
		if !ok {
			return errs.ErrTicketNotFound
		}
		if _, ok := e.agents.Get(authorID); !ok {
			return errs.ErrAgentNotFound
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return errs.Invalid("text", "must not be empty")
		}
		c := &model.Comment{
			ID:        e.newID(),
			TicketID:  t.ID,
			AuthorID:  authorID,
			Text:      text,
			CreatedAt: now,
		}
		if err := e.commit(ctx, Changes{Comments: []*model.Comment{c}}); err != nil {
			return err
		}
		e.emit(events.Event{Type: events.TicketCommented, TicketID: t.ID, AgentID: authorID, Status: t.Status, At: now})
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}
