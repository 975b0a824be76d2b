// Package events carries dispatch notifications to best-effort sinks.
// Delivery never feeds back into the engine: a failing sink is logged and
// counted, and the mutation that produced the event stays committed.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/metrics"
	"github.com/psds-microservice/dispatch-service/internal/model"
)

type Type string

const (
	TicketSubmitted Type = "ticket.submitted"
	TicketQueued    Type = "ticket.queued"
	TicketAssigned  Type = "ticket.assigned"
	TicketStarted   Type = "ticket.started"
	TicketReleased  Type = "ticket.released"
	TicketClosed    Type = "ticket.closed"
	TicketUpdated   Type = "ticket.updated"
	TicketDeleted   Type = "ticket.deleted"
	TicketCommented Type = "ticket.commented"
	AgentRegistered Type = "agent.registered"
	AgentUpdated    Type = "agent.updated"
	AgentRemoved    Type = "agent.removed"
)

// Assignment paths reported in Event.Via.
const (
	ViaAssign = "assign"
	ViaClaim  = "claim"
	ViaSweep  = "sweep"
)

type Event struct {
	Type     Type               `json:"event"`
	TicketID string             `json:"ticket_id,omitempty"`
	AgentID  string             `json:"agent_id,omitempty"`
	Status   model.TicketStatus `json:"status,omitempty"`
	Priority model.Priority     `json:"priority,omitempty"`
	Via      string             `json:"via,omitempty"`
	At       time.Time          `json:"at"`

	// Ticket is a snapshot taken after the mutation; nil for agent events
	// and deletions.
	Ticket *model.Ticket `json:"ticket,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every sink, joining their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one structured record per event.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, e Event) error {
	attrs := []any{slog.String("event", string(e.Type))}
	if e.TicketID != "" {
		attrs = append(attrs, slog.String("ticket_id", e.TicketID))
	}
	if e.AgentID != "" {
		attrs = append(attrs, slog.String("agent_id", e.AgentID))
	}
	if e.Status != "" {
		attrs = append(attrs, slog.String("status", string(e.Status)))
	}
	if e.Via != "" {
		attrs = append(attrs, slog.String("via", e.Via))
	}
	s.Logger.InfoContext(ctx, "dispatch event", attrs...)
	metrics.EventsPublishedTotal.WithLabelValues(string(e.Type)).Inc()
	return nil
}
