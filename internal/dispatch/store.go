package dispatch

import (
	"context"

	"github.com/psds-microservice/dispatch-service/internal/model"
)

// Store is the durable record behind the engine. Commit must apply all of
// its changes atomically; the engine calls it inside its critical section
// and updates memory only after it succeeds.
type Store interface {
	Load(ctx context.Context) ([]model.Agent, []model.Ticket, error)
	Commit(ctx context.Context, ch Changes) error
}

// Changes is one atomic unit of persisted state. Upserts are applied
// before deletions.
type Changes struct {
	Agents         []*model.Agent
	Tickets        []*model.Ticket
	Comments       []*model.Comment
	DeletedTickets []string
	DeletedAgents  []string
}

func (c Changes) Empty() bool {
	return len(c.Agents) == 0 && len(c.Tickets) == 0 && len(c.Comments) == 0 &&
		len(c.DeletedTickets) == 0 && len(c.DeletedAgents) == 0
}

type nopStore struct{}

func (nopStore) Load(context.Context) ([]model.Agent, []model.Ticket, error) { return nil, nil, nil }
func (nopStore) Commit(context.Context, Changes) error                        { return nil }
