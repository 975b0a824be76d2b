// Package store persists dispatch state with gorm. It implements
// dispatch.Store and serves the paginated ticket listing.
package store

import (
	"context"
	"fmt"

	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketLister is the read side used by the HTTP listing.
type TicketLister interface {
	ListTickets(ctx context.Context, f dispatch.TicketFilter, limit, offset int) ([]model.Ticket, int64, error)
}

type Store struct {
	db *gorm.DB
}

var _ dispatch.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load returns every agent and ticket with its comments.
func (s *Store) Load(ctx context.Context) ([]model.Agent, []model.Ticket, error) {
	var agents []model.Agent
	if err := s.db.WithContext(ctx).Order("id").Find(&agents).Error; err != nil {
		return nil, nil, fmt.Errorf("load agents: %w", err)
	}
	var tickets []model.Ticket
	err := s.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Order("created_at, id").
		Find(&tickets).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load tickets: %w", err)
	}
	return agents, tickets, nil
}

// Commit applies ch in one transaction.
func (s *Store) Commit(ctx context.Context, ch dispatch.Changes) error {
	if ch.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit(clause.Associations).Session(&gorm.Session{})
		for _, a := range ch.Agents {
			if err := upsert.Create(a).Error; err != nil {
				return fmt.Errorf("save agent %s: %w", a.ID, err)
			}
		}
		for _, t := range ch.Tickets {
			if err := upsert.Create(t).Error; err != nil {
				return fmt.Errorf("save ticket %s: %w", t.ID, err)
			}
		}
		for _, c := range ch.Comments {
			if err := tx.Create(c).Error; err != nil {
				return fmt.Errorf("save comment %s: %w", c.ID, err)
			}
		}
		if len(ch.DeletedTickets) > 0 {
			if err := tx.Where("ticket_id IN ?", ch.DeletedTickets).Delete(&model.Comment{}).Error; err != nil {
				return fmt.Errorf("delete comments: %w", err)
			}
			if err := tx.Where("id IN ?", ch.DeletedTickets).Delete(&model.Ticket{}).Error; err != nil {
				return fmt.Errorf("delete tickets: %w", err)
			}
		}
		if len(ch.DeletedAgents) > 0 {
			if err := tx.Where("id IN ?", ch.DeletedAgents).Delete(&model.Agent{}).Error; err != nil {
				return fmt.Errorf("delete agents: %w", err)
			}
		}
		return nil
	})
}

// ListTickets returns one page of matching tickets, newest first, and the
// total number of matches.
func (s *Store) ListTickets(ctx context.Context, f dispatch.TicketFilter, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		tx = tx.Where("priority = ?", f.Priority)
	}
	if f.AgentID != "" {
		tx = tx.Where("assigned_agent_id = ?", f.AgentID)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
