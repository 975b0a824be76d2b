package model

import (
	"time"

	"github.com/psds-microservice/dispatch-service/internal/shift"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusQueued     TicketStatus = "QUEUED"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Held reports whether a ticket in this status occupies an agent slot.
func (s TicketStatus) Held() bool {
	return s == TicketStatusAssigned || s == TicketStatusInProgress
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusQueued, TicketStatusAssigned, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Weight orders the queue: higher weight is served first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func (p Priority) Valid() bool {
	return p.Weight() > 0
}

type AgentRole string

const (
	AgentRoleSupport    AgentRole = "SUPPORT"
	AgentRoleSupervisor AgentRole = "SUPERVISOR"
	AgentRoleAdmin      AgentRole = "ADMIN"
)

func (r AgentRole) Valid() bool {
	return r == AgentRoleSupport || r == AgentRoleSupervisor || r == AgentRoleAdmin
}

type Ticket struct {
	ID              string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title           string       `gorm:"type:varchar(255);not null" json:"title"`
	Description     string       `gorm:"type:text" json:"description,omitempty"`
	Priority        Priority     `gorm:"type:varchar(16);index;not null" json:"priority"`
	Status          TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	DueDate         time.Time    `gorm:"not null" json:"due_date"`
	EstimatedHours  float64      `gorm:"not null" json:"estimated_hours"`
	AssignedAgentID *string      `gorm:"type:varchar(36);index" json:"assigned_agent_id,omitempty"`

	// EnqueuedAt and QueueSeq record the ticket's original place in the
	// queue; both survive release so a re-queued ticket keeps its rank.
	EnqueuedAt *time.Time `json:"enqueued_at,omitempty"`
	QueueSeq   uint64     `json:"-"`

	Comments []Comment `gorm:"foreignKey:TicketID" json:"comments,omitempty"`

	// Timestamps come from the dispatch clock, not from gorm.
	CreatedAt time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// AgentID returns the assigned agent or "".
func (t *Ticket) AgentID() string {
	if t.AssignedAgentID == nil {
		return ""
	}
	return *t.AssignedAgentID
}

// TimeSpent is the time between creation and closing; zero for open tickets.
func (t *Ticket) TimeSpent() time.Duration {
	if t.ClosedAt == nil {
		return 0
	}
	return t.ClosedAt.Sub(t.CreatedAt)
}

func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.AssignedAgentID != nil {
		id := *t.AssignedAgentID
		c.AssignedAgentID = &id
	}
	if t.EnqueuedAt != nil {
		at := *t.EnqueuedAt
		c.EnqueuedAt = &at
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		c.ClosedAt = &at
	}
	c.Comments = append([]Comment(nil), t.Comments...)
	return &c
}

type Comment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TicketID  string    `gorm:"type:varchar(36);index;not null" json:"ticket_id"`
	AuthorID  string    `gorm:"type:varchar(36);not null" json:"author_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (Comment) TableName() string { return "ticket_comments" }

type Agent struct {
	ID          string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string       `gorm:"type:varchar(255);not null" json:"name"`
	Email       string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role        AgentRole    `gorm:"type:varchar(32);not null" json:"role"`
	IsOnline    bool         `gorm:"not null" json:"is_online"`
	IsAvailable bool         `gorm:"not null" json:"is_available"`
	Capacity    int          `gorm:"not null" json:"capacity"`
	Shift       *shift.Shift `gorm:"serializer:json;type:text" json:"shift,omitempty"`

	// CurrentTickets is derived from ticket assignments and rebuilt on load.
	CurrentTickets map[string]struct{} `gorm:"-" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (a *Agent) Load() int {
	return len(a.CurrentTickets)
}

func (a *Agent) Holds(ticketID string) bool {
	_, ok := a.CurrentTickets[ticketID]
	return ok
}

// AcceptsWork reports whether the agent's flags allow new assignments.
func (a *Agent) AcceptsWork() bool {
	return a.IsOnline && a.IsAvailable
}

func (a *Agent) Clone() *Agent {
	c := *a
	c.Shift = a.Shift.Clone()
	c.CurrentTickets = make(map[string]struct{}, len(a.CurrentTickets))
	for id := range a.CurrentTickets {
		c.CurrentTickets[id] = struct{}{}
	}
	return &c
}
