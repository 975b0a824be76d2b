package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/model"
)

// Client pushes ticket documents to search-service for indexing.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client. With an empty baseURL every call is a no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// TicketDocument is the body of POST /search/index/ticket.
type TicketDocument struct {
	TicketID        string    `json:"ticket_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Priority        string    `json:"priority"`
	Status          string    `json:"status"`
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	DueDate         time.Time `json:"due_date"`
	Deleted         bool      `json:"deleted,omitempty"`
}

func documentOf(t *model.Ticket) TicketDocument {
	return TicketDocument{
		TicketID:        t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        string(t.Priority),
		Status:          string(t.Status),
		AssignedAgentID: t.AgentID(),
		DueDate:         t.DueDate,
	}
}

// IndexTicket sends one ticket to search-service.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) error {
	if c.baseURL == "" {
		return nil
	}
	return c.post(ctx, documentOf(t))
}

// Publish indexes the ticket snapshot carried by ticket events and marks
// deleted tickets. Agent events are ignored.
func (c *Client) Publish(ctx context.Context, e events.Event) error {
	if c.baseURL == "" {
		return nil
	}
	switch {
	case e.Type == events.TicketDeleted:
		return c.post(ctx, TicketDocument{TicketID: e.TicketID, Deleted: true})
	case e.Ticket != nil:
		return c.IndexTicket(ctx, e.Ticket)
	}
	return nil
}

func (c *Client) post(ctx context.Context, doc TicketDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("searchindex: status %d for ticket %s", resp.StatusCode, doc.TicketID)
	}
	return nil
}
