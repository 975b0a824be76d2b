package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/store"
)

type TicketHandler struct {
	engine *dispatch.Engine
	list   store.TicketLister
}

func NewTicketHandler(engine *dispatch.Engine, list store.TicketLister) *TicketHandler {
	return &TicketHandler{engine: engine, list: list}
}

type submitTicketRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Priority       model.Priority `json:"priority"`
	DueDate        time.Time      `json:"due_date"`
	EstimatedHours float64        `json:"estimated_hours"`
	AgentID        string         `json:"agent_id"`
}

func (h *TicketHandler) Submit(c *gin.Context) {
	var req submitTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	t, err := h.engine.Submit(c.Request.Context(), dispatch.SubmitRequest{
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		AgentID:        req.AgentID,
	})
	if err != nil {
		if t == nil {
			writeError(c, err)
			return
		}
		// The ticket exists but the direct assignment failed.
		body := errorBody(err)
		body["ticket"] = t
		c.JSON(statusOf(err), body)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.engine.Ticket(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	filter := dispatch.TicketFilter{
		Status:   model.TicketStatus(c.Query("status")),
		Priority: model.Priority(c.Query("priority")),
		AgentID:  c.Query("agent_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status", "kind": "validation_error"})
		return
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority", "kind": "validation_error"})
		return
	}

	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.list.ListTickets(c.Request.Context(), filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

type updateTicketRequest struct {
	Title          *string         `json:"title,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Priority       *model.Priority `json:"priority,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
}

func (h *TicketHandler) Update(c *gin.Context) {
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if req == (updateTicketRequest{}) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no changes", "kind": "validation_error"})
		return
	}
	t, err := h.engine.UpdateTicket(c.Request.Context(), c.Param("id"), dispatch.TicketUpdate{
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Delete(c *gin.Context) {
	if err := h.engine.DeleteTicket(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type agentRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *TicketHandler) Assign(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.Assign(c.Request.Context(), c.Param("id"), req.AgentID))
}

func (h *TicketHandler) Claim(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.Claim(c.Request.Context(), c.Param("id"), req.AgentID))
}

func (h *TicketHandler) Start(c *gin.Context) {
	h.respond(c)(h.engine.Start(c.Request.Context(), c.Param("id")))
}

func (h *TicketHandler) Release(c *gin.Context) {
	h.respond(c)(h.engine.Release(c.Request.Context(), c.Param("id")))
}

func (h *TicketHandler) Close(c *gin.Context) {
	h.respond(c)(h.engine.Close(c.Request.Context(), c.Param("id")))
}

func (h *TicketHandler) Enqueue(c *gin.Context) {
	h.respond(c)(h.engine.Enqueue(c.Request.Context(), c.Param("id")))
}

type commentRequest struct {
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}

func (h *TicketHandler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	comment, err := h.engine.AddComment(c.Request.Context(), c.Param("id"), req.AuthorID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// respond writes the outcome of a state operation.
func (h *TicketHandler) respond(c *gin.Context) func(*model.Ticket, error) {
	return func(t *model.Ticket, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
