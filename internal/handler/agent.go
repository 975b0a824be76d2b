package handler

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/shift"
)

type AgentHandler struct {
	engine *dispatch.Engine
}

func NewAgentHandler(engine *dispatch.Engine) *AgentHandler {
	return &AgentHandler{engine: engine}
}

type registerAgentRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        model.AgentRole `json:"role"`
	Capacity    int             `json:"capacity"`
	IsOnline    bool            `json:"is_online"`
	IsAvailable *bool           `json:"is_available"`
	Shift       *shift.Shift    `json:"shift"`
}

func (h *AgentHandler) Register(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	a, err := h.engine.RegisterAgent(c.Request.Context(), dispatch.NewAgent{
		ID:          req.ID,
		Name:        req.Name,
		Email:       req.Email,
		Role:        req.Role,
		Capacity:    req.Capacity,
		IsOnline:    req.IsOnline,
		IsAvailable: available,
		Shift:       req.Shift,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agentView(a))
}

func (h *AgentHandler) Get(c *gin.Context) {
	h.respond(c)(h.engine.Agent(c.Param("id")))
}

func (h *AgentHandler) List(c *gin.Context) {
	agents := h.engine.Agents()
	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h *AgentHandler) Load(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.engine.AgentLoad()})
}

type updateAgentRequest struct {
	Name  *string          `json:"name,omitempty"`
	Email *string          `json:"email,omitempty"`
	Role  *model.AgentRole `json:"role,omitempty"`
}

func (h *AgentHandler) Update(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.UpdateAgent(c.Request.Context(), c.Param("id"), dispatch.AgentUpdate{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}))
}

type statusRequest struct {
	IsOnline    *bool `json:"is_online"`
	IsAvailable *bool `json:"is_available"`
}

func (h *AgentHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.SetAgentStatus(c.Request.Context(), c.Param("id"), req.IsOnline, req.IsAvailable))
}

type capacityRequest struct {
	Capacity int `json:"capacity"`
}

func (h *AgentHandler) SetCapacity(c *gin.Context) {
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.SetCapacity(c.Request.Context(), c.Param("id"), req.Capacity))
}

func (h *AgentHandler) SetShift(c *gin.Context) {
	var s shift.Shift
	if err := c.ShouldBindJSON(&s); err != nil {
		writeBindError(c, err)
		return
	}
	h.respond(c)(h.engine.SetShift(c.Request.Context(), c.Param("id"), &s))
}

func (h *AgentHandler) ClearShift(c *gin.Context) {
	h.respond(c)(h.engine.SetShift(c.Request.Context(), c.Param("id"), nil))
}

func (h *AgentHandler) Remove(c *gin.Context) {
	if err := h.engine.RemoveAgent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AgentHandler) respond(c *gin.Context) func(*model.Agent, error) {
	return func(a *model.Agent, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, agentView(a))
	}
}

// agentResponse adds the derived workload to the agent record.
type agentResponse struct {
	*model.Agent
	Load           int      `json:"load"`
	CurrentTickets []string `json:"current_tickets"`
}

func agentView(a *model.Agent) agentResponse {
	ids := make([]string, 0, len(a.CurrentTickets))
	for id := range a.CurrentTickets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return agentResponse{Agent: a, Load: a.Load(), CurrentTickets: ids}
}
