package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/dispatch-service/internal/dispatch"
)

type QueueHandler struct {
	engine *dispatch.Engine
}

func NewQueueHandler(engine *dispatch.Engine) *QueueHandler {
	return &QueueHandler{engine: engine}
}

func (h *QueueHandler) List(c *gin.Context) {
	q := h.engine.ListQueue()
	c.JSON(http.StatusOK, gin.H{"queue": q, "length": len(q)})
}

// Position reports where one ticket stands in the queue.
func (h *QueueHandler) Position(c *gin.Context) {
	q, err := h.engine.QueuePosition(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// Sweep runs one auto-assignment pass on demand.
func (h *QueueHandler) Sweep(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Sweep(c.Request.Context()))
}
