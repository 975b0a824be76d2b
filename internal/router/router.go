package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/dispatch-service/api"
	"github.com/psds-microservice/dispatch-service/internal/handler"
	"github.com/psds-microservice/dispatch-service/internal/metrics"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathMetrics = "/metrics"
	PathSwagger = "/swagger"
)

type Handlers struct {
	Health *handler.HealthHandler
	Ticket *handler.TicketHandler
	Agent  *handler.AgentHandler
	Queue  *handler.QueueHandler
}

func New(h Handlers, log *slog.Logger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), requestMetrics())
	r.GET(PathHealth, h.Health.Health)
	r.GET(PathReady, h.Health.Ready)
	r.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tickets", h.Ticket.Submit)
		v1.GET("/tickets", h.Ticket.List)
		v1.GET("/tickets/:id", h.Ticket.Get)
		v1.PUT("/tickets/:id", h.Ticket.Update)
		v1.DELETE("/tickets/:id", h.Ticket.Delete)
		v1.POST("/tickets/:id/assign", h.Ticket.Assign)
		v1.POST("/tickets/:id/claim", h.Ticket.Claim)
		v1.POST("/tickets/:id/start", h.Ticket.Start)
		v1.POST("/tickets/:id/release", h.Ticket.Release)
		v1.POST("/tickets/:id/close", h.Ticket.Close)
		v1.POST("/tickets/:id/enqueue", h.Ticket.Enqueue)
		v1.POST("/tickets/:id/comments", h.Ticket.AddComment)

		v1.GET("/queue", h.Queue.List)
		v1.GET("/queue/:id", h.Queue.Position)
		v1.POST("/queue/sweep", h.Queue.Sweep)

		v1.POST("/agents", h.Agent.Register)
		v1.GET("/agents", h.Agent.List)
		v1.GET("/agents/load", h.Agent.Load)
		v1.GET("/agents/:id", h.Agent.Get)
		v1.PUT("/agents/:id", h.Agent.Update)
		v1.DELETE("/agents/:id", h.Agent.Remove)
		v1.PUT("/agents/:id/status", h.Agent.SetStatus)
		v1.PUT("/agents/:id/capacity", h.Agent.SetCapacity)
		v1.PUT("/agents/:id/shift", h.Agent.SetShift)
		v1.DELETE("/agents/:id/shift", h.Agent.ClearShift)
	}

	return r
}
