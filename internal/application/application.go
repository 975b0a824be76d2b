package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/dispatch-service/internal/config"
	"github.com/psds-microservice/dispatch-service/internal/handler"
	"github.com/psds-microservice/dispatch-service/internal/router"
)

// API is the HTTP server around a restored dispatch engine (mode api).
type API struct {
	rt      *Runtime
	httpSrv *http.Server
}

func NewAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	log := NewLogger(cfg).Logger
	rt, err := Bootstrap(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := router.New(router.Handlers{
		Health: handler.NewHealthHandler(ServiceName, rt.Store),
		Ticket: handler.NewTicketHandler(rt.Engine, rt.Store),
		Agent:  handler.NewAgentHandler(rt.Engine),
		Queue:  handler.NewQueueHandler(rt.Engine),
	}, log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &API{rt: rt, httpSrv: httpSrv}, nil
}

// Run serves HTTP and runs the periodic sweep until ctx is cancelled, then
// shuts both down and drains pending events.
func (a *API) Run(ctx context.Context) error {
	log := a.rt.Logger
	cfg := a.rt.Config
	host := cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + cfg.HTTPPort
	log.Info("HTTP server listening", "addr", a.httpSrv.Addr)
	log.Info("endpoints",
		"swagger", base+router.PathSwagger,
		"health", base+router.PathHealth,
		"ready", base+router.PathReady,
		"metrics", base+router.PathMetrics,
		"api", base+"/api/v1/",
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if !sweepEnabled(cfg) {
			log.Info("periodic sweep disabled", "auto_assign", cfg.Dispatch.AutoAssign, "interval", cfg.Dispatch.SweepInterval)
			return
		}
		log.Info("periodic sweep enabled", "interval", cfg.Dispatch.SweepInterval)
		a.rt.Engine.Run(sweepCtx, cfg.Dispatch.SweepInterval)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http: %w", err)
		}
	}

	stopSweep()
	<-sweepDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.rt.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close: %w", err)
	}
	log.Info("shutdown complete")
	return runErr
}

// sweepEnabled reports whether the periodic sweep should run. It follows
// DISPATCH_AUTO_ASSIGN; manual sweeps stay available either way.
func sweepEnabled(cfg *config.Config) bool {
	return cfg.Dispatch.AutoAssign && cfg.Dispatch.SweepInterval > 0
}
