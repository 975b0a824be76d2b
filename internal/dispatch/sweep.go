package dispatch

import (
	"context"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/events"
	"github.com/psds-microservice/dispatch-service/internal/metrics"
	"github.com/psds-microservice/dispatch-service/internal/model"
)

type Assignment struct {
	TicketID string `json:"ticket_id"`
	AgentID  string `json:"agent_id"`
}

// SweepResult reports one pass over the queue. Skipped tickets had no
// eligible agent; Failed tickets had one but the assignment errored.
type SweepResult struct {
	Assigned []Assignment `json:"assigned"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
}

// Sweep walks the queue in dispatch order and assigns each ticket to its
// first eligible agent. A ticket with no eligible agent stays in place
// without blocking the tickets behind it.
func (e *Engine) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	_ = e.write(func() error {
		res = e.sweepLocked(ctx, e.clock.Now())
		return nil
	})
	return res
}

func (e *Engine) sweepLocked(ctx context.Context, now time.Time) SweepResult {
	started := time.Now()
	defer func() {
		metrics.SweepsTotal.Inc()
		metrics.SweepDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	res := SweepResult{Assigned: []Assignment{}}
	for _, entry := range e.queue.Entries() {
		t, ok := e.tickets[entry.TicketID]
		if !ok || t.Status != model.TicketStatusQueued {
			e.logger.Warn("stale queue entry", "ticket_id", entry.TicketID)
			e.queue.Remove(entry.TicketID)
			continue
		}

		var target *model.Agent
		for a := range e.agents.FindEligible(t, now) {
			target = a
			break
		}
		if target == nil {
			res.Skipped++
			continue
		}

		if _, err := e.assignLocked(ctx, t.ID, target.ID, false, events.ViaSweep, now); err != nil {
			res.Failed++
			metrics.SweepFailuresTotal.Inc()
			e.logger.Warn("sweep assignment failed", "ticket_id", t.ID, "agent_id", target.ID, "error", err)
			continue
		}
		res.Assigned = append(res.Assigned, Assignment{TicketID: t.ID, AgentID: target.ID})
	}

	if len(res.Assigned) > 0 || res.Failed > 0 {
		e.logger.Debug("sweep finished", "assigned", len(res.Assigned), "skipped", res.Skipped, "failed", res.Failed)
	}
	return res
}

// Run sweeps on every tick of interval until ctx is done. A non-positive
// interval returns immediately.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := e.Sweep(ctx)
			if len(res.Assigned) > 0 {
				e.logger.Info("periodic sweep assigned tickets", "assigned", len(res.Assigned), "queued", res.Skipped)
			}
		}
	}
}
