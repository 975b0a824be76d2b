package dispatch_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/dispatch"
	"github.com/psds-microservice/dispatch-service/internal/errs"
	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentClaimsOnOneTicket(t *testing.T) {
	h := newHarness(t, dispatch.WithAutoAssign(false))
	const agents = 24
	for i := range agents {
		h.agent(t, fmt.Sprintf("agent-%02d", i), 3)
	}
	tk := h.submit(t, "Hot ticket", model.PriorityHigh, time.Hour)

	var wins, lost atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range agents {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			<-start
			_, err := h.Claim(ctx, tk.ID, agentID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errs.ErrAlreadyAssigned):
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("agent-%02d", i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(agents-1), lost.Load())
	checkInvariants(t, h.Engine)
}

// Assign and Claim race on one ticket, each caller with its own agent.
func TestConcurrentAssignAndClaimOnOneTicket(t *testing.T) {
	h := newHarness(t, dispatch.WithAutoAssign(false))
	const agents = 24
	for i := range agents {
		h.agent(t, fmt.Sprintf("agent-%02d", i), 3)
	}
	tk := h.submit(t, "Contested ticket", model.PriorityHigh, time.Hour)

	var wins, lost atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agentID := fmt.Sprintf("agent-%02d", i)
			<-start
			var err error
			if i%2 == 0 {
				_, err = h.Assign(ctx, tk.ID, agentID)
			} else {
				_, err = h.Claim(ctx, tk.ID, agentID)
			}
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errs.ErrAlreadyAssigned):
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(agents-1), lost.Load())
	held := 0
	for i := range agents {
		held += h.load(t, fmt.Sprintf("agent-%02d", i))
	}
	assert.Equal(t, 1, held)
	assert.Equal(t, model.TicketStatusAssigned, h.status(t, tk.ID))
	checkInvariants(t, h.Engine)
}

func TestConcurrentClaimsAgainstOneAgent(t *testing.T) {
	h := newHarness(t, dispatch.WithAutoAssign(false))
	h.agent(t, "solo", 3)
	const tickets = 30
	ids := make([]string, tickets)
	for i := range tickets {
		ids[i] = h.submit(t, fmt.Sprintf("Ticket %02d", i), model.PriorityMedium, time.Hour).ID
	}

	var wins, full atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(ticketID string) {
			defer wg.Done()
			<-start
			_, err := h.Claim(ctx, ticketID, "solo")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errs.ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(3), wins.Load())
	assert.Equal(t, int32(tickets-3), full.Load())
	assert.Equal(t, 3, h.load(t, "solo"))
	assert.Equal(t, tickets-3, h.QueueLen())
	checkInvariants(t, h.Engine)
}

// Claims, assigns, sweeps, closes and releases race over a shared pool.
func TestMixedOperationsKeepInvariants(t *testing.T) {
	h := newHarness(t)
	for i := range 4 {
		h.agent(t, fmt.Sprintf("agent-%d", i), 2, offline)
	}
	var ids []string
	for i := range 40 {
		ids = append(ids, h.submit(t, fmt.Sprintf("Pool ticket %02d", i), model.PriorityLow, time.Hour).ID)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			agentID := fmt.Sprintf("agent-%d", w%4)
			for i, id := range ids {
				switch (i + w) % 5 {
				case 0:
					_, _ = h.Claim(ctx, id, agentID)
				case 1:
					_, _ = h.Assign(ctx, id, agentID)
				case 2:
					h.Sweep(ctx)
				case 3:
					_, _ = h.Close(ctx, id)
				case 4:
					_, _ = h.Release(ctx, id)
				}
				_ = h.AgentLoad()
				_ = h.ListQueue()
			}
		}(w)
	}
	online := true
	for i := range 4 {
		_, err := h.SetAgentStatus(ctx, fmt.Sprintf("agent-%d", i), &online, nil)
		require.NoError(t, err)
	}
	close(start)
	wg.Wait()

	checkInvariants(t, h.Engine)
	for _, l := range h.AgentLoad() {
		assert.LessOrEqual(t, l.Load, 2)
	}
}
