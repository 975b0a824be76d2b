package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/metrics"
)

var (
	ErrDropped = errors.New("events: buffer full, event dropped")
	ErrClosed  = errors.New("events: notifier closed")
)

// Notifier delivers events to a sink from a single background goroutine so
// publishers never wait on the network. Order is preserved.
type Notifier struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

// NewNotifier starts a notifier with the given buffer size. Each delivery is
// bounded by timeout.
func NewNotifier(sink Sink, buffer int, timeout time.Duration, logger *slog.Logger) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	n := &Notifier{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Publish enqueues e without blocking. A full buffer drops the event.
func (n *Notifier) Publish(_ context.Context, e Event) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		metrics.EventsDroppedTotal.Inc()
		return ErrClosed
	}
	select {
	case n.ch <- e:
		return nil
	default:
		metrics.EventsDroppedTotal.Inc()
		n.logger.Warn("event dropped, notifier buffer full", "event", e.Type, "ticket_id", e.TicketID)
		return ErrDropped
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for e := range n.ch {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.sink.Publish(ctx, e); err != nil {
			metrics.EventSinkErrorsTotal.Inc()
			n.logger.Warn("event delivery failed", "event", e.Type, "ticket_id", e.TicketID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until buffered ones are delivered.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	n.mu.Unlock()
	<-n.done
	return nil
}
