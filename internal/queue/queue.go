// Package queue holds unassigned tickets in dispatch order.
package queue

import (
	"sort"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/model"
)

// Entry is a ticket's place in the queue.
type Entry struct {
	TicketID   string         `json:"ticket_id"`
	Priority   model.Priority `json:"priority"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	// Seq is the arrival counter; it orders entries with identical
	// EnqueuedAt timestamps.
	Seq uint64 `json:"seq"`
}

// Less reports whether a is served before b: higher priority weight first,
// then earlier arrival.
func Less(a, b Entry) bool {
	if wa, wb := a.Priority.Weight(), b.Priority.Weight(); wa != wb {
		return wa > wb
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.TicketID < b.TicketID
}

// Queue is an ordered set of entries keyed by ticket id. It is not safe for
// concurrent use; the dispatch engine guards it.
type Queue struct {
	entries []Entry
	index   map[string]struct{}
}

func New() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Enqueue inserts e at its ordered position. It returns false, leaving the
// queue unchanged, when the ticket is already queued.
func (q *Queue) Enqueue(e Entry) bool {
	if _, ok := q.index[e.TicketID]; ok {
		return false
	}
	i := sort.Search(len(q.entries), func(i int) bool {
		return Less(e, q.entries[i])
	})
	q.entries = append(q.entries, Entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	q.index[e.TicketID] = struct{}{}
	return true
}

// Next returns the head of the queue without removing it. Entries leave the
// queue only through Remove, once their ticket has been assigned or closed.
func (q *Queue) Next() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Remove deletes the ticket's entry and reports whether it was present.
func (q *Queue) Remove(ticketID string) bool {
	if _, ok := q.index[ticketID]; !ok {
		return false
	}
	delete(q.index, ticketID)
	for i, e := range q.entries {
		if e.TicketID == ticketID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) Contains(ticketID string) bool {
	_, ok := q.index[ticketID]
	return ok
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queue in dispatch order.
func (q *Queue) Entries() []Entry {
	return append([]Entry(nil), q.entries...)
}

// Position returns the zero-based position of the ticket, or -1.
func (q *Queue) Position(ticketID string) int {
	for i, e := range q.entries {
		if e.TicketID == ticketID {
			return i
		}
	}
	return -1
}
