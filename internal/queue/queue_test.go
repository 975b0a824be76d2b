package queue_test

import (
	"testing"
	"time"

	"github.com/psds-microservice/dispatch-service/internal/model"
	"github.com/psds-microservice/dispatch-service/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

func entry(id string, p model.Priority, offset time.Duration, seq uint64) queue.Entry {
	return queue.Entry{TicketID: id, Priority: p, EnqueuedAt: base.Add(offset), Seq: seq}
}

func ids(entries []queue.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.TicketID)
	}
	return out
}

func TestOrdering(t *testing.T) {
	q := queue.New()
	q.Enqueue(entry("t1", model.PriorityHigh, 0, 1))
	q.Enqueue(entry("t2", model.PriorityLow, time.Second, 2))
	q.Enqueue(entry("t3", model.PriorityHigh, 2*time.Second, 3))
	q.Enqueue(entry("t4", model.PriorityMedium, 3*time.Second, 4))

	assert.Equal(t, []string{"t1", "t3", "t4", "t2"}, ids(q.Entries()))
}

func TestEqualTimestampsFallBackToArrivalSequence(t *testing.T) {
	q := queue.New()
	q.Enqueue(entry("b", model.PriorityMedium, 0, 2))
	q.Enqueue(entry("a", model.PriorityMedium, 0, 1))
	q.Enqueue(entry("c", model.PriorityMedium, 0, 3))

	assert.Equal(t, []string{"a", "b", "c"}, ids(q.Entries()))
}

func TestNextPeeks(t *testing.T) {
	q := queue.New()
	_, ok := q.Next()
	assert.False(t, ok)

	q.Enqueue(entry("t1", model.PriorityLow, 0, 1))
	first, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "t1", first.TicketID)

	again, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueIsUnique(t *testing.T) {
	q := queue.New()
	assert.True(t, q.Enqueue(entry("t1", model.PriorityLow, 0, 1)))
	assert.False(t, q.Enqueue(entry("t1", model.PriorityHigh, 0, 9)))
	assert.Equal(t, 1, q.Len())

	head, _ := q.Next()
	assert.Equal(t, model.PriorityLow, head.Priority)
}

func TestRemove(t *testing.T) {
	q := queue.New()
	q.Enqueue(entry("t1", model.PriorityHigh, 0, 1))
	q.Enqueue(entry("t2", model.PriorityHigh, time.Second, 2))

	assert.True(t, q.Remove("t1"))
	assert.False(t, q.Remove("t1"))
	assert.False(t, q.Contains("t1"))
	assert.Equal(t, []string{"t2"}, ids(q.Entries()))
	assert.Equal(t, -1, q.Position("t1"))
	assert.Equal(t, 0, q.Position("t2"))
}

func TestReenqueueKeepsOriginalRank(t *testing.T) {
	q := queue.New()
	early := entry("early", model.PriorityMedium, 0, 1)
	q.Enqueue(early)
	q.Enqueue(entry("late", model.PriorityMedium, time.Minute, 2))

	q.Remove("early")
	q.Enqueue(entry("later", model.PriorityMedium, 2*time.Minute, 3))
	q.Enqueue(early)

	assert.Equal(t, []string{"early", "late", "later"}, ids(q.Entries()))
}

func TestEntriesIsACopy(t *testing.T) {
	q := queue.New()
	q.Enqueue(entry("t1", model.PriorityHigh, 0, 1))

	entries := q.Entries()
	entries[0].TicketID = "mutated"

	head, _ := q.Next()
	assert.Equal(t, "t1", head.TicketID)
}
