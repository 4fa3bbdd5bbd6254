package tiling

import "fmt"

// PendingStep identifies the work item occupying one batch slot.
type PendingStep struct {
	Tile         int
	Augmentation Augmentation

	// Padding marks a dummy tile added to fill the final batch.
	Padding bool
}

// PendingQueue is a fixed-capacity FIFO ring buffer correlating submitted
// batch slots with the steps that filled them. Entries are pushed while a
// batch fills and popped, in the same order, while its results drain.
type PendingQueue struct {
	entries []PendingStep
	head    int
	length  int
}

// NewPendingQueue returns an empty queue holding at most capacity entries.
func NewPendingQueue(capacity int) *PendingQueue {
	return &PendingQueue{entries: make([]PendingStep, capacity)}
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len() int { return q.length }

// Cap returns the queue capacity.
func (q *PendingQueue) Cap() int { return len(q.entries) }

// Push appends an entry. It fails when the queue is full, which means
// draining fell behind submission.
func (q *PendingQueue) Push(s PendingStep) error {
	if q.length == len(q.entries) {
		return fmt.Errorf("pending queue full at %d entries", q.length)
	}
	q.entries[(q.head+q.length)%len(q.entries)] = s
	q.length++
	return nil
}

// Pop removes and returns the oldest entry.
func (q *PendingQueue) Pop() (PendingStep, error) {
	if q.length == 0 {
		return PendingStep{}, fmt.Errorf("pending queue empty")
	}
	s := q.entries[q.head]
	q.head = (q.head + 1) % len(q.entries)
	q.length--
	return s, nil
}

// Reset drops every entry.
func (q *PendingQueue) Reset() {
	q.head = 0
	q.length = 0
}
