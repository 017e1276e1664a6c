// Package queue implements the per-guild pending track list.
package queue

import (
	"math/rand/v2"

	"github.com/keshon/lavaplayer/internal/music/track"
)

// Queue is an ordered list of pending tracks; insertion order is play order.
// It is not safe for concurrent use; the owning player's guild lock guards it.
type Queue struct {
	items []*track.Track
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends tracks to the end of the queue.
func (q *Queue) Enqueue(tracks ...*track.Track) {
	for _, t := range tracks {
		if t != nil {
			q.items = append(q.items, t)
		}
	}
}

// TryDequeue removes and returns the head of the queue.
func (q *Queue) TryDequeue() (*track.Track, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// Clear drops every pending track.
func (q *Queue) Clear() {
	q.items = nil
}

// Shuffle applies a uniform random permutation.
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Count returns the number of pending tracks.
func (q *Queue) Count() int {
	return len(q.items)
}

// Items returns a detached snapshot for display.
func (q *Queue) Items() []*track.Track {
	out := make([]*track.Track, len(q.items))
	for i, t := range q.items {
		out[i] = t.Clone()
	}
	return out
}
