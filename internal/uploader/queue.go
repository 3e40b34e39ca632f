package uploader

import "sync"

// queue is a FIFO of log IDs with membership dedup: an ID already
// queued is not queued again until it has been popped. The mutex
// guards only the queue structure and is never held across I/O.
type queue struct {
	mu     sync.Mutex
	ids    []int64
	queued map[int64]struct{}
}

func newQueue() *queue {
	return &queue{queued: make(map[int64]struct{})}
}

// push appends the given IDs, skipping any already queued, and reports
// whether at least one ID was newly added.
func (q *queue) push(ids ...int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := false
	for _, id := range ids {
		if _, ok := q.queued[id]; ok {
			continue
		}
		q.queued[id] = struct{}{}
		q.ids = append(q.ids, id)
		added = true
	}
	return added
}

// pop removes and returns the oldest queued ID.
func (q *queue) pop() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	delete(q.queued, id)
	return id, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
