package sessions

import (
	"container/heap"
	"math/rand"
	"sync"
	"time"
)

// WorkQueue holds sessions waiting for their next sync, ordered by ready time
type WorkQueue interface {
	// Enqueue schedules a session after delay. An existing entry only moves earlier.
	Enqueue(id SessionID, delay time.Duration)

	// Dequeue removes and returns the next ready session
	// Returns (id, true) if an item is ready, ("", false) otherwise
	Dequeue() (SessionID, bool)

	// Remove drops a session from the queue
	Remove(id SessionID)

	// Len returns the number of queued sessions
	Len() int

	// NextReadyIn returns the time until the earliest item is ready
	NextReadyIn() (time.Duration, bool)

	// Wait signals when the queue changed
	Wait() <-chan struct{}
}

type workQueue struct {
	mu       sync.Mutex
	items    *readyHeap
	index    map[SessionID]*queuedSession
	notifyCh chan struct{}
	now      func() time.Time
}

type queuedSession struct {
	id      SessionID
	readyAt time.Time
	index   int
}

// readyHeap orders queued sessions by readyAt, earliest first
type readyHeap []*queuedSession

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x interface{}) {
	item := x.(*queuedSession)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// NewWorkQueue creates a new work queue
func NewWorkQueue() WorkQueue {
	items := &readyHeap{}
	heap.Init(items)

	return &workQueue{
		items:    items,
		index:    make(map[SessionID]*queuedSession),
		notifyCh: make(chan struct{}, 1),
		now:      time.Now,
	}
}

func (wq *workQueue) Enqueue(id SessionID, delay time.Duration) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	readyAt := wq.now().Add(delay)

	if item, ok := wq.index[id]; ok {
		if readyAt.Before(item.readyAt) {
			item.readyAt = readyAt
			heap.Fix(wq.items, item.index)
		}
		wq.notify()
		return
	}

	item := &queuedSession{id: id, readyAt: readyAt}
	heap.Push(wq.items, item)
	wq.index[id] = item
	wq.notify()
}

func (wq *workQueue) Dequeue() (SessionID, bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.items.Len() == 0 {
		return "", false
	}

	item := (*wq.items)[0]
	if wq.now().Before(item.readyAt) {
		return "", false
	}

	heap.Pop(wq.items)
	delete(wq.index, item.id)
	return item.id, true
}

func (wq *workQueue) Remove(id SessionID) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	item, ok := wq.index[id]
	if !ok {
		return
	}
	heap.Remove(wq.items, item.index)
	delete(wq.index, id)
}

func (wq *workQueue) Len() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.items.Len()
}

func (wq *workQueue) NextReadyIn() (time.Duration, bool) {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.items.Len() == 0 {
		return 0, false
	}
	d := (*wq.items)[0].readyAt.Sub(wq.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (wq *workQueue) Wait() <-chan struct{} {
	return wq.notifyCh
}

func (wq *workQueue) notify() {
	select {
	case wq.notifyCh <- struct{}{}:
	default:
	}
}

var (
	jitterMu   sync.Mutex
	jitterRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Jitter spreads a duration by up to ±jitterFraction (clamped to [0, 1])
func Jitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}

	jitterMu.Lock()
	r := jitterRand.Float64()
	jitterMu.Unlock()

	multiplier := 1.0 + (r*jitterFraction)*2.0 - jitterFraction
	return time.Duration(float64(duration) * multiplier)
}

// ExponentialBackoff returns baseDelay doubled attempt times, capped at maxDelay, with ±25% jitter
func ExponentialBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay
	for i := 0; i < attempt && delay < maxDelay; i++ {
		delay <<= 1
	}
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	return Jitter(delay, 0.25)
}
