package cacher

import (
	"container/heap"
	"fmt"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// TieBreak selects which of two equally important requests starts first
type TieBreak string

// Tie-break orders
const (
	TieBreakNewest TieBreak = "newest"
	TieBreakOldest TieBreak = "oldest"
)

// ParseTieBreak converts a config string into a TieBreak
func ParseTieBreak(s string) (TieBreak, error) {
	switch t := TieBreak(s); t {
	case TieBreakNewest, TieBreakOldest:
		return t, nil
	case "":
		return TieBreakNewest, nil
	default:
		return "", fmt.Errorf("%w: tie break %q", domain.ErrInvalidInput, s)
	}
}

type queueItem struct {
	req   *pendingRequest
	seq   uint64
	index int
}

// requestHeap implements heap.Interface in admission order
type requestHeap struct {
	items       []*queueItem
	newestFirst bool
}

func (h *requestHeap) Len() int { return len(h.items) }

func (h *requestHeap) Less(i, j int) bool {
	return h.before(h.items[i], h.items[j])
}

// before reports whether a is admitted ahead of b
func (h *requestHeap) before(a, b *queueItem) bool {
	if a.req.high != b.req.high {
		return a.req.high
	}
	if a.req.importance != b.req.importance {
		return a.req.importance > b.req.importance
	}
	if !a.req.enqueuedAt.Equal(b.req.enqueuedAt) {
		if h.newestFirst {
			return a.req.enqueuedAt.After(b.req.enqueuedAt)
		}
		return a.req.enqueuedAt.Before(b.req.enqueuedAt)
	}
	if h.newestFirst {
		return a.seq > b.seq
	}
	return a.seq < b.seq
}

func (h *requestHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *requestHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *requestHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// requestQueue is the bounded priority queue of requests not yet started.
// Capacity applies to normal-priority requests only.
type requestQueue struct {
	heap     *requestHeap
	byKey    map[domain.CacheKey]*queueItem
	capacity int
	normal   int
	seq      uint64
}

func newRequestQueue(capacity int, tieBreak TieBreak) *requestQueue {
	return &requestQueue{
		heap:     &requestHeap{newestFirst: tieBreak != TieBreakOldest},
		byKey:    make(map[domain.CacheKey]*queueItem),
		capacity: capacity,
	}
}

// push adds req. When the normal tier is full, the lowest-importance queued
// normal request is displaced and returned, but only if req is strictly more
// important; otherwise ErrQueueFull.
func (q *requestQueue) push(req *pendingRequest) (*pendingRequest, error) {
	if _, ok := q.byKey[req.key]; ok {
		return nil, fmt.Errorf("%w: %s already queued", domain.ErrInvalidInput, req.key)
	}

	var displaced *pendingRequest
	if !req.high && q.capacity > 0 && q.normal >= q.capacity {
		victim := q.last(false)
		if victim == nil || req.importance <= victim.req.importance {
			return nil, domain.ErrQueueFull
		}
		displaced = q.removeItem(victim)
	}

	q.seq++
	item := &queueItem{req: req, seq: q.seq}
	heap.Push(q.heap, item)
	q.byKey[req.key] = item
	if !req.high {
		q.normal++
	}
	return displaced, nil
}

// last returns the item admitted last among the given tier
func (q *requestQueue) last(high bool) *queueItem {
	var victim *queueItem
	for _, item := range q.heap.items {
		if item.req.high != high {
			continue
		}
		if victim == nil || q.heap.before(victim, item) {
			victim = item
		}
	}
	return victim
}

func (q *requestQueue) peek() *pendingRequest {
	if len(q.heap.items) == 0 {
		return nil
	}
	return q.heap.items[0].req
}

func (q *requestQueue) pop() *pendingRequest {
	if len(q.heap.items) == 0 {
		return nil
	}
	item := heap.Pop(q.heap).(*queueItem)
	q.forget(item)
	return item.req
}

// remove drops the queued request for key, if any
func (q *requestQueue) remove(key domain.CacheKey) *pendingRequest {
	item, ok := q.byKey[key]
	if !ok {
		return nil
	}
	return q.removeItem(item)
}

func (q *requestQueue) removeItem(item *queueItem) *pendingRequest {
	heap.Remove(q.heap, item.index)
	q.forget(item)
	return item.req
}

func (q *requestQueue) forget(item *queueItem) {
	delete(q.byKey, item.req.key)
	if !item.req.high {
		q.normal--
	}
}

// promote raises a queued request to high priority and at least importance.
// Returns false if key is not queued.
func (q *requestQueue) promote(key domain.CacheKey, importance domain.Importance) bool {
	item, ok := q.byKey[key]
	if !ok {
		return false
	}
	if !item.req.high {
		item.req.high = true
		q.normal--
	}
	if importance > item.req.importance {
		item.req.importance = importance
	}
	heap.Fix(q.heap, item.index)
	return true
}

func (q *requestQueue) contains(key domain.CacheKey) bool {
	_, ok := q.byKey[key]
	return ok
}

func (q *requestQueue) len() int {
	return len(q.heap.items)
}

func (q *requestQueue) highLen() int {
	return len(q.heap.items) - q.normal
}

// ordered returns the queued requests in admission order
func (q *requestQueue) ordered() []*pendingRequest {
	clone := &requestHeap{
		items:       make([]*queueItem, len(q.heap.items)),
		newestFirst: q.heap.newestFirst,
	}
	for i, item := range q.heap.items {
		c := *item
		clone.items[i] = &c
	}
	out := make([]*pendingRequest, 0, len(clone.items))
	for clone.Len() > 0 {
		out = append(out, heap.Pop(clone).(*queueItem).req)
	}
	return out
}
