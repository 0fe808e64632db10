package ingest

import (
	"container/list"
	"sync"
)

// dedupRing is an in-memory LRU of the last capacity activity IRIs
// (§4.F: "LRU of last 8k activity IRIs, in-memory only"). O(1) per
// operation, as required by §5.
type dedupRing struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupRing(capacity int) *dedupRing {
	return &dedupRing{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// seen reports whether id was already recorded, and records it if not.
func (d *dedupRing) seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[id]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(id)
	d.index[id] = el
	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.index, oldest.Value.(string))
		}
	}
	return false
}

const dedupCapacity = 8000
