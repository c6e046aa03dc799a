package store

import (
	"container/list"

	"github.com/Borislavv/go-ash-imgcache/model"
)

// tier is a recency ordered set of entries: the front is the most recently used one.
// Both tiers share *model.Entry pointers, a tier only owns its ordering and byte count.
type tier struct {
	lru   *list.List
	items map[string]*list.Element
	bytes int64
}

func newTier() *tier {
	return &tier{lru: list.New(), items: make(map[string]*list.Element)}
}

func (t *tier) len() int { return len(t.items) }

func (t *tier) get(key string) (*model.Entry, bool) {
	if el, ok := t.items[key]; ok {
		return el.Value.(*model.Entry), true
	}
	return nil, false
}

func (t *tier) pushFront(e *model.Entry) {
	if el, ok := t.items[e.Key]; ok {
		t.bytes -= el.Value.(*model.Entry).SizeBytes
		el.Value = e
		t.lru.MoveToFront(el)
	} else {
		t.items[e.Key] = t.lru.PushFront(e)
	}
	t.bytes += e.SizeBytes
}

func (t *tier) touch(key string) {
	if el, ok := t.items[key]; ok {
		t.lru.MoveToFront(el)
	}
}

func (t *tier) remove(key string) (*model.Entry, bool) {
	el, ok := t.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*model.Entry)
	t.lru.Remove(el)
	delete(t.items, key)
	t.bytes -= e.SizeBytes
	return e, true
}

// victim returns the least recently used entry. Entries at the back sharing the same
// access time are ordered by creation time and then by insertion sequence.
func (t *tier) victim() (*model.Entry, bool) {
	back := t.lru.Back()
	if back == nil {
		return nil, false
	}
	oldest := back.Value.(*model.Entry)
	for el := back.Prev(); el != nil; el = el.Prev() {
		e := el.Value.(*model.Entry)
		if !e.LastAccessedAt.Equal(oldest.LastAccessedAt) {
			break
		}
		if e.OlderThan(oldest) {
			oldest = e
		}
	}
	return oldest, true
}

func (t *tier) reset() {
	t.lru.Init()
	clear(t.items)
	t.bytes = 0
}
