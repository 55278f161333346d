package state

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry is the kind-agnostic view of a Table used by the watch engine.
type Registry interface {
	Kind() string
	Delete(uid string) bool
	Retain(keep map[string]struct{}) []string
	Len() int
}

var _ Registry = (*Table[Namespace])(nil)

// Table is the uid-keyed map of one resource kind. Writers are serialized by the table lock, readers receive copies.
type Table[T any] struct {
	kind  string
	newFn func(name, uid string) T

	mu    sync.RWMutex
	items map[string]*T
}

func NewTable[T any](kind string, newFn func(name, uid string) T) *Table[T] {
	return &Table[T]{
		kind:  kind,
		newFn: newFn,
		items: map[string]*T{},
	}
}

func (t *Table[T]) Kind() string {
	return t.kind
}

// GetOrCreate returns a copy of the object stored under uid, creating it from name and uid first when absent.
func (t *Table[T]) GetOrCreate(name, uid string) (T, bool) {
	var obj T
	created := t.Upsert(name, uid, func(o *T) {
		obj = *o
	})
	return obj, created
}

// Upsert looks up or creates the object stored under uid and applies fn to it while holding the write lock. It
// reports whether the object was created by this call.
func (t *Table[T]) Upsert(name, uid string, fn func(obj *T)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.items[uid]
	if !ok {
		o := t.newFn(name, uid)
		obj = &o
		t.items[uid] = obj
	}
	if fn != nil {
		fn(obj)
	}
	return !ok
}

func (t *Table[T]) Delete(uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[uid]; !ok {
		return false
	}
	delete(t.items, uid)
	return true
}

// Retain removes every object whose uid is not in keep and returns the removed uids.
func (t *Table[T]) Retain(keep map[string]struct{}) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for uid := range t.items {
		if _, ok := keep[uid]; !ok {
			removed = append(removed, uid)
			delete(t.items, uid)
		}
	}
	sort.Strings(removed)
	return removed
}

func (t *Table[T]) Get(uid string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.items[uid]
	if !ok {
		var zero T
		return zero, false
	}
	return *obj, true
}

// List returns copies of all objects ordered by uid.
func (t *Table[T]) List() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	uids := lo.Keys(t.items)
	sort.Strings(uids)
	out := make([]T, 0, len(uids))
	for _, uid := range uids {
		out = append(out, *t.items[uid])
	}
	return out
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.items)
}
