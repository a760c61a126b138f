package vkdriver

import "sync"

// handles maps the opaque gpu handles onto vkngwrapper objects. The zero
// handle is never issued.
type handles struct {
	mu      sync.Mutex
	next    uint64
	objects map[uint64]any
}

func newHandles() *handles {
	return &handles{next: 1, objects: map[uint64]any{}}
}

func (h *handles) add(obj any) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.objects[id] = obj
	return id
}

func (h *handles) remove(id uint64) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj := h.objects[id]
	delete(h.objects, id)
	return obj
}

func (h *handles) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// get resolves id to a T. ok is false for the null handle, unknown handles
// and handles of another type.
func get[T any](h *handles, id uint64) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id].(T)
	return obj, ok
}

// take removes id and returns it as a T, leaving the table untouched when
// the type does not match.
func take[T any](h *handles, id uint64) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[id].(T)
	if ok {
		delete(h.objects, id)
	}
	return obj, ok
}

// all resolves every id, failing on the first that does not resolve.
func all[T any, ID ~uint64](h *handles, ids []ID) ([]T, bool) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		obj, ok := get[T](h, uint64(id))
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}
