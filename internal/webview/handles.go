package webview

import "sync"

// NoHandle is the handle of a request sent without a callback.
const NoHandle = -1

// HandleTable maps the integer handles sent to native code back to the
// user's callbacks. Handles are never reused.
//
// Thread-safety: HandleTable is safe for concurrent use.
type HandleTable struct {
	mu        sync.Mutex
	next      int
	callbacks map[int]Callback
}

// NewHandleTable creates an empty table whose first handle is 0.
func NewHandleTable() *HandleTable {
	return &HandleTable{callbacks: make(map[int]Callback)}
}

// Register stores cb and returns its handle, or NoHandle for a nil cb.
func (t *HandleTable) Register(cb Callback) int {
	if cb == nil {
		return NoHandle
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.callbacks[h] = cb
	return h
}

// Get returns the callback for handle.
func (t *HandleTable) Get(handle int) (Callback, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cb, ok := t.callbacks[handle]
	return cb, ok
}

// Unregister releases handle and reports whether it was live.
func (t *HandleTable) Unregister(handle int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.callbacks[handle]
	delete(t.callbacks, handle)
	return ok
}

// Len returns the number of live handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}
