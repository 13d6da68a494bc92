package bridge

import "sync"

// registry maps domains to receivers. One receiver per domain; a later
// registration replaces the earlier one.
type registry struct {
	mu        sync.RWMutex
	receivers map[string]Receiver
}

func newRegistry() *registry {
	return &registry{receivers: make(map[string]Receiver)}
}

// Set registers r for domain and reports whether it replaced another receiver.
func (r *registry) Set(domain string, rcv Receiver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.receivers[domain]
	r.receivers[domain] = rcv
	return replaced
}

// Get returns the receiver currently registered for domain.
func (r *registry) Get(domain string) (Receiver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rcv, ok := r.receivers[domain]
	return rcv, ok
}

// Remove unregisters domain and reports whether it was registered.
func (r *registry) Remove(domain string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.receivers[domain]
	delete(r.receivers, domain)
	return ok
}

// Len returns the number of registered domains.
func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.receivers)
}
