package memory

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

var (
	hubsMu sync.Mutex
	hubs   = map[string]*hub{}
)

// hub is one in-process network mapping endpoint URIs to their bindings.
type hub struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

func hubFor(network string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h := hubs[network]
	if h == nil {
		h = &hub{bindings: make(map[string]*binding)}
		hubs[network] = h
	}
	return h
}

func (h *hub) lookup(uri string) *binding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bindings[uri]
}

// bind joins group on uri, creating both as needed.
func (h *hub) bind(uri, group string, shards, bufferSize int) (*binding, *queue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.bindings[uri]
	if b == nil {
		b = &binding{groups: make(map[string]*queue)}
		h.bindings[uri] = b
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.groups[group]
	if q == nil {
		q = newQueue(shards, bufferSize)
		b.groups[group] = q
	}
	q.members++
	return b, q
}

// unbind removes one member of group. The group goes with its last member
// and the binding with its last group.
func (h *hub) unbind(uri string, b *binding, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b.mu.Lock()
	if q := b.groups[group]; q != nil {
		if q.members--; q.members <= 0 {
			delete(b.groups, group)
		}
	}
	gone := len(b.groups) == 0
	b.mu.Unlock()
	if gone && h.bindings[uri] == b {
		delete(h.bindings, uri)
	}
}

// binding holds the consumer groups listening on one endpoint URI. Every
// group receives every envelope.
type binding struct {
	mu     sync.RWMutex
	groups map[string]*queue
}

func (b *binding) queues() []*queue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	qs := make([]*queue, 0, len(b.groups))
	for _, q := range b.groups {
		qs = append(qs, q)
	}
	return qs
}

// queue is one consumer group's work, split into shards by sender URI.
// Members of the group compete for the shards.
type queue struct {
	shards  []chan *task
	members int
}

func newQueue(shards, bufferSize int) *queue {
	q := &queue{shards: make([]chan *task, shards)}
	for i := range q.shards {
		q.shards[i] = make(chan *task, bufferSize)
	}
	return q
}

func (q *queue) shardFor(from string) chan *task {
	return q.shards[murmur3.Sum32([]byte(from))%uint32(len(q.shards))]
}
