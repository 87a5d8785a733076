package kvstore

import (
	"maps"
	"sync"
)

type entry struct {
	value   []byte
	deleted bool
}

// overlay buffers the writes of one transaction. Reads made through the
// transactional store see these writes before they are committed.
type overlay struct {
	mu     sync.Mutex
	writes map[string]map[string]entry
}

func newOverlay() *overlay {
	return &overlay{writes: map[string]map[string]entry{}}
}

func (o *overlay) get(collection, field string) (entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.writes[collection][field]
	return e, ok
}

func (o *overlay) collection(collection string) map[string]entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.writes[collection])
}

func (o *overlay) put(collection, field string, value []byte) {
	o.set(collection, field, entry{value: value})
}

func (o *overlay) del(collection, field string) {
	o.set(collection, field, entry{deleted: true})
}

func (o *overlay) set(collection, field string, e entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fields, ok := o.writes[collection]
	if !ok {
		fields = map[string]entry{}
		o.writes[collection] = fields
	}
	fields[field] = e
}

func (o *overlay) snapshot() map[string]map[string]entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]map[string]entry, len(o.writes))
	for name, fields := range o.writes {
		out[name] = maps.Clone(fields)
	}
	return out
}

func (o *overlay) restore(writes map[string]map[string]entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = writes
}

func (o *overlay) empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.writes) == 0
}
