package mirror

import (
	"encoding/json"
	"sort"
	"sync"
)

// Documents is an in-memory document store backing the reference mirror
// server. It is safe for concurrent use.
type Documents struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

// NewDocuments creates an empty document store.
func NewDocuments() *Documents {
	return &Documents{collections: make(map[string]map[string]json.RawMessage)}
}

// Set stores a copy of doc.
func (d *Documents) Set(collection, id string, doc json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs, ok := d.collections[collection]
	if !ok {
		docs = make(map[string]json.RawMessage)
		d.collections[collection] = docs
	}
	docs[id] = append(json.RawMessage(nil), doc...)
}

// Get returns the stored document and whether it exists.
func (d *Documents) Get(collection, id string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.collections[collection][id]
	return doc, ok
}

// Delete removes a document and reports whether it existed.
func (d *Documents) Delete(collection, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs := d.collections[collection]
	if _, ok := docs[id]; !ok {
		return false
	}
	delete(docs, id)
	return true
}

// List returns the documents of a collection ordered by id.
func (d *Documents) List(collection string) []json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := d.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, docs[id])
	}
	return out
}

// Count returns how many documents a collection holds.
func (d *Documents) Count(collection string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.collections[collection])
}
