// Package kv implements an in-process ordered key-value engine: the
// stand-in for the external RocksDB-family collaborator spec.md §1 and §6
// describe as "treated as a library". It offers put/get/delete plus an
// ordered iterator with seek-by-prefix, matching the raw_iterator contract
// the approval and relationship stores are built against.
package kv

import (
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
)

const defaultDegree = 32

// entry is the btree element: ordered by Key, carrying an arbitrary byte
// payload.
type entry struct {
	Key   string
	Value []byte
}

func (e entry) Less(than btree.Item) bool {
	return e.Key < than.(entry).Key
}

// Engine is a namespace-free ordered key-value store. Column-family-like
// separation is achieved purely through key prefixing (e.g. "approvals:",
// "relationships:"), exactly as spec.md's key encodings already assume.
type Engine struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New builds an empty Engine.
func New() *Engine {
	return &Engine{tree: btree.New(defaultDegree)}
}

// Put stores value under key, overwriting any prior value.
func (e *Engine) Put(key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	e.tree.ReplaceOrInsert(entry{Key: key, Value: cp})
	return nil
}

// Get retrieves the value stored under key.
func (e *Engine) Get(key string) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	item := e.tree.Get(entry{Key: key})
	if item == nil {
		return nil, false, nil
	}
	v := item.(entry).Value
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Delete removes key, if present. Deleting a missing key is not an error.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.Delete(entry{Key: key})
	return nil
}

// Count returns the total number of stored keys.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Len()
}

// Iterator walks keys in ascending order starting at a seek point.
type Iterator struct {
	items []entry
	pos   int
}

// Valid reports whether the iterator currently sits on an item.
func (it *Iterator) Valid() bool {
	return it.pos < len(it.items)
}

// Key returns the current item's key. Valid must be true.
func (it *Iterator) Key() string {
	return it.items[it.pos].Key
}

// Value returns the current item's value. Valid must be true.
func (it *Iterator) Value() []byte {
	v := it.items[it.pos].Value
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// Next advances the iterator.
func (it *Iterator) Next() {
	it.pos++
}

// SeekPrefix returns an iterator positioned at the first key >= prefix,
// yielding only keys that actually start with prefix — once it walks past
// the prefix, Valid reports false rather than continuing to iterate the
// rest of the keyspace.
func (e *Engine) SeekPrefix(prefix string) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var items []entry
	e.tree.AscendGreaterOrEqual(entry{Key: prefix}, func(i btree.Item) bool {
		it := i.(entry)
		if !strings.HasPrefix(it.Key, prefix) {
			return false
		}
		items = append(items, it)
		return true
	})
	return &Iterator{items: items}
}

// SeekAll returns an iterator over every key in ascending order.
func (e *Engine) SeekAll() *Iterator {
	return e.SeekPrefix("")
}

// ErrNotFound is returned by callers that want a typed not-found error
// rather than the (value, false, nil) zero-value convention Get uses.
var ErrNotFound = ipeerr.New(ipeerr.KindNotFound, "key not found")
