/*
Package kvstore provides the byte-level key/value façade spec.md §1
treats as a black-box external collaborator ("get(key) -> bytes,
put(key, bytes), delete(key), list(prefix), and atomic batch commit"),
plus a typed DB built on top of it for games, game lists and metadata
(spec.md §6).
*/
package kvstore

import (
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the minimal byte-level contract the reference database is
// built on. Implementations need not be safe for concurrent use; the
// core opens the store read-only during a sweep (spec.md §5).
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// List returns every key with the given prefix, sorted.
	List(prefix string) ([]string, error)
	// Batch runs fn against a Batch that is committed atomically
	// when fn returns nil, and discarded entirely if fn returns an
	// error or panics.
	Batch(fn func(*Batch) error) error
	Close() error
}

// Batch accumulates writes for atomic commit.
type Batch struct {
	apply func(op batchOp) error
}

type batchOp struct {
	delete bool
	key    string
	value  []byte
}

// Put queues a write.
func (b *Batch) Put(key string, value []byte) error {
	return b.apply(batchOp{key: key, value: value})
}

// Delete queues a delete.
func (b *Batch) Delete(key string) error {
	return b.apply(batchOp{delete: true, key: key})
}
