// Package statestore is the thin contract over the sorted key-value store
// the ledger runs on. The ledger only ever needs four primitives: point get,
// put, delete, and a lexicographically ordered prefix scan. Badger provides
// all of them inside a transaction scope, which is also the only atomicity
// unit the ledger relies on.
package statestore

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by iterators used after Close.
var ErrClosed = errors.New("statestore: iterator is closed")

// Store is the read-write surface handed to contracts. Get returns
// (nil, nil) for an absent key; absence is not an error at this layer.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Scan returns keys starting with prefix in ascending key order. The
	// caller must Close the iterator on every exit path; an unclosed
	// iterator pins store-side resources for the rest of the invocation.
	Scan(prefix string) (Iterator, error)
}

// Iterator walks a prefix scan. Usage:
//
//	it, _ := store.Scan(prefix)
//	defer it.Close()
//	for it.Next() {
//	    k, v := it.Key(), it.Value()
//	}
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Close()
}

// TxnStore adapts a badger transaction to the Store contract. All writes go
// into the transaction and become visible to other readers only when the
// host commits it.
type TxnStore struct {
	txn *badger.Txn
}

// NewTxnStore wraps an open badger transaction.
func NewTxnStore(txn *badger.Txn) *TxnStore {
	return &TxnStore{txn: txn}
}

func (s *TxnStore) Get(key string) ([]byte, error) {
	item, err := s.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *TxnStore) Put(key string, value []byte) error {
	return s.txn.Set([]byte(key), value)
}

func (s *TxnStore) Delete(key string) error {
	return s.txn.Delete([]byte(key))
}

func (s *TxnStore) Scan(prefix string) (Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := s.txn.NewIterator(opts)
	it.Rewind()
	return &badgerIterator{it: it}, nil
}

type badgerIterator struct {
	it      *badger.Iterator
	started bool
	closed  bool
	key     string
	value   []byte
}

func (b *badgerIterator) Next() bool {
	if b.closed {
		return false
	}
	if b.started {
		b.it.Next()
	}
	b.started = true
	if !b.it.Valid() {
		return false
	}
	item := b.it.Item()
	b.key = string(item.Key())
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false
	}
	b.value = val
	return true
}

func (b *badgerIterator) Key() string { return b.key }

func (b *badgerIterator) Value() []byte { return b.value }

func (b *badgerIterator) Close() {
	if !b.closed {
		b.it.Close()
		b.closed = true
	}
}

// View runs fn against a read-only snapshot of the database.
func View(db *badger.DB, fn func(Store) error) error {
	return db.View(func(txn *badger.Txn) error {
		return fn(NewTxnStore(txn))
	})
}

// Update runs fn inside a single read-write transaction and commits it when
// fn succeeds. Used by tests and tooling; the consensus app manages its own
// block-scoped transaction instead.
func Update(db *badger.DB, fn func(Store) error) error {
	return db.Update(func(txn *badger.Txn) error {
		return fn(NewTxnStore(txn))
	})
}
