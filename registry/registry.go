// Package registry provides the generic read-modify-write operations every
// contract uses: create-once admission, keyed reads, overwrites for state
// transitions, and drained prefix scans. It is the only code path that
// serializes records, so stored bytes are deterministic (structs encode with
// a fixed field order) and duplicate-detection by byte comparison is safe.
package registry

import (
	"encoding/json"

	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/keycodec"
	"github.com/agrofresa/fresachain/statestore"
)

// Registry binds a record type to its namespace.
type Registry[T any] struct {
	Namespace string
}

// New creates a registry for one asset namespace.
func New[T any](namespace string) *Registry[T] {
	return &Registry[T]{Namespace: namespace}
}

// Key builds this registry's composite key from the given attributes.
func (r *Registry[T]) Key(attrs ...string) (string, error) {
	return keycodec.Build(r.Namespace, attrs...)
}

// ParseKey validates a key against this registry's namespace and returns its
// attributes.
func (r *Registry[T]) ParseKey(key string) ([]string, error) {
	return keycodec.Parse(r.Namespace, key)
}

// Exists reports whether a record occupies the key.
func (r *Registry[T]) Exists(store statestore.Store, key string) (bool, error) {
	data, err := store.Get(key)
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

// Read loads the record at key, failing with NotFound when absent.
func (r *Registry[T]) Read(store statestore.Store, key string) (T, error) {
	var rec T
	data, err := store.Get(key)
	if err != nil {
		return rec, err
	}
	if len(data) == 0 {
		return rec, fault.New(fault.NotFound, "%s: no record at key %q", r.Namespace, key)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fault.New(fault.WrongAssetType, "%s: record at %q does not decode: %v", r.Namespace, key, err)
	}
	return rec, nil
}

// Create writes a record at a previously unoccupied key. This is the sole
// admission point enforcing one-record-per-key: a replayed creation fails
// with AlreadyExists instead of silently overwriting.
func (r *Registry[T]) Create(store statestore.Store, key string, rec T) error {
	occupied, err := r.Exists(store, key)
	if err != nil {
		return err
	}
	if occupied {
		return fault.New(fault.AlreadyExists, "%s: record already exists at key %q", r.Namespace, key)
	}
	return r.Write(store, key, rec)
}

// Write overwrites the record at key. Used for state transitions on records
// already admitted through Create.
func (r *Registry[T]) Write(store statestore.Store, key string, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return store.Put(key, data)
}

// List drains a prefix scan into decoded records, in key order. The
// iterator is always closed, including on decode errors.
func (r *Registry[T]) List(store statestore.Store, prefixAttrs ...string) ([]T, error) {
	var out []T
	err := r.Walk(store, prefixAttrs, func(key string, rec T) (bool, error) {
		out = append(out, rec)
		return true, nil
	})
	return out, err
}

// Walk iterates records under a prefix, calling fn for each until fn returns
// false or the scan is exhausted. The underlying iterator is released on
// every exit path.
func (r *Registry[T]) Walk(store statestore.Store, prefixAttrs []string, fn func(key string, rec T) (bool, error)) error {
	prefix, err := keycodec.Prefix(r.Namespace, prefixAttrs...)
	if err != nil {
		return err
	}
	it, err := store.Scan(prefix)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		var rec T
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			// Keys under a record namespace always hold records; anything
			// else is a foreign write and a real fault.
			return fault.New(fault.WrongAssetType, "%s: record at %q does not decode: %v", r.Namespace, it.Key(), err)
		}
		cont, err := fn(it.Key(), rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// FindFirst scans under a prefix and returns the first record matching the
// predicate, with its key. This is the documented fallback for callers that
// only know a human-facing field (a lot code, a wallet address) instead of
// the full composite key. It is a scan, not an index lookup, and the field
// is not guaranteed unique across owners: the first match in key order wins.
func (r *Registry[T]) FindFirst(store statestore.Store, prefixAttrs []string, match func(T) bool) (T, string, error) {
	var (
		found    T
		foundKey string
	)
	err := r.Walk(store, prefixAttrs, func(key string, rec T) (bool, error) {
		if match(rec) {
			found = rec
			foundKey = key
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return found, "", err
	}
	if foundKey == "" {
		return found, "", fault.New(fault.NotFound, "%s: no record matches", r.Namespace)
	}
	return found, foundKey, nil
}
