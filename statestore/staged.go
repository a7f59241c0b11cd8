package statestore

import "sort"

// Staged buffers one invocation's writes on top of a base store. Reads see
// the overlay first, then the base; scans merge both sides in key order. On
// success the host flushes the overlay into the base (the block-scoped
// transaction); on failure it simply drops the overlay, so a failed
// invocation leaves nothing behind. This is how "no partial writes are ever
// observable" is kept even though the underlying store has no nested
// transactions.
type Staged struct {
	base    Store
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewStaged creates an empty overlay over base.
func NewStaged(base Store) *Staged {
	return &Staged{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (s *Staged) Get(key string) ([]byte, error) {
	if _, gone := s.deletes[key]; gone {
		return nil, nil
	}
	if v, ok := s.writes[key]; ok {
		return v, nil
	}
	return s.base.Get(key)
}

func (s *Staged) Put(key string, value []byte) error {
	delete(s.deletes, key)
	cp := make([]byte, len(value))
	copy(cp, value)
	s.writes[key] = cp
	return nil
}

func (s *Staged) Delete(key string) error {
	delete(s.writes, key)
	s.deletes[key] = struct{}{}
	return nil
}

// Scan merges the base scan with staged writes so an invocation observes its
// own uncommitted mutations, matching the point-read behavior.
func (s *Staged) Scan(prefix string) (Iterator, error) {
	baseIt, err := s.base.Scan(prefix)
	if err != nil {
		return nil, err
	}
	defer baseIt.Close()

	merged := make(map[string][]byte)
	for baseIt.Next() {
		merged[baseIt.Key()] = baseIt.Value()
	}
	for k, v := range s.writes {
		if hasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k := range s.deletes {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &sliceIterator{keys: keys, values: merged, pos: -1}, nil
}

// Flush applies the overlay to the base store in deterministic key order.
// Deletes are applied before writes so a delete-then-put of the same key
// (index rewrite) lands as a put.
func (s *Staged) Flush() error {
	delKeys := make([]string, 0, len(s.deletes))
	for k := range s.deletes {
		delKeys = append(delKeys, k)
	}
	sort.Strings(delKeys)
	for _, k := range delKeys {
		if err := s.base.Delete(k); err != nil {
			return err
		}
	}
	putKeys := make([]string, 0, len(s.writes))
	for k := range s.writes {
		putKeys = append(putKeys, k)
	}
	sort.Strings(putKeys)
	for _, k := range putKeys {
		if err := s.base.Put(k, s.writes[k]); err != nil {
			return err
		}
	}
	s.Discard()
	return nil
}

// Discard drops every staged mutation.
func (s *Staged) Discard() {
	s.writes = make(map[string][]byte)
	s.deletes = make(map[string]struct{})
}

// Dirty reports whether the overlay holds any pending mutation.
func (s *Staged) Dirty() bool {
	return len(s.writes) > 0 || len(s.deletes) > 0
}

type sliceIterator struct {
	keys   []string
	values map[string][]byte
	pos    int
	closed bool
}

func (it *sliceIterator) Next() bool {
	if it.closed {
		return false
	}
	it.pos++
	return it.pos < len(it.keys)
}

func (it *sliceIterator) Key() string { return it.keys[it.pos] }

func (it *sliceIterator) Value() []byte { return it.values[it.keys[it.pos]] }

func (it *sliceIterator) Close() { it.closed = true }

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
