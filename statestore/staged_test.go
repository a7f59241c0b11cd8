package statestore

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// memStore is a plain map-backed Store for overlay tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *memStore) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func (m *memStore) Scan(prefix string) (Iterator, error) {
	merged := make(map[string][]byte)
	var keys []string
	for k, v := range m.data {
		if hasPrefix(k, prefix) {
			merged[k] = v
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &sliceIterator{keys: keys, values: merged, pos: -1}, nil
}

func TestStagedReadsSeeOverlay(t *testing.T) {
	base := newMemStore()
	assert.NoError(t, base.Put("k1/", []byte("base")))

	staged := NewStaged(base)
	assert.NoError(t, staged.Put("k1/", []byte("staged")))

	val, err := staged.Get("k1/")
	assert.NoError(t, err)
	assert.Equal(t, []byte("staged"), val)

	// Base is untouched until Flush.
	assert.Equal(t, []byte("base"), base.data["k1/"])
}

func TestStagedDeleteShadowsBase(t *testing.T) {
	base := newMemStore()
	assert.NoError(t, base.Put("k1/", []byte("base")))

	staged := NewStaged(base)
	assert.NoError(t, staged.Delete("k1/"))

	val, err := staged.Get("k1/")
	assert.NoError(t, err)
	assert.Nil(t, val)
}

func TestStagedScanMergesBothSides(t *testing.T) {
	base := newMemStore()
	assert.NoError(t, base.Put("p/a/", []byte("1")))
	assert.NoError(t, base.Put("p/c/", []byte("3")))
	assert.NoError(t, base.Put("q/x/", []byte("9")))

	staged := NewStaged(base)
	assert.NoError(t, staged.Put("p/b/", []byte("2")))
	assert.NoError(t, staged.Delete("p/c/"))

	it, err := staged.Scan("p/")
	assert.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	assert.Equal(t, []string{"p/a/", "p/b/"}, keys)
}

func TestStagedFlushAppliesDeletesBeforeWrites(t *testing.T) {
	base := newMemStore()
	assert.NoError(t, base.Put("idx/", []byte("old")))

	staged := NewStaged(base)
	assert.NoError(t, staged.Delete("idx/"))
	assert.NoError(t, staged.Put("idx/", []byte("new")))
	assert.NoError(t, staged.Flush())

	assert.Equal(t, []byte("new"), base.data["idx/"])
	assert.False(t, staged.Dirty())
}

func TestStagedDiscardLeavesBaseUntouched(t *testing.T) {
	base := newMemStore()
	assert.NoError(t, base.Put("k1/", []byte("base")))

	staged := NewStaged(base)
	assert.NoError(t, staged.Put("k1/", []byte("changed")))
	assert.NoError(t, staged.Put("k2/", []byte("new")))
	assert.NoError(t, staged.Delete("k1/"))
	assert.True(t, staged.Dirty())

	staged.Discard()
	assert.False(t, staged.Dirty())

	assert.Equal(t, []byte("base"), base.data["k1/"])
	_, ok := base.data["k2/"]
	assert.False(t, ok)
}

func TestStagedPutCopiesValue(t *testing.T) {
	base := newMemStore()
	staged := NewStaged(base)

	buf := []byte("original")
	assert.NoError(t, staged.Put("k/", buf))
	buf[0] = 'X'

	val, err := staged.Get("k/")
	assert.NoError(t, err)
	assert.Equal(t, []byte("original"), val)
}
