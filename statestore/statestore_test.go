package statestore

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTxnStoreGetAbsentKeyIsNil(t *testing.T) {
	db := openTestDB(t)

	err := View(db, func(s Store) error {
		val, err := s.Get("missing/")
		assert.NoError(t, err)
		assert.Nil(t, val)
		return nil
	})
	assert.NoError(t, err)
}

func TestTxnStorePutGetDelete(t *testing.T) {
	db := openTestDB(t)

	err := Update(db, func(s Store) error {
		return s.Put("usuario/admin/0x1/", []byte(`{"rol":"admin"}`))
	})
	assert.NoError(t, err)

	err = Update(db, func(s Store) error {
		val, err := s.Get("usuario/admin/0x1/")
		assert.NoError(t, err)
		assert.Equal(t, []byte(`{"rol":"admin"}`), val)
		return s.Delete("usuario/admin/0x1/")
	})
	assert.NoError(t, err)

	err = View(db, func(s Store) error {
		val, err := s.Get("usuario/admin/0x1/")
		assert.NoError(t, err)
		assert.Nil(t, val)
		return nil
	})
	assert.NoError(t, err)
}

func TestTxnStoreScanOrderAndBounds(t *testing.T) {
	db := openTestDB(t)

	err := Update(db, func(s Store) error {
		for _, k := range []string{"a/2/", "a/1/", "a/3/", "b/1/"} {
			if err := s.Put(k, []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)

	var keys []string
	err = View(db, func(s Store) error {
		it, err := s.Scan("a/")
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Next() {
			keys = append(keys, it.Key())
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a/1/", "a/2/", "a/3/"}, keys)
}
