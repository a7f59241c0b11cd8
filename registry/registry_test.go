package registry

import (
	"testing"

	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/statestore"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

type testRecord struct {
	Name  string `json:"nombre"`
	Count int    `json:"cantidad"`
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateRejectsOccupiedKey(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	key, err := reg.Key("a", "b")
	assert.NoError(t, err)

	err = statestore.Update(db, func(s statestore.Store) error {
		if err := reg.Create(s, key, testRecord{Name: "first"}); err != nil {
			return err
		}
		return reg.Create(s, key, testRecord{Name: "second"})
	})
	assert.True(t, fault.IsCode(err, fault.AlreadyExists))
}

func TestReadAbsentKeyIsNotFound(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	key, err := reg.Key("nope")
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		_, err := reg.Read(s, key)
		return err
	})
	assert.True(t, fault.IsCode(err, fault.NotFound))
}

func TestWriteOverwritesAndReadsBack(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	key, err := reg.Key("a")
	assert.NoError(t, err)

	err = statestore.Update(db, func(s statestore.Store) error {
		if err := reg.Create(s, key, testRecord{Name: "v1", Count: 1}); err != nil {
			return err
		}
		return reg.Write(s, key, testRecord{Name: "v2", Count: 2})
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		rec, err := reg.Read(s, key)
		assert.NoError(t, err)
		assert.Equal(t, testRecord{Name: "v2", Count: 2}, rec)
		return nil
	})
	assert.NoError(t, err)
}

func TestListReturnsRecordsInKeyOrder(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	err := statestore.Update(db, func(s statestore.Store) error {
		for i, attr := range []string{"c", "a", "b"} {
			key, err := reg.Key("owner", attr)
			if err != nil {
				return err
			}
			if err := reg.Create(s, key, testRecord{Name: attr, Count: i}); err != nil {
				return err
			}
		}
		// Same namespace, different owner: must not appear below.
		other, err := reg.Key("stranger", "z")
		if err != nil {
			return err
		}
		return reg.Create(s, other, testRecord{Name: "z"})
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		recs, err := reg.List(s, "owner")
		assert.NoError(t, err)
		names := make([]string, 0, len(recs))
		for _, r := range recs {
			names = append(names, r.Name)
		}
		assert.Equal(t, []string{"a", "b", "c"}, names)
		return nil
	})
	assert.NoError(t, err)
}

func TestWalkStopsWhenToldTo(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	err := statestore.Update(db, func(s statestore.Store) error {
		for _, attr := range []string{"a", "b", "c"} {
			key, err := reg.Key(attr)
			if err != nil {
				return err
			}
			if err := reg.Create(s, key, testRecord{Name: attr}); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)

	var seen int
	err = statestore.View(db, func(s statestore.Store) error {
		return reg.Walk(s, nil, func(key string, rec testRecord) (bool, error) {
			seen++
			return rec.Name != "b", nil
		})
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, seen)
}

func TestFindFirstReturnsFirstMatchInKeyOrder(t *testing.T) {
	db := openTestDB(t)
	reg := New[testRecord]("prueba")

	err := statestore.Update(db, func(s statestore.Store) error {
		for i, attr := range []string{"a", "b", "c"} {
			key, err := reg.Key(attr)
			if err != nil {
				return err
			}
			if err := reg.Create(s, key, testRecord{Name: "dup", Count: i}); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		rec, key, err := reg.FindFirst(s, nil, func(r testRecord) bool { return r.Name == "dup" })
		assert.NoError(t, err)
		assert.Equal(t, 0, rec.Count)
		assert.Contains(t, key, "prueba/a/")

		_, _, err = reg.FindFirst(s, nil, func(r testRecord) bool { return false })
		assert.True(t, fault.IsCode(err, fault.NotFound))
		return nil
	})
	assert.NoError(t, err)
}

func TestParseKeyEnforcesNamespace(t *testing.T) {
	reg := New[testRecord]("prueba")
	other := New[testRecord]("otra")

	key, err := other.Key("a")
	assert.NoError(t, err)

	_, err = reg.ParseKey(key)
	assert.True(t, fault.IsCode(err, fault.WrongAssetType))
}
