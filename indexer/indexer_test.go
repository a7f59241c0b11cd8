package indexer

import (
	"testing"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/statestore"
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

func pkg(id, owner string) assets.Package {
	return assets.Package{
		PackageID:  id,
		HarvestKey: "cosechaFresas/owner1/albión/C1/lot/",
		Owner:      owner,
	}
}

func TestAddCreatesEntryAndGuardsDuplicates(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		// Replay of the same package must not grow the entry.
		return m.Add(s, "0xA", "albión", pkg("P1", "0xA"))
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		entry, err := m.Read(s, "0xA", "albión")
		assert.NoError(t, err)
		assert.Len(t, entry.Packages, 1)
		return nil
	})
	assert.NoError(t, err)
}

func TestAddRefreshesStoredCopy(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		stamped := pkg("P1", "0xA")
		stamped.PackType = "caja"
		return m.Refresh(s, "0xA", "albión", stamped)
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		entry, err := m.Read(s, "0xA", "albión")
		assert.NoError(t, err)
		assert.Len(t, entry.Packages, 1)
		assert.Equal(t, "caja", entry.Packages[0].PackType)
		return nil
	})
	assert.NoError(t, err)
}

func TestMoveRehomesPackage(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		if err := m.Add(s, "0xA", "albión", pkg("P2", "0xA")); err != nil {
			return err
		}
		moved := pkg("P1", "0xB")
		return m.Move(s, "0xA", "0xB", "albión", moved)
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		from, err := m.Read(s, "0xA", "albión")
		assert.NoError(t, err)
		assert.Len(t, from.Packages, 1)
		assert.Equal(t, "P2", from.Packages[0].PackageID)

		to, err := m.Read(s, "0xB", "albión")
		assert.NoError(t, err)
		assert.Len(t, to.Packages, 1)
		assert.Equal(t, "P1", to.Packages[0].PackageID)
		assert.Equal(t, "0xB", to.Packages[0].Owner)
		return nil
	})
	assert.NoError(t, err)
}

func TestEmptiedEntryIsDeleted(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		return m.Remove(s, "0xA", "albión", pkg("P1", "0xA"))
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		_, err := m.Read(s, "0xA", "albión")
		assert.True(t, fault.IsCode(err, fault.NotFound))

		// The key itself is gone, not just empty.
		key, err := m.Key("0xA", "albión")
		assert.NoError(t, err)
		val, err := s.Get(key)
		assert.NoError(t, err)
		assert.Nil(t, val)
		return nil
	})
	assert.NoError(t, err)
}

func TestRemoveFromMissingEntryIsNoOp(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		return m.Remove(s, "0xA", "albión", pkg("P1", "0xA"))
	})
	assert.NoError(t, err)
}

func TestBulkTransferGroupsByOldOwner(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		if err := m.Add(s, "0xA", "albión", pkg("P2", "0xA")); err != nil {
			return err
		}
		if err := m.Add(s, "0xB", "albión", pkg("P3", "0xB")); err != nil {
			return err
		}

		transferred := []assets.Package{pkg("P1", "0xD"), pkg("P2", "0xD"), pkg("P3", "0xD")}
		byOldOwner := map[string][]assets.Package{
			"0xA": {pkg("P1", "0xA"), pkg("P2", "0xA")},
			"0xB": {pkg("P3", "0xB")},
		}
		return m.BulkTransfer(s, "0xD", "albión", transferred, byOldOwner)
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		_, err := m.Read(s, "0xA", "albión")
		assert.True(t, fault.IsCode(err, fault.NotFound))
		_, err = m.Read(s, "0xB", "albión")
		assert.True(t, fault.IsCode(err, fault.NotFound))

		entry, err := m.Read(s, "0xD", "albión")
		assert.NoError(t, err)
		assert.Len(t, entry.Packages, 3)
		for _, p := range entry.Packages {
			assert.Equal(t, "0xD", p.Owner)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestListByOwnerSpansVarieties(t *testing.T) {
	db := openTestDB(t)
	m := New()

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := m.Add(s, "0xA", "albión", pkg("P1", "0xA")); err != nil {
			return err
		}
		if err := m.Add(s, "0xA", "camarosa", pkg("P2", "0xA")); err != nil {
			return err
		}
		return m.Add(s, "0xB", "albión", pkg("P3", "0xB"))
	})
	assert.NoError(t, err)

	err = statestore.View(db, func(s statestore.Store) error {
		entries, err := m.ListByOwner(s, "0xA")
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		return nil
	})
	assert.NoError(t, err)
}
