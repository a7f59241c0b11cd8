package contracts

import (
	"testing"
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/statestore"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

var (
	adminCaller       = lifecycle.Caller{Address: "0xADMIN", Role: assets.RoleAdmin}
	producerCaller    = lifecycle.Caller{Address: "0xPROD", Role: assets.RoleProducer}
	harvesterCaller   = lifecycle.Caller{Address: "0xHARV", Role: assets.RoleHarvester}
	packerCaller      = lifecycle.Caller{Address: "0xPACK", Role: assets.RolePacker}
	distributorCaller = lifecycle.Caller{Address: "0xDIST", Role: assets.RoleDistributor}
	transporterCaller = lifecycle.Caller{Address: "0xTRANS", Role: assets.RoleTransporter}
	retailerCaller    = lifecycle.Caller{Address: "0xRETAIL", Role: assets.RoleRetailer}
)

func newTestEnv(t *testing.T) (*Set, *badger.DB) {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bootstrap := assets.User{Name: "Root", Role: assets.RoleAdmin, Address: adminCaller.Address}
	return NewSet(bootstrap, func() time.Time { return testTime }), db
}

func update(t *testing.T, db *badger.DB, fn func(statestore.Store) error) {
	t.Helper()
	assert.NoError(t, statestore.Update(db, fn))
}

func view(t *testing.T, db *badger.DB, fn func(statestore.Store) error) {
	t.Helper()
	assert.NoError(t, statestore.View(db, fn))
}

// registerUser creates a ledger user so operations that check registration
// (wholesale purchase, distributor collection) can pass.
func registerUser(t *testing.T, set *Set, db *badger.DB, name, address, role string) {
	t.Helper()
	update(t, db, func(s statestore.Store) error {
		_, _, err := set.Admin.Register(s, adminCaller, name, address, role, "id-"+name)
		return err
	})
}

// seedToPlanted stores and plants one lot for the producer and returns the
// lot's composite key.
func seedToPlanted(t *testing.T, set *Set, db *badger.DB, variety, lot string) string {
	t.Helper()
	update(t, db, func(s statestore.Store) error {
		_, err := set.SeedLots.Store(s, producerCaller, lot, variety, 1.5, assets.StorageConditions{Temperature: 4, Humidity: 60})
		if err != nil {
			return err
		}
		_, err = set.SeedLots.Plant(s, producerCaller, variety, lot, assets.PlantingConditions{Place: "Campo 1", Date: "2025-04-01"})
		return err
	})
	key, err := set.SeedLots.lots.Key(producerCaller.Address, variety, lot)
	assert.NoError(t, err)
	return key
}

// seedToHarvested runs the chain through harvesting and returns the harvest
// batch key.
func seedToHarvested(t *testing.T, set *Set, db *badger.DB, variety, lot, batchID string) string {
	t.Helper()
	lotKey := seedToPlanted(t, set, db, variety, lot)
	update(t, db, func(s statestore.Store) error {
		_, err := set.Harvests.Harvest(s, harvesterCaller, lotKey, batchID, 120, "soleado", 18)
		return err
	})
	key, err := set.Harvests.batches.Key(producerCaller.Address, variety, batchID, lotKey)
	assert.NoError(t, err)
	return key
}

// seedToPacked additionally packs the harvest into the given package ids.
func seedToPacked(t *testing.T, set *Set, db *badger.DB, variety, lot, batchID string, packageIDs []string) string {
	t.Helper()
	harvestKey := seedToHarvested(t, set, db, variety, lot, batchID)
	update(t, db, func(s statestore.Store) error {
		_, err := set.Packages.Pack(s, packerCaller, harvestKey, "caja 500g", "Centro Norte", "2025-05-09", packageIDs)
		return err
	})
	return harvestKey
}
