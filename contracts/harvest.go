package contracts

import (
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// HarvestContract creates and reads harvest batches. A batch is terminal:
// once recorded it never changes, and recording it is what moves the
// referenced seed lot to harvested.
type HarvestContract struct {
	batches *registry.Registry[assets.HarvestBatch]
	lots    *registry.Registry[assets.SeedLot]
	now     Clock
}

// Harvest records one harvest taken from a planted seed lot. Exactly one
// batch may exist per (seedLotKey, batchID); a replay fails with
// DuplicateOperation before anything is written, so resubmission is safe and
// the lot is never transitioned twice.
func (c *HarvestContract) Harvest(store statestore.Store, caller lifecycle.Caller, seedLotKey, batchID string, kilos float64, conditions string, temperature float64) (assets.HarvestBatch, error) {
	if err := lifecycle.RequireNonEmpty("idLoteSemillas", seedLotKey); err != nil {
		return assets.HarvestBatch{}, err
	}
	if err := lifecycle.RequireNonEmpty("cosechaID", batchID); err != nil {
		return assets.HarvestBatch{}, err
	}
	if err := lifecycle.RequireNonEmpty("condicionesRecoleccion", conditions); err != nil {
		return assets.HarvestBatch{}, err
	}
	if err := lifecycle.RequirePositive("cantidadKilos", kilos); err != nil {
		return assets.HarvestBatch{}, err
	}
	if err := lifecycle.RequirePositive("tempDuranteCosecha", temperature); err != nil {
		return assets.HarvestBatch{}, err
	}

	// The seed lot key is caller-supplied; parsing it both validates the
	// namespace and rejects keys pointing at other asset types.
	if _, err := c.lots.ParseKey(seedLotKey); err != nil {
		return assets.HarvestBatch{}, err
	}
	lot, err := c.lots.Read(store, seedLotKey)
	if err != nil {
		return assets.HarvestBatch{}, err
	}
	// The duplicate check runs before the lifecycle guard so a resubmitted
	// harvest reports "already recorded" instead of a state complaint.
	key, err := c.batches.Key(lot.Owner, lot.Variety, batchID, seedLotKey)
	if err != nil {
		return assets.HarvestBatch{}, err
	}
	if exists, err := c.batches.Exists(store, key); err != nil {
		return assets.HarvestBatch{}, err
	} else if exists {
		return assets.HarvestBatch{}, fault.New(fault.DuplicateOperation, "harvest %q for lot %q already recorded", batchID, lot.Lot)
	}
	if err := lifecycle.SeedLotCanHarvest(caller, lot); err != nil {
		return assets.HarvestBatch{}, err
	}

	batch := assets.HarvestBatch{
		BatchID:        batchID,
		SeedLotKey:     seedLotKey,
		Owner:          lot.Owner,
		Variety:        lot.Variety,
		TotalKilos:     kilos,
		RemainingKilos: kilos,
		HarvestDate:    c.now().UTC().Format(time.RFC3339),
		Collector:      caller.Address,
		Conditions:     conditions,
		Temperature:    temperature,
	}
	if err := c.batches.Write(store, key, batch); err != nil {
		return assets.HarvestBatch{}, err
	}

	lot.State = assets.SeedLotHarvested
	if err := c.lots.Write(store, seedLotKey, lot); err != nil {
		return assets.HarvestBatch{}, err
	}
	return batch, nil
}

// KeyFor rebuilds the composite key a batch record lives under, so callers
// holding only the record can address downstream operations.
func (c *HarvestContract) KeyFor(batch assets.HarvestBatch) (string, error) {
	return c.batches.Key(batch.Owner, batch.Variety, batch.BatchID, batch.SeedLotKey)
}

// Read loads a batch by its full composite key.
func (c *HarvestContract) Read(store statestore.Store, key string) (assets.HarvestBatch, error) {
	if _, err := c.batches.ParseKey(key); err != nil {
		return assets.HarvestBatch{}, err
	}
	return c.batches.Read(store, key)
}

// Exists reports whether a batch occupies the key.
func (c *HarvestContract) Exists(store statestore.Store, key string) (bool, error) {
	return c.batches.Exists(store, key)
}

// ListByOwner returns a producer's batches. Only the producer or an admin
// may list them.
func (c *HarvestContract) ListByOwner(store statestore.Store, caller lifecycle.Caller, owner string) ([]assets.HarvestBatch, error) {
	if err := lifecycle.RequireSelfOrAdmin(caller, owner); err != nil {
		return nil, err
	}
	return c.batches.List(store, owner)
}
