package contracts

import (
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// SeedLotContract manages seed lot records through their stored -> planted
// -> harvested lifecycle. The harvested transition is owned by the harvest
// contract; everything else lives here.
type SeedLotContract struct {
	lots *registry.Registry[assets.SeedLot]
	now  Clock
}

// Store registers a new seed lot for the calling producer. The purchase date
// is server-assigned. A lot that already exists for the same
// (owner, variety, lot) fails with AlreadyExists.
func (c *SeedLotContract) Store(store statestore.Store, caller lifecycle.Caller, lot, variety string, tons float64, storage assets.StorageConditions) (assets.SeedLot, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleProducer); err != nil {
		return assets.SeedLot{}, err
	}
	if err := lifecycle.RequireNonEmpty("lote", lot); err != nil {
		return assets.SeedLot{}, err
	}
	if err := lifecycle.RequireNonEmpty("variedad", variety); err != nil {
		return assets.SeedLot{}, err
	}
	if err := lifecycle.RequirePositive("toneladas", tons); err != nil {
		return assets.SeedLot{}, err
	}

	key, err := c.lots.Key(caller.Address, variety, lot)
	if err != nil {
		return assets.SeedLot{}, err
	}
	rec := assets.SeedLot{
		Owner:        caller.Address,
		Lot:          lot,
		Variety:      variety,
		Tons:         tons,
		PurchaseDate: c.now().UTC().Format(time.RFC3339),
		State:        assets.SeedLotStored,
		Storage:      &storage,
	}
	if err := c.lots.Create(store, key, rec); err != nil {
		return assets.SeedLot{}, err
	}
	return rec, nil
}

// Plant moves the caller's lot from stored to planted, recording the
// planting conditions.
func (c *SeedLotContract) Plant(store statestore.Store, caller lifecycle.Caller, variety, lot string, planting assets.PlantingConditions) (assets.SeedLot, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleProducer); err != nil {
		return assets.SeedLot{}, err
	}
	key, err := c.lots.Key(caller.Address, variety, lot)
	if err != nil {
		return assets.SeedLot{}, err
	}
	rec, err := c.lots.Read(store, key)
	if err != nil {
		return assets.SeedLot{}, err
	}
	if err := lifecycle.SeedLotCanPlant(caller, rec); err != nil {
		return assets.SeedLot{}, err
	}
	rec.State = assets.SeedLotPlanted
	rec.Planting = &planting
	if err := c.lots.Write(store, key, rec); err != nil {
		return assets.SeedLot{}, err
	}
	return rec, nil
}

// Read returns a lot by its exact composite key attributes. Only the owner
// or an admin may read it.
func (c *SeedLotContract) Read(store statestore.Store, caller lifecycle.Caller, owner, variety, lot string) (assets.SeedLot, error) {
	if err := lifecycle.RequireSelfOrAdmin(caller, owner); err != nil {
		return assets.SeedLot{}, err
	}
	key, err := c.lots.Key(owner, variety, lot)
	if err != nil {
		return assets.SeedLot{}, err
	}
	return c.lots.Read(store, key)
}

// List returns the owner's lots, optionally narrowed to one variety.
func (c *SeedLotContract) List(store statestore.Store, caller lifecycle.Caller, owner, variety string) ([]assets.SeedLot, error) {
	if err := lifecycle.RequireSelfOrAdmin(caller, owner); err != nil {
		return nil, err
	}
	prefixAttrs := []string{owner}
	if variety != "" {
		prefixAttrs = append(prefixAttrs, variety)
	}
	return c.lots.List(store, prefixAttrs...)
}

// FindByLot locates a lot knowing only its human-facing lot code. This is a
// namespace-wide scan: lot codes are not guaranteed unique across owners,
// and the first match in key order wins. Only the owner of the matched lot
// or an admin gets the record back.
func (c *SeedLotContract) FindByLot(store statestore.Store, caller lifecycle.Caller, lot string) (assets.SeedLot, string, error) {
	if err := lifecycle.RequireNonEmpty("lote", lot); err != nil {
		return assets.SeedLot{}, "", err
	}
	rec, key, err := c.lots.FindFirst(store, nil, func(r assets.SeedLot) bool {
		return r.Lot == lot
	})
	if err != nil {
		return assets.SeedLot{}, "", err
	}
	if err := lifecycle.RequireSelfOrAdmin(caller, rec.Owner); err != nil {
		return assets.SeedLot{}, "", err
	}
	return rec, key, nil
}
