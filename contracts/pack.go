package contracts

import (
	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/indexer"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// PackageContract manages packages from packing through wholesale, transit
// and retail sale. Every package lives under two primary keys (id-first and
// batch-first) that are kept byte-identical, plus a copy inside its owner's
// owner/variety index. Primary copies are always written before the index
// is touched.
type PackageContract struct {
	byID    *registry.Registry[assets.Package]
	byBatch *registry.Registry[assets.Package]
	batches *registry.Registry[assets.HarvestBatch]
	users   *registry.Registry[assets.User]
	idx     *indexer.Maintainer
}

// Pack creates one package per id from a harvest batch, owned by the batch
// owner. A package id already used for this batch fails with AlreadyExists
// and aborts the whole invocation, so replays never produce partial sets.
func (c *PackageContract) Pack(store statestore.Store, caller lifecycle.Caller, harvestKey, packType, packingCenter, packDate string, packageIDs []string) ([]assets.Package, error) {
	if err := lifecycle.RequireRole(caller, assets.RolePacker); err != nil {
		return nil, err
	}
	if err := lifecycle.RequireNonEmpty("tipoEmpaque", packType); err != nil {
		return nil, err
	}
	if err := lifecycle.RequireNonEmpty("fechaEmpaque", packDate); err != nil {
		return nil, err
	}
	if len(packageIDs) == 0 {
		return nil, fault.New(fault.Validation, "at least one package id is required")
	}
	// Owner and variety come from the referenced batch record, never from
	// picking fields out of the key string.
	batch, err := c.batches.Read(store, harvestKey)
	if err != nil {
		return nil, err
	}

	packed := make([]assets.Package, 0, len(packageIDs))
	for _, id := range packageIDs {
		if err := lifecycle.RequireNonEmpty("idPaquete", id); err != nil {
			return nil, err
		}
		pkg := assets.Package{
			PackageID:     id,
			HarvestKey:    harvestKey,
			PackDate:      packDate,
			Owner:         batch.Owner,
			PackType:      packType,
			PackingCenter: packingCenter,
		}
		idKey, batchKey, err := c.keysOf(pkg)
		if err != nil {
			return nil, err
		}
		if err := c.byID.Create(store, idKey, pkg); err != nil {
			return nil, err
		}
		if err := c.byBatch.Write(store, batchKey, pkg); err != nil {
			return nil, err
		}
		if err := c.idx.Add(store, batch.Owner, batch.Variety, pkg); err != nil {
			return nil, err
		}
		packed = append(packed, pkg)
	}
	return packed, nil
}

// WholesalePurchase transfers every package of a batch to the calling
// distributor. The caller must hold the distributor role AND be registered
// on the ledger as a distributor. Index entries of the prior owners are
// pruned in one grouped pass; an emptied entry is deleted.
func (c *PackageContract) WholesalePurchase(store statestore.Store, caller lifecycle.Caller, harvestKey string) ([]assets.Package, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleDistributor); err != nil {
		return nil, err
	}
	buyer, _, err := userByAddress(store, c.users, caller.Address)
	if err != nil {
		return nil, err
	}
	if buyer.Role != assets.RoleDistributor {
		return nil, fault.New(fault.Unauthorized, "user %q is registered as %q, not a distributor", caller.Address, buyer.Role)
	}
	batch, err := c.batches.Read(store, harvestKey)
	if err != nil {
		return nil, err
	}

	var (
		bought     []assets.Package
		byOldOwner = make(map[string][]assets.Package)
	)
	err = c.byBatch.Walk(store, []string{harvestKey}, func(key string, pkg assets.Package) (bool, error) {
		byOldOwner[pkg.Owner] = append(byOldOwner[pkg.Owner], pkg)
		pkg.Owner = caller.Address
		if err := c.writeBoth(store, pkg); err != nil {
			return false, err
		}
		bought = append(bought, pkg)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if len(bought) == 0 {
		return nil, fault.New(fault.NotFound, "no packages exist for harvest %q", harvestKey)
	}
	if err := c.idx.BulkTransfer(store, caller.Address, batch.Variety, bought, byOldOwner); err != nil {
		return nil, err
	}
	return bought, nil
}

// CollectForDistributor stamps the collection leg toward the distributor on
// every eligible package of a batch. Packages already collected, or still
// owned by someone who is not a registered distributor, are skipped; the
// operation is a batch sweep, not a per-package assertion.
func (c *PackageContract) CollectForDistributor(store statestore.Store, caller lifecycle.Caller, harvestKey string, data assets.CollectionData) (int, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleTransporter); err != nil {
		return 0, err
	}
	batch, err := c.batches.Read(store, harvestKey)
	if err != nil {
		return 0, err
	}
	stamped := 0
	err = c.byBatch.Walk(store, []string{harvestKey}, func(key string, pkg assets.Package) (bool, error) {
		if lifecycle.TransitCanCollect("transporteDistribuidor", pkg.ToDistributor) != nil {
			return true, nil
		}
		owner, _, err := userByAddress(store, c.users, pkg.Owner)
		if err != nil {
			if fault.IsCode(err, fault.NotFound) {
				return true, nil
			}
			return false, err
		}
		if owner.Role != assets.RoleDistributor {
			return true, nil
		}
		pkg.ToDistributor.Collection = &data
		if err := c.writeBoth(store, pkg); err != nil {
			return false, err
		}
		if err := c.idx.Refresh(store, pkg.Owner, batch.Variety, pkg); err != nil {
			return false, err
		}
		stamped++
		return true, nil
	})
	return stamped, err
}

// DeliverToDistributor stamps the delivery leg toward the distributor on
// every package of the batch that has been collected but not delivered.
func (c *PackageContract) DeliverToDistributor(store statestore.Store, caller lifecycle.Caller, harvestKey string, data assets.DeliveryData) (int, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleTransporter); err != nil {
		return 0, err
	}
	batch, err := c.batches.Read(store, harvestKey)
	if err != nil {
		return 0, err
	}
	stamped := 0
	err = c.byBatch.Walk(store, []string{harvestKey}, func(key string, pkg assets.Package) (bool, error) {
		if lifecycle.TransitCanDeliver("transporteDistribuidor", pkg.ToDistributor) != nil {
			return true, nil
		}
		pkg.ToDistributor.Delivery = &data
		if err := c.writeBoth(store, pkg); err != nil {
			return false, err
		}
		if err := c.idx.Refresh(store, pkg.Owner, batch.Variety, pkg); err != nil {
			return false, err
		}
		stamped++
		return true, nil
	})
	return stamped, err
}

// RetailPurchase transfers a single package to the calling retailer. A
// package that has already been delivered to a point of sale cannot be
// bought again.
func (c *PackageContract) RetailPurchase(store statestore.Store, caller lifecycle.Caller, packageID string) (assets.Package, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleRetailer); err != nil {
		return assets.Package{}, err
	}
	if err := lifecycle.RequireNonEmpty("idPaquete", packageID); err != nil {
		return assets.Package{}, err
	}
	pkg, _, err := c.byID.FindFirst(store, []string{packageID}, func(assets.Package) bool { return true })
	if err != nil {
		return assets.Package{}, err
	}
	if err := lifecycle.PackageRetailPurchasable(pkg); err != nil {
		return assets.Package{}, err
	}
	variety, err := c.varietyOf(pkg.HarvestKey)
	if err != nil {
		return assets.Package{}, err
	}

	oldOwner := pkg.Owner
	pkg.Owner = caller.Address
	if err := c.writeBoth(store, pkg); err != nil {
		return assets.Package{}, err
	}
	if err := c.idx.Move(store, oldOwner, caller.Address, variety, pkg); err != nil {
		return assets.Package{}, err
	}
	return pkg, nil
}

// CollectForRetail stamps the point-of-sale collection leg on every package
// the retailer holds, across varieties, skipping packages already collected
// for that leg.
func (c *PackageContract) CollectForRetail(store statestore.Store, caller lifecycle.Caller, retailer string, data assets.CollectionData) (int, error) {
	return c.stampRetailLeg(store, caller, retailer, func(pkg *assets.Package) bool {
		if lifecycle.TransitCanCollect("transportePuntoVenta", pkg.ToRetail) != nil {
			return false
		}
		pkg.ToRetail.Collection = &data
		return true
	})
}

// DeliverToRetail stamps the point-of-sale delivery leg on every package the
// retailer holds that has been collected but not delivered.
func (c *PackageContract) DeliverToRetail(store statestore.Store, caller lifecycle.Caller, retailer string, data assets.DeliveryData) (int, error) {
	return c.stampRetailLeg(store, caller, retailer, func(pkg *assets.Package) bool {
		if lifecycle.TransitCanDeliver("transportePuntoVenta", pkg.ToRetail) != nil {
			return false
		}
		pkg.ToRetail.Delivery = &data
		return true
	})
}

// Read locates a package by id alone through the id-first keys.
func (c *PackageContract) Read(store statestore.Store, packageID string) (assets.Package, error) {
	pkg, _, err := c.byID.FindFirst(store, []string{packageID}, func(assets.Package) bool { return true })
	return pkg, err
}

// ListByHarvest returns every package packed from a batch, via the
// batch-first keys.
func (c *PackageContract) ListByHarvest(store statestore.Store, harvestKey string) ([]assets.Package, error) {
	return c.byBatch.List(store, harvestKey)
}

// Holdings answers "what does this owner hold of this variety" from the
// derived index, without scanning packages.
func (c *PackageContract) Holdings(store statestore.Store, owner, variety string) (assets.OwnerVarietyIndex, error) {
	return c.idx.Read(store, owner, variety)
}

// stampRetailLeg walks a retailer's index entries and applies stamp to each
// eligible package, rewriting primaries first and the index entry once per
// variety.
func (c *PackageContract) stampRetailLeg(store statestore.Store, caller lifecycle.Caller, retailer string, stamp func(*assets.Package) bool) (int, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleTransporter); err != nil {
		return 0, err
	}
	if err := lifecycle.RequireNonEmpty("minorista", retailer); err != nil {
		return 0, err
	}
	entries, err := c.idx.ListByOwner(store, retailer)
	if err != nil {
		return 0, err
	}
	stamped := 0
	for _, entry := range entries {
		for _, pkg := range entry.Packages {
			if !stamp(&pkg) {
				continue
			}
			if err := c.writeBoth(store, pkg); err != nil {
				return stamped, err
			}
			if err := c.idx.Refresh(store, retailer, entry.Variety, pkg); err != nil {
				return stamped, err
			}
			stamped++
		}
	}
	return stamped, nil
}

func (c *PackageContract) keysOf(pkg assets.Package) (idKey, batchKey string, err error) {
	idKey, err = c.byID.Key(pkg.PackageID, pkg.HarvestKey)
	if err != nil {
		return "", "", err
	}
	batchKey, err = c.byBatch.Key(pkg.HarvestKey, pkg.PackageID)
	if err != nil {
		return "", "", err
	}
	return idKey, batchKey, nil
}

// writeBoth rewrites both primary copies of a package. Both writes marshal
// the same record, so the stored bytes stay identical.
func (c *PackageContract) writeBoth(store statestore.Store, pkg assets.Package) error {
	idKey, batchKey, err := c.keysOf(pkg)
	if err != nil {
		return err
	}
	if err := c.byID.Write(store, idKey, pkg); err != nil {
		return err
	}
	return c.byBatch.Write(store, batchKey, pkg)
}

// varietyOf recovers the variety attribute from a harvest composite key.
// Key layout: cosechaFresas / owner / variety / batchID / seedLotKey.
func (c *PackageContract) varietyOf(harvestKey string) (string, error) {
	attrs, err := c.batches.ParseKey(harvestKey)
	if err != nil {
		return "", err
	}
	if len(attrs) != 4 {
		return "", fault.New(fault.WrongAssetType, "harvest key %q has %d attributes, expected 4", harvestKey, len(attrs))
	}
	return attrs[1], nil
}
