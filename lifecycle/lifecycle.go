// Package lifecycle enforces the per-asset state machines and the
// role/identity guards attached to each transition. Guards never touch the
// store; contracts call them after reading the current record and before
// writing anything, so a rejected transition leaves no trace.
package lifecycle

import (
	"strings"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
)

// Caller is the verified identity tuple every invocation carries. The
// surrounding platform authenticates it; the ledger trusts it verbatim.
type Caller struct {
	Address string `json:"address"`
	Role    string `json:"rol"`
}

// RequireRole rejects callers whose role does not match.
func RequireRole(caller Caller, role string) error {
	if caller.Role != role {
		return fault.New(fault.Unauthorized, "transaction requires role %q, caller has %q", role, caller.Role)
	}
	return nil
}

// RequireSelfOrAdmin allows the owner of a record, or an admin, through.
func RequireSelfOrAdmin(caller Caller, owner string) error {
	if caller.Address == owner || caller.Role == assets.RoleAdmin {
		return nil
	}
	return fault.New(fault.Unauthorized, "only %q or an admin may perform this operation", owner)
}

// RequireNonEmpty validates a user-supplied string field before any state is
// touched.
func RequireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fault.New(fault.Validation, "%s must not be empty", field)
	}
	return nil
}

// RequirePositive validates a user-supplied quantity.
func RequirePositive(field string, value float64) error {
	if value <= 0 {
		return fault.New(fault.Validation, "%s must be a positive number", field)
	}
	return nil
}

// SeedLotCanPlant checks the stored -> planted transition: producer role,
// caller owns the lot, lot still stored. The machine is one-directional, so
// a replay fails with IllegalTransition rather than reapplying.
func SeedLotCanPlant(caller Caller, lot assets.SeedLot) error {
	if err := RequireRole(caller, assets.RoleProducer); err != nil {
		return err
	}
	if lot.Owner != caller.Address {
		return fault.New(fault.Unauthorized, "producer %q does not own lot %q", caller.Address, lot.Lot)
	}
	if lot.State != assets.SeedLotStored {
		return fault.New(fault.IllegalTransition, "lot %q is %q, only %q lots can be planted", lot.Lot, lot.State, assets.SeedLotStored)
	}
	return nil
}

// SeedLotCanHarvest checks the planted -> harvested transition triggered by
// harvest batch creation: harvester role, lot currently planted.
func SeedLotCanHarvest(caller Caller, lot assets.SeedLot) error {
	if err := RequireRole(caller, assets.RoleHarvester); err != nil {
		return err
	}
	if lot.State != assets.SeedLotPlanted {
		return fault.New(fault.IllegalTransition, "lot %q is %q, not ready for harvest", lot.Lot, lot.State)
	}
	return nil
}

// TransitCanCollect checks the at-most-once collection rule for one leg.
func TransitCanCollect(leg string, t assets.Transit) error {
	if t.Collection != nil {
		return fault.New(fault.DuplicateOperation, "%s: package already collected", leg)
	}
	return nil
}

// TransitCanDeliver requires a prior collection and no prior delivery.
func TransitCanDeliver(leg string, t assets.Transit) error {
	if t.Collection == nil {
		return fault.New(fault.IllegalTransition, "%s: package has not been collected", leg)
	}
	if t.Delivery != nil {
		return fault.New(fault.DuplicateOperation, "%s: package already delivered", leg)
	}
	return nil
}

// PackageRetailPurchasable rejects retail purchase of a package that has
// already been delivered to a point of sale.
func PackageRetailPurchasable(pkg assets.Package) error {
	if pkg.ToRetail.Delivery != nil {
		return fault.New(fault.IllegalTransition, "package %q already delivered to a point of sale", pkg.PackageID)
	}
	return nil
}
