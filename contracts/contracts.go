// Package contracts implements the transaction sets of the strawberry
// ledger: seed lots, harvest batches, packages and user administration.
// Each contract is a struct of methods over an injected statestore.Store;
// there is no shared base type, and nothing here owns process-wide state.
package contracts

import (
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/indexer"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// Clock stamps server-assigned dates (purchase, harvest). Injected so tests
// get stable timestamps.
type Clock func() time.Time

// Event is a fire-and-forget notification raised by a transaction. The host
// attaches it to the transaction result; nothing waits on it.
type Event struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

// Set bundles every contract with shared collaborators.
type Set struct {
	SeedLots *SeedLotContract
	Harvests *HarvestContract
	Packages *PackageContract
	Admin    *AdminContract
}

// NewSet wires the four contracts. bootstrap is the initial admin user
// created by the idempotent ledger initializer.
func NewSet(bootstrap assets.User, now Clock) *Set {
	if now == nil {
		now = time.Now
	}
	users := registry.New[assets.User](assets.NamespaceUser)
	lots := registry.New[assets.SeedLot](assets.NamespaceSeedLot)
	return &Set{
		SeedLots: &SeedLotContract{lots: lots, now: now},
		Harvests: &HarvestContract{
			batches: registry.New[assets.HarvestBatch](assets.NamespaceHarvest),
			lots:    lots,
			now:     now,
		},
		Packages: &PackageContract{
			byID:    registry.New[assets.Package](assets.NamespacePackageByID),
			byBatch: registry.New[assets.Package](assets.NamespacePackage),
			batches: registry.New[assets.HarvestBatch](assets.NamespaceHarvest),
			users:   users,
			idx:     indexer.New(),
		},
		Admin: &AdminContract{users: users, bootstrap: bootstrap},
	}
}

// userByAddress resolves a user from their wallet address alone. The reverse
// key (metamaskUsuario / address / rol) exists precisely so this does not
// scan every role; the record itself lives under the primary key.
func userByAddress(store statestore.Store, users *registry.Registry[assets.User], address string) (assets.User, string, error) {
	reverse := registry.New[struct{}](assets.NamespaceUserByAddr)
	prefix, err := reverse.Key(address)
	if err != nil {
		return assets.User{}, "", err
	}
	it, err := store.Scan(prefix)
	if err != nil {
		return assets.User{}, "", err
	}
	defer it.Close()
	for it.Next() {
		attrs, err := reverse.ParseKey(it.Key())
		if err != nil || len(attrs) != 2 {
			continue
		}
		primaryKey, err := users.Key(attrs[1], address)
		if err != nil {
			return assets.User{}, "", err
		}
		user, err := users.Read(store, primaryKey)
		if err != nil {
			if fault.IsCode(err, fault.NotFound) {
				continue
			}
			return assets.User{}, "", err
		}
		return user, primaryKey, nil
	}
	return assets.User{}, "", fault.New(fault.NotFound, "user with address %q not found", address)
}
