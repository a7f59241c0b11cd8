// Package indexer maintains the derived owner/variety index of packages.
// The index is denormalized (full package copies) so a holder query is one
// point read. Consistency discipline: callers write a package's primary
// copies first, then call into this package; the index is therefore never
// ahead of the primaries inside an invocation, and the host's transaction
// scope makes the whole set visible atomically.
package indexer

import (
	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// Maintainer applies index membership changes for package ownership moves.
type Maintainer struct {
	indexes *registry.Registry[assets.OwnerVarietyIndex]
}

// New creates a Maintainer over the owner/variety index namespace.
func New() *Maintainer {
	return &Maintainer{
		indexes: registry.New[assets.OwnerVarietyIndex](assets.NamespaceOwnerVariety),
	}
}

// Key returns the index key for an owner and variety.
func (m *Maintainer) Key(owner, variety string) (string, error) {
	return m.indexes.Key(owner, variety)
}

// Read loads an index entry; NotFound when the owner holds nothing of the
// variety.
func (m *Maintainer) Read(store statestore.Store, owner, variety string) (assets.OwnerVarietyIndex, error) {
	key, err := m.Key(owner, variety)
	if err != nil {
		return assets.OwnerVarietyIndex{}, err
	}
	return m.indexes.Read(store, key)
}

// ListByOwner returns every index entry of an owner, across varieties.
func (m *Maintainer) ListByOwner(store statestore.Store, owner string) ([]assets.OwnerVarietyIndex, error) {
	return m.indexes.List(store, owner)
}

// Add inserts a package into the index entry for (owner, variety), creating
// the entry when absent. A package already present (a replayed submission or
// a partially applied prior attempt) is not inserted twice.
func (m *Maintainer) Add(store statestore.Store, owner, variety string, pkg assets.Package) error {
	key, err := m.Key(owner, variety)
	if err != nil {
		return err
	}
	entry, err := m.readOrEmpty(store, key, owner, variety)
	if err != nil {
		return err
	}
	if !containsPackage(entry.Packages, pkg) {
		entry.Packages = append(entry.Packages, pkg)
	} else {
		replacePackage(entry.Packages, pkg)
	}
	return m.indexes.Write(store, key, entry)
}

// Remove takes a package out of the (owner, variety) entry. An entry left
// empty is deleted entirely so later scans never see ghost owners. Removing
// from a missing entry is a no-op; the membership invariant already holds.
func (m *Maintainer) Remove(store statestore.Store, owner, variety string, pkg assets.Package) error {
	return m.removeAll(store, owner, variety, []assets.Package{pkg})
}

// Move re-homes a package from one owner's entry to another's. The primary
// copies must already carry the new owner.
func (m *Maintainer) Move(store statestore.Store, oldOwner, newOwner, variety string, pkg assets.Package) error {
	if err := m.Remove(store, oldOwner, variety, pkg); err != nil {
		return err
	}
	return m.Add(store, newOwner, variety, pkg)
}

// Refresh rewrites the stored copy of a package inside its current owner's
// entry after a mutation that did not change ownership (a transit stamp).
func (m *Maintainer) Refresh(store statestore.Store, owner, variety string, pkg assets.Package) error {
	return m.Add(store, owner, variety, pkg)
}

// BulkTransfer moves many packages to one new owner. Removals are grouped
// by prior owner so each prior entry is rewritten once regardless of how
// many packages it loses; transferred carries the post-transfer copies that
// land in the new owner's entry.
func (m *Maintainer) BulkTransfer(store statestore.Store, newOwner, variety string, transferred []assets.Package, byOldOwner map[string][]assets.Package) error {
	for oldOwner, pkgs := range byOldOwner {
		if err := m.removeAll(store, oldOwner, variety, pkgs); err != nil {
			return err
		}
	}
	key, err := m.Key(newOwner, variety)
	if err != nil {
		return err
	}
	entry, err := m.readOrEmpty(store, key, newOwner, variety)
	if err != nil {
		return err
	}
	for _, pkg := range transferred {
		if containsPackage(entry.Packages, pkg) {
			replacePackage(entry.Packages, pkg)
		} else {
			entry.Packages = append(entry.Packages, pkg)
		}
	}
	return m.indexes.Write(store, key, entry)
}

func (m *Maintainer) removeAll(store statestore.Store, owner, variety string, pkgs []assets.Package) error {
	key, err := m.Key(owner, variety)
	if err != nil {
		return err
	}
	data, err := store.Get(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	entry, err := m.indexes.Read(store, key)
	if err != nil {
		return err
	}
	remaining := entry.Packages[:0]
	for _, member := range entry.Packages {
		if !matchesAny(member, pkgs) {
			remaining = append(remaining, member)
		}
	}
	if len(remaining) == 0 {
		return store.Delete(key)
	}
	entry.Packages = remaining
	return m.indexes.Write(store, key, entry)
}

func (m *Maintainer) readOrEmpty(store statestore.Store, key, owner, variety string) (assets.OwnerVarietyIndex, error) {
	data, err := store.Get(key)
	if err != nil {
		return assets.OwnerVarietyIndex{}, err
	}
	if len(data) == 0 {
		return assets.OwnerVarietyIndex{Owner: owner, Variety: variety, Packages: []assets.Package{}}, nil
	}
	return m.indexes.Read(store, key)
}

// Package identity inside an index is (PackageID, HarvestKey); the rest of
// the record is payload.
func samePackage(a, b assets.Package) bool {
	return a.PackageID == b.PackageID && a.HarvestKey == b.HarvestKey
}

func containsPackage(members []assets.Package, pkg assets.Package) bool {
	for _, member := range members {
		if samePackage(member, pkg) {
			return true
		}
	}
	return false
}

func replacePackage(members []assets.Package, pkg assets.Package) {
	for i, member := range members {
		if samePackage(member, pkg) {
			members[i] = pkg
			return
		}
	}
}

func matchesAny(member assets.Package, pkgs []assets.Package) bool {
	for _, pkg := range pkgs {
		if samePackage(member, pkg) {
			return true
		}
	}
	return false
}
