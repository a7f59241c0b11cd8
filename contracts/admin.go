package contracts

import (
	"encoding/json"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/registry"
	"github.com/agrofresa/fresachain/statestore"
)

// EventUserRegistered is emitted when a user record is created.
const EventUserRegistered = "usuario_registrado"

// AdminContract manages user records. Every user is stored under a primary
// key (rol / address) and a reverse key (address / rol) whose only purpose
// is resolving an address without scanning all roles; the pair is always
// written and deleted together.
type AdminContract struct {
	users     *registry.Registry[assets.User]
	bootstrap assets.User
}

// Bootstrap creates the initial admin user. Idempotent: when the admin
// record already exists the call is a no-op, so ledger initialization can be
// replayed freely.
func (c *AdminContract) Bootstrap(store statestore.Store) (assets.User, bool, error) {
	key, err := c.users.Key(c.bootstrap.Role, c.bootstrap.Address)
	if err != nil {
		return assets.User{}, false, err
	}
	exists, err := c.users.Exists(store, key)
	if err != nil {
		return assets.User{}, false, err
	}
	if exists {
		return c.bootstrap, false, nil
	}
	if err := c.writePair(store, key, c.bootstrap); err != nil {
		return assets.User{}, false, err
	}
	return c.bootstrap, true, nil
}

// Register creates a user under both keys and raises the registration
// event. Admin only; a user already registered under (rol, address) fails
// with AlreadyExists.
func (c *AdminContract) Register(store statestore.Store, caller lifecycle.Caller, name, address, role, identityID string) (assets.User, []Event, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleAdmin); err != nil {
		return assets.User{}, nil, err
	}
	if err := lifecycle.RequireNonEmpty("nombre", name); err != nil {
		return assets.User{}, nil, err
	}
	if err := lifecycle.RequireNonEmpty("rol", role); err != nil {
		return assets.User{}, nil, err
	}
	if err := lifecycle.RequireNonEmpty("metamaskAddress", address); err != nil {
		return assets.User{}, nil, err
	}

	key, err := c.users.Key(role, address)
	if err != nil {
		return assets.User{}, nil, err
	}
	user := assets.User{Name: name, Role: role, Address: address, IdentityID: identityID}
	exists, err := c.users.Exists(store, key)
	if err != nil {
		return assets.User{}, nil, err
	}
	if exists {
		return assets.User{}, nil, fault.New(fault.AlreadyExists, "user already exists with address %q", address)
	}
	if err := c.writePair(store, key, user); err != nil {
		return assets.User{}, nil, err
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return assets.User{}, nil, err
	}
	return user, []Event{{Type: EventUserRegistered, Payload: payload}}, nil
}

// Delete removes a user's primary and reverse keys in the same invocation;
// a dangling reverse key is never left behind.
func (c *AdminContract) Delete(store statestore.Store, caller lifecycle.Caller, address string) error {
	if err := lifecycle.RequireRole(caller, assets.RoleAdmin); err != nil {
		return err
	}
	user, primaryKey, err := userByAddress(store, c.users, address)
	if err != nil {
		return err
	}
	reverseKey, err := c.reverseKey(user)
	if err != nil {
		return err
	}
	if err := store.Delete(primaryKey); err != nil {
		return err
	}
	return store.Delete(reverseKey)
}

// Read returns a user by address. Admin or the user themselves.
func (c *AdminContract) Read(store statestore.Store, caller lifecycle.Caller, address string) (assets.User, string, error) {
	if caller.Address != address {
		if err := lifecycle.RequireRole(caller, assets.RoleAdmin); err != nil {
			return assets.User{}, "", err
		}
	}
	return userByAddress(store, c.users, address)
}

// ListByRole returns every user holding a role. Admin only; an empty result
// is NotFound, matching the read semantics of the other contracts.
func (c *AdminContract) ListByRole(store statestore.Store, caller lifecycle.Caller, role string) ([]assets.User, error) {
	if err := lifecycle.RequireRole(caller, assets.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := c.users.List(store, role)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fault.New(fault.NotFound, "no users with role %q", role)
	}
	return users, nil
}

func (c *AdminContract) writePair(store statestore.Store, primaryKey string, user assets.User) error {
	if err := c.users.Write(store, primaryKey, user); err != nil {
		return err
	}
	reverseKey, err := c.reverseKey(user)
	if err != nil {
		return err
	}
	return store.Put(reverseKey, []byte(assets.ReverseKeySentinel))
}

func (c *AdminContract) reverseKey(user assets.User) (string, error) {
	reverse := registry.New[struct{}](assets.NamespaceUserByAddr)
	return reverse.Key(user.Address, user.Role)
}
