package contracts

import (
	"encoding/json"
	"testing"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/statestore"
	"github.com/stretchr/testify/assert"
)

func TestBootstrapIsIdempotent(t *testing.T) {
	set, db := newTestEnv(t)

	update(t, db, func(s statestore.Store) error {
		user, created, err := set.Admin.Bootstrap(s)
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, adminCaller.Address, user.Address)

		_, created, err = set.Admin.Bootstrap(s)
		assert.NoError(t, err)
		assert.False(t, created)
		return nil
	})
}

func TestRegisterUserWritesPairAndEvent(t *testing.T) {
	set, db := newTestEnv(t)

	update(t, db, func(s statestore.Store) error {
		user, events, err := set.Admin.Register(s, adminCaller, "Juan", "0xJUAN", assets.RoleProducer, "id-1")
		assert.NoError(t, err)
		assert.Equal(t, "0xJUAN", user.Address)

		assert.Len(t, events, 1)
		assert.Equal(t, EventUserRegistered, events[0].Type)
		var payload assets.User
		assert.NoError(t, json.Unmarshal(events[0].Payload, &payload))
		assert.Equal(t, user, payload)

		// The reverse key carries the sentinel, not the record.
		reverseKey, err := set.Admin.reverseKey(user)
		assert.NoError(t, err)
		val, err := s.Get(reverseKey)
		assert.NoError(t, err)
		assert.Equal(t, []byte(assets.ReverseKeySentinel), val)
		return nil
	})
}

func TestRegisterUserGuards(t *testing.T) {
	set, db := newTestEnv(t)

	err := statestore.Update(db, func(s statestore.Store) error {
		_, _, err := set.Admin.Register(s, producerCaller, "Juan", "0xJUAN", assets.RoleProducer, "")
		return err
	})
	assert.True(t, fault.IsCode(err, fault.Unauthorized))

	err = statestore.Update(db, func(s statestore.Store) error {
		_, _, err := set.Admin.Register(s, adminCaller, "", "0xJUAN", assets.RoleProducer, "")
		return err
	})
	assert.True(t, fault.IsCode(err, fault.Validation))

	registerUser(t, set, db, "Juan", "0xJUAN", assets.RoleProducer)
	err = statestore.Update(db, func(s statestore.Store) error {
		_, _, err := set.Admin.Register(s, adminCaller, "Juan 2", "0xJUAN", assets.RoleProducer, "")
		return err
	})
	assert.True(t, fault.IsCode(err, fault.AlreadyExists))
}

func TestDeleteUserRemovesBothKeys(t *testing.T) {
	set, db := newTestEnv(t)
	registerUser(t, set, db, "Juan", "0xJUAN", assets.RoleProducer)

	update(t, db, func(s statestore.Store) error {
		return set.Admin.Delete(s, adminCaller, "0xJUAN")
	})

	view(t, db, func(s statestore.Store) error {
		_, _, err := set.Admin.Read(s, adminCaller, "0xJUAN")
		assert.True(t, fault.IsCode(err, fault.NotFound))

		reverseKey, err := set.Admin.reverseKey(assets.User{Address: "0xJUAN", Role: assets.RoleProducer})
		assert.NoError(t, err)
		val, err := s.Get(reverseKey)
		assert.NoError(t, err)
		assert.Nil(t, val)
		return nil
	})

	// Deleting again reports the absence.
	err := statestore.Update(db, func(s statestore.Store) error {
		return set.Admin.Delete(s, adminCaller, "0xJUAN")
	})
	assert.True(t, fault.IsCode(err, fault.NotFound))
}

func TestReadUserGuards(t *testing.T) {
	set, db := newTestEnv(t)
	registerUser(t, set, db, "Juan", "0xJUAN", assets.RoleProducer)

	view(t, db, func(s statestore.Store) error {
		self := producerCaller
		self.Address = "0xJUAN"
		user, _, err := set.Admin.Read(s, self, "0xJUAN")
		assert.NoError(t, err)
		assert.Equal(t, "Juan", user.Name)

		_, _, err = set.Admin.Read(s, adminCaller, "0xJUAN")
		assert.NoError(t, err)

		_, _, err = set.Admin.Read(s, producerCaller, "0xJUAN")
		assert.True(t, fault.IsCode(err, fault.Unauthorized))
		return nil
	})
}

func TestListUsersByRole(t *testing.T) {
	set, db := newTestEnv(t)
	registerUser(t, set, db, "Juan", "0xJUAN", assets.RoleProducer)
	registerUser(t, set, db, "Ana", "0xANA", assets.RoleProducer)
	registerUser(t, set, db, "Distribuidora", "0xDIST2", assets.RoleDistributor)

	view(t, db, func(s statestore.Store) error {
		users, err := set.Admin.ListByRole(s, adminCaller, assets.RoleProducer)
		assert.NoError(t, err)
		assert.Len(t, users, 2)

		_, err = set.Admin.ListByRole(s, adminCaller, assets.RoleRetailer)
		assert.True(t, fault.IsCode(err, fault.NotFound))

		_, err = set.Admin.ListByRole(s, producerCaller, assets.RoleProducer)
		assert.True(t, fault.IsCode(err, fault.Unauthorized))
		return nil
	})
}
