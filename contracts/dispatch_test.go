package contracts

import (
	"encoding/json"
	"testing"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/statestore"
	"github.com/stretchr/testify/assert"
)

func TestExecuteRoutesToContract(t *testing.T) {
	set, db := newTestEnv(t)

	update(t, db, func(s statestore.Store) error {
		result, err := set.Execute(s, Invocation{
			Contract: ContractSeedLot,
			Op:       "almacenarLote",
			Caller:   producerCaller,
			Args:     json.RawMessage(`{"lote":"L1","variedad":"albión","toneladas":2.5,"condicionesAlmacenamiento":{"temperatura":4,"humedad":60}}`),
		})
		assert.NoError(t, err)
		lot, ok := result.Data.(assets.SeedLot)
		assert.True(t, ok)
		assert.Equal(t, "L1", lot.Lot)
		assert.Equal(t, assets.SeedLotStored, lot.State)
		return nil
	})

	view(t, db, func(s statestore.Store) error {
		result, err := set.Execute(s, Invocation{
			Contract: ContractSeedLot,
			Op:       "leerLote",
			Caller:   producerCaller,
			Args:     json.RawMessage(`{"propietario":"0xPROD","variedad":"albión","lote":"L1"}`),
		})
		assert.NoError(t, err)
		lot, ok := result.Data.(assets.SeedLot)
		assert.True(t, ok)
		assert.Equal(t, 2.5, lot.Tons)
		return nil
	})
}

func TestExecuteHarvestReturnsAddressableKey(t *testing.T) {
	set, db := newTestEnv(t)
	lotKey := seedToPlanted(t, set, db, "albión", "L1")

	update(t, db, func(s statestore.Store) error {
		args, err := json.Marshal(map[string]interface{}{
			"idLoteSemillas":         lotKey,
			"cosechaID":              "C1",
			"cantidadKilos":          120,
			"condicionesRecoleccion": "soleado",
			"tempDuranteCosecha":     18,
		})
		assert.NoError(t, err)

		result, err := set.Execute(s, Invocation{
			Contract: ContractHarvest,
			Op:       "cosecharFresas",
			Caller:   harvesterCaller,
			Args:     args,
		})
		assert.NoError(t, err)

		data, ok := result.Data.(map[string]interface{})
		assert.True(t, ok)
		key, ok := data["key"].(string)
		assert.True(t, ok)

		// The returned key addresses the batch directly.
		batch, err := set.Harvests.Read(s, key)
		assert.NoError(t, err)
		assert.Equal(t, "C1", batch.BatchID)
		return nil
	})
}

func TestExecuteCarriesEvents(t *testing.T) {
	set, db := newTestEnv(t)

	update(t, db, func(s statestore.Store) error {
		result, err := set.Execute(s, Invocation{
			Contract: ContractAdmin,
			Op:       "registrarUsuario",
			Caller:   adminCaller,
			Args:     json.RawMessage(`{"nombre":"Juan","metamaskAddress":"0xJUAN","rol":"agricultor"}`),
		})
		assert.NoError(t, err)
		assert.Len(t, result.Events, 1)
		assert.Equal(t, EventUserRegistered, result.Events[0].Type)
		return nil
	})
}

func TestExecuteUnknownContractAndOp(t *testing.T) {
	set, db := newTestEnv(t)

	view(t, db, func(s statestore.Store) error {
		_, err := set.Execute(s, Invocation{Contract: "nope", Op: "x", Caller: adminCaller})
		assert.True(t, fault.IsCode(err, fault.Validation))

		_, err = set.Execute(s, Invocation{Contract: ContractSeedLot, Op: "nope", Caller: adminCaller})
		assert.True(t, fault.IsCode(err, fault.Validation))
		return nil
	})
}

func TestExecuteRejectsMalformedArgs(t *testing.T) {
	set, db := newTestEnv(t)

	view(t, db, func(s statestore.Store) error {
		_, err := set.Execute(s, Invocation{
			Contract: ContractSeedLot,
			Op:       "almacenarLote",
			Caller:   producerCaller,
			Args:     json.RawMessage(`{not json`),
		})
		assert.True(t, fault.IsCode(err, fault.Validation))

		_, err = set.Execute(s, Invocation{
			Contract: ContractSeedLot,
			Op:       "almacenarLote",
			Caller:   producerCaller,
		})
		assert.True(t, fault.IsCode(err, fault.Validation))
		return nil
	})
}
