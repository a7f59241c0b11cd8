package contracts

import (
	"encoding/json"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/statestore"
)

// Invocation is the wire format of one ledger transaction: which contract
// and operation to run, the verified caller tuple, and operation arguments.
// Argument order and names are part of the contract surface.
type Invocation struct {
	Contract string           `json:"contract"`
	Op       string           `json:"op"`
	Caller   lifecycle.Caller `json:"caller"`
	Args     json.RawMessage  `json:"args"`
}

// Result carries the decoded outcome of an invocation back to the host.
type Result struct {
	Data   interface{}
	Events []Event
}

// Contract names on the wire.
const (
	ContractSeedLot = "loteSemillas"
	ContractHarvest = "cosechaFresas"
	ContractPackage = "paqueteFresas"
	ContractAdmin   = "admin"
)

type seedLotStoreArgs struct {
	Lot     string                   `json:"lote"`
	Variety string                   `json:"variedad"`
	Tons    float64                  `json:"toneladas"`
	Storage assets.StorageConditions `json:"condicionesAlmacenamiento"`
}

type seedLotPlantArgs struct {
	Variety  string                    `json:"variedad"`
	Lot      string                    `json:"lote"`
	Planting assets.PlantingConditions `json:"condicionesSiembra"`
}

type seedLotReadArgs struct {
	Owner   string `json:"propietario"`
	Variety string `json:"variedad"`
	Lot     string `json:"lote"`
}

type seedLotListArgs struct {
	Owner   string `json:"propietario"`
	Variety string `json:"variedad"`
}

type seedLotFindArgs struct {
	Lot string `json:"lote"`
}

type harvestArgs struct {
	SeedLotKey  string  `json:"idLoteSemillas"`
	BatchID     string  `json:"cosechaID"`
	Kilos       float64 `json:"cantidadKilos"`
	Conditions  string  `json:"condicionesRecoleccion"`
	Temperature float64 `json:"tempDuranteCosecha"`
}

type harvestKeyArgs struct {
	Key string `json:"key"`
}

type harvestListArgs struct {
	Owner string `json:"propietario"`
}

type packArgs struct {
	HarvestKey    string   `json:"idCosecha"`
	PackType      string   `json:"tipoEmpaque"`
	PackingCenter string   `json:"centroEmpaque"`
	PackDate      string   `json:"fechaEmpaque"`
	PackageIDs    []string `json:"paquetesIDs"`
}

type harvestRefArgs struct {
	HarvestKey string `json:"idCosecha"`
}

type collectArgs struct {
	HarvestKey string                `json:"idCosecha"`
	Data       assets.CollectionData `json:"datos"`
}

type deliverArgs struct {
	HarvestKey string              `json:"idCosecha"`
	Data       assets.DeliveryData `json:"datos"`
}

type retailPurchaseArgs struct {
	PackageID string `json:"idPaquete"`
}

type retailCollectArgs struct {
	Retailer string                `json:"minorista"`
	Data     assets.CollectionData `json:"datos"`
}

type retailDeliverArgs struct {
	Retailer string              `json:"minorista"`
	Data     assets.DeliveryData `json:"datos"`
}

type holdingsArgs struct {
	Owner   string `json:"propietario"`
	Variety string `json:"variedad"`
}

type registerUserArgs struct {
	Name       string `json:"nombre"`
	Address    string `json:"metamaskAddress"`
	Role       string `json:"rol"`
	IdentityID string `json:"fabricIdentityId"`
}

type userAddressArgs struct {
	Address string `json:"metamaskAddress"`
}

type userRoleArgs struct {
	Role string `json:"rol"`
}

// Execute runs one invocation against the given store. All writes performed
// by the operation go through store; atomicity is the host's job.
func (s *Set) Execute(store statestore.Store, inv Invocation) (*Result, error) {
	switch inv.Contract {
	case ContractSeedLot:
		return s.executeSeedLot(store, inv)
	case ContractHarvest:
		return s.executeHarvest(store, inv)
	case ContractPackage:
		return s.executePackage(store, inv)
	case ContractAdmin:
		return s.executeAdmin(store, inv)
	}
	return nil, fault.New(fault.Validation, "unknown contract %q", inv.Contract)
}

func (s *Set) executeSeedLot(store statestore.Store, inv Invocation) (*Result, error) {
	switch inv.Op {
	case "almacenarLote":
		var a seedLotStoreArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.SeedLots.Store(store, inv.Caller, a.Lot, a.Variety, a.Tons, a.Storage)
		return wrap(rec, nil, err)
	case "sembrarLote":
		var a seedLotPlantArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.SeedLots.Plant(store, inv.Caller, a.Variety, a.Lot, a.Planting)
		return wrap(rec, nil, err)
	case "leerLote":
		var a seedLotReadArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.SeedLots.Read(store, inv.Caller, a.Owner, a.Variety, a.Lot)
		return wrap(rec, nil, err)
	case "listarLotes":
		var a seedLotListArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		recs, err := s.SeedLots.List(store, inv.Caller, a.Owner, a.Variety)
		return wrap(recs, nil, err)
	case "buscarLotePorCodigo":
		var a seedLotFindArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, key, err := s.SeedLots.FindByLot(store, inv.Caller, a.Lot)
		return wrap(map[string]interface{}{"asset": rec, "key": key}, nil, err)
	}
	return nil, fault.New(fault.Validation, "unknown operation %q on contract %q", inv.Op, inv.Contract)
}

func (s *Set) executeHarvest(store statestore.Store, inv Invocation) (*Result, error) {
	switch inv.Op {
	case "cosecharFresas":
		var a harvestArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.Harvests.Harvest(store, inv.Caller, a.SeedLotKey, a.BatchID, a.Kilos, a.Conditions, a.Temperature)
		if err != nil {
			return nil, err
		}
		key, err := s.Harvests.KeyFor(rec)
		return wrap(map[string]interface{}{"asset": rec, "key": key}, nil, err)
	case "leerCosecha":
		var a harvestKeyArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.Harvests.Read(store, a.Key)
		return wrap(rec, nil, err)
	case "existeCosecha":
		var a harvestKeyArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		exists, err := s.Harvests.Exists(store, a.Key)
		return wrap(exists, nil, err)
	case "listarCosechasPorAgricultor":
		var a harvestListArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		recs, err := s.Harvests.ListByOwner(store, inv.Caller, a.Owner)
		return wrap(recs, nil, err)
	}
	return nil, fault.New(fault.Validation, "unknown operation %q on contract %q", inv.Op, inv.Contract)
}

func (s *Set) executePackage(store statestore.Store, inv Invocation) (*Result, error) {
	switch inv.Op {
	case "empacarFresas":
		var a packArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		recs, err := s.Packages.Pack(store, inv.Caller, a.HarvestKey, a.PackType, a.PackingCenter, a.PackDate, a.PackageIDs)
		return wrap(recs, nil, err)
	case "comprarMayoreo":
		var a harvestRefArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		recs, err := s.Packages.WholesalePurchase(store, inv.Caller, a.HarvestKey)
		return wrap(recs, nil, err)
	case "recolectarDistribuidor":
		var a collectArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		n, err := s.Packages.CollectForDistributor(store, inv.Caller, a.HarvestKey, a.Data)
		return wrap(n, nil, err)
	case "entregarDistribuidor":
		var a deliverArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		n, err := s.Packages.DeliverToDistributor(store, inv.Caller, a.HarvestKey, a.Data)
		return wrap(n, nil, err)
	case "comprarMenudeo":
		var a retailPurchaseArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.Packages.RetailPurchase(store, inv.Caller, a.PackageID)
		return wrap(rec, nil, err)
	case "recolectarPuntoVenta":
		var a retailCollectArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		n, err := s.Packages.CollectForRetail(store, inv.Caller, a.Retailer, a.Data)
		return wrap(n, nil, err)
	case "entregarPuntoVenta":
		var a retailDeliverArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		n, err := s.Packages.DeliverToRetail(store, inv.Caller, a.Retailer, a.Data)
		return wrap(n, nil, err)
	case "leerPaquete":
		var a retailPurchaseArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		rec, err := s.Packages.Read(store, a.PackageID)
		return wrap(rec, nil, err)
	case "listarPaquetesPorCosecha":
		var a harvestRefArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		recs, err := s.Packages.ListByHarvest(store, a.HarvestKey)
		return wrap(recs, nil, err)
	case "listarPaquetesPorPropietario":
		var a holdingsArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		entry, err := s.Packages.Holdings(store, a.Owner, a.Variety)
		return wrap(entry, nil, err)
	}
	return nil, fault.New(fault.Validation, "unknown operation %q on contract %q", inv.Op, inv.Contract)
}

func (s *Set) executeAdmin(store statestore.Store, inv Invocation) (*Result, error) {
	switch inv.Op {
	case "crearAdminInicial":
		user, created, err := s.Admin.Bootstrap(store)
		return wrap(map[string]interface{}{"usuario": user, "created": created}, nil, err)
	case "registrarUsuario":
		var a registerUserArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		user, events, err := s.Admin.Register(store, inv.Caller, a.Name, a.Address, a.Role, a.IdentityID)
		return wrap(user, events, err)
	case "eliminarUsuario":
		var a userAddressArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		err := s.Admin.Delete(store, inv.Caller, a.Address)
		return wrap(map[string]string{"deleted": a.Address}, nil, err)
	case "leerUsuario":
		var a userAddressArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		user, key, err := s.Admin.Read(store, inv.Caller, a.Address)
		return wrap(map[string]interface{}{"usuario": user, "key": key}, nil, err)
	case "listarUsuariosPorRol":
		var a userRoleArgs
		if err := decodeArgs(inv.Args, &a); err != nil {
			return nil, err
		}
		users, err := s.Admin.ListByRole(store, inv.Caller, a.Role)
		return wrap(users, nil, err)
	}
	return nil, fault.New(fault.Validation, "unknown operation %q on contract %q", inv.Op, inv.Contract)
}

func decodeArgs(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		return fault.New(fault.Validation, "missing arguments")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fault.New(fault.Validation, "malformed arguments: %v", err)
	}
	return nil
}

func wrap(data interface{}, events []Event, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Events: events}, nil
}
