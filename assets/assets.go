// Package assets declares the records persisted on the ledger and the
// vocabulary shared by every contract: namespaces, roles and lifecycle
// states. JSON field names are part of the wire contract and match what the
// front end and the mirror database expect.
package assets

// Composite key namespaces. Each record type owns one namespace; package
// records are additionally stored under a second, batch-first namespace so
// both lookup-by-id and scan-by-batch are single prefix scans.
const (
	NamespaceSeedLot      = "loteSemillas"
	NamespaceHarvest      = "cosechaFresas"
	NamespacePackageByID  = "paqueteFresasID"
	NamespacePackage      = "paqueteFresas"
	NamespaceOwnerVariety = "propietarioPaqueteFresasVariedad"
	NamespaceUser         = "usuario"
	NamespaceUserByAddr   = "metamaskUsuario"
)

// Participant roles. The surrounding platform authenticates callers; the
// ledger only checks these values.
const (
	RoleAdmin       = "admin"
	RoleProducer    = "agricultor"
	RoleHarvester   = "responsableCosecha"
	RolePacker      = "empaquetador"
	RoleDistributor = "distribuidor"
	RoleTransporter = "transportista"
	RoleRetailer    = "minorista"
)

// Seed lot lifecycle states. The state only ever advances.
const (
	SeedLotStored    = "almacenado"
	SeedLotPlanted   = "sembrado"
	SeedLotHarvested = "cosechado"
)

// StorageConditions describes how a stored seed lot is kept.
type StorageConditions struct {
	Temperature float64 `json:"temperatura"`
	Humidity    float64 `json:"humedad"`
}

// PlantingConditions is recorded when a lot is planted.
type PlantingConditions struct {
	Place      string `json:"lugar"`
	Date       string `json:"fechaSiembra"`
	Inputs     string `json:"insumosUsados"`
	Treatments string `json:"tratamientosAplicados"`
}

// SeedLot is a batch of strawberry seeds owned by a producer.
// Key: loteSemillas / owner / variety / lot.
type SeedLot struct {
	Owner        string              `json:"propietarioAddress"`
	Lot          string              `json:"lote"`
	Variety      string              `json:"variedad"`
	Tons         float64             `json:"toneladas"`
	PurchaseDate string              `json:"fechaCompra"`
	State        string              `json:"estado"`
	Storage      *StorageConditions  `json:"condicionesAlmacenamiento,omitempty"`
	Planting     *PlantingConditions `json:"condicionesSiembra,omitempty"`
}

// HarvestBatch records one harvest taken from a seed lot. Terminal: once
// created it never changes state.
// Key: cosechaFresas / owner / variety / batchID / seedLotKey.
type HarvestBatch struct {
	BatchID        string  `json:"cosechaID"`
	SeedLotKey     string  `json:"idLoteSemillas"`
	Owner          string  `json:"propietario"`
	Variety        string  `json:"variedad"`
	TotalKilos     float64 `json:"kilosTotales"`
	RemainingKilos float64 `json:"kilosAunNoCosechados"`
	HarvestDate    string  `json:"fechaCosecha"`
	Collector      string  `json:"responsableCosecha"`
	Conditions     string  `json:"condicionesRecoleccion"`
	Temperature    float64 `json:"tempDuranteCosecha"`
}

// CollectionData is stamped by a transporter when packages are picked up.
type CollectionData struct {
	Carrier string `json:"empresaTransportista"`
	Date    string `json:"fechaRecoleccion"`
	Vehicle string `json:"vehiculo"`
}

// DeliveryData is stamped by a transporter on arrival.
type DeliveryData struct {
	Route       string `json:"ruta"`
	ArrivalDate string `json:"fechaLlegada"`
}

// Transit is one leg of a package's journey. Collection always precedes
// delivery; each is written at most once.
type Transit struct {
	Collection *CollectionData `json:"datosRecoleccion,omitempty"`
	Delivery   *DeliveryData   `json:"datosEntrega,omitempty"`
}

// Package is a retail unit packed from a harvest batch. Stored under two
// primary keys that must stay byte-identical:
// paqueteFresasID / packageID / harvestKey and
// paqueteFresas / harvestKey / packageID.
type Package struct {
	PackageID     string  `json:"idPaquete"`
	HarvestKey    string  `json:"idCosecha"`
	PackDate      string  `json:"fechaEmpaque"`
	Owner         string  `json:"propietarioAddress"`
	PackType      string  `json:"tipoEmpaque"`
	PackingCenter string  `json:"centroEmpaque"`
	ToDistributor Transit `json:"transporteDistribuidor"`
	ToRetail      Transit `json:"transportePuntoVenta"`
}

// OwnerVarietyIndex is the derived index answering "what does this owner
// hold of this variety". It lists full package copies, is rebuilt on every
// ownership change, and is deleted outright when it empties.
// Key: propietarioPaqueteFresasVariedad / owner / variety.
type OwnerVarietyIndex struct {
	Owner    string    `json:"propietarioAddress"`
	Variety  string    `json:"variedad"`
	Packages []Package `json:"paquetesFresas"`
}

// User links an external wallet address to a role and an internal identity.
// Primary key: usuario / rol / address. A reverse key
// metamaskUsuario / address / rol (value is a NUL sentinel) lets lookups by
// address avoid scanning every role.
type User struct {
	Name       string `json:"nombre"`
	Role       string `json:"rol"`
	Address    string `json:"metamaskAddress"`
	IdentityID string `json:"fabricIdentityId"`
}

// ReverseKeySentinel is the value stored under a user's reverse key.
const ReverseKeySentinel = "\x00"
