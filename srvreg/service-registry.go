package srvreg

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agrofresa/fresachain/contracts"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/repository"
	"github.com/agrofresa/fresachain/statestore"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

// Caller identity headers. The gateway in front of this service verifies
// wallet signatures; by the time a request lands here the headers are
// trusted.
const (
	HeaderCallerAddress = "X-Caller-Address"
	HeaderCallerRole    = "X-Caller-Role"
)

// Request represents the client's HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Response represents the computed response from server
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Error      string            `json:"error,omitempty"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey uniquely identifies a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry maps the HTTP surface onto ledger invocations. Write
// operations are submitted to consensus; read operations run against a
// read-only snapshot of the local store.
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool
	mu          sync.RWMutex
	repository  *repository.Repository
	badgerDB    *badger.DB
	contracts   *contracts.Set
	logger      cmtlog.Logger
}

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

const consensusTimeout = 30 * time.Second

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(repo *repository.Repository, badgerDB *badger.DB, contractSet *contracts.Set, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		repository:  repo,
		badgerDB:    badgerDB,
		contracts:   contractSet,
		logger:      logger,
	}
}

// GenerateRequestID generates a deterministic ID for the request
func (r *Request) GenerateRequestID() {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s-%s-%s-%s", r.Path, r.Method, r.Body, r.Timestamp)))
	r.RequestID = hex.EncodeToString(hasher.Sum(nil)[:16])
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	// Try exact match first
	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, true
		}
	}

	// Try pattern matching
	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}

		if sr.exactRoutes[routeKey] {
			continue
		}

		if matchPath(routeKey.Path, path) {
			return handler, true
		}
	}

	return nil, false
}

// matchPath does simple pattern matching for routes
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			continue
		}
		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// RegisterDefaultServices sets up the full contract surface. Pattern routes
// keep a literal verb segment after the asset name so no two patterns can
// match the same path.
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Seed lots
	sr.RegisterHandler("POST", "/api/lotes", true, sr.StoreSeedLotHandler)
	sr.RegisterHandler("POST", "/api/lotes/sembrar", true, sr.PlantSeedLotHandler)
	sr.RegisterHandler("GET", "/api/lotes/leer/:propietario/:variedad/:lote", false, sr.ReadSeedLotHandler)
	sr.RegisterHandler("GET", "/api/lotes/listar/:propietario", false, sr.ListSeedLotsHandler)
	sr.RegisterHandler("GET", "/api/lotes/listar/:propietario/:variedad", false, sr.ListSeedLotsByVarietyHandler)
	sr.RegisterHandler("GET", "/api/lotes/codigo/:lote", false, sr.FindSeedLotHandler)

	// Harvests
	sr.RegisterHandler("POST", "/api/cosechas", true, sr.HarvestHandler)
	sr.RegisterHandler("POST", "/api/cosechas/leer", true, sr.ReadHarvestHandler)
	sr.RegisterHandler("POST", "/api/cosechas/existe", true, sr.HarvestExistsHandler)
	sr.RegisterHandler("GET", "/api/cosechas/agricultor/:propietario", false, sr.ListHarvestsHandler)

	// Packages
	sr.RegisterHandler("POST", "/api/paquetes", true, sr.PackHandler)
	sr.RegisterHandler("POST", "/api/paquetes/compra-mayoreo", true, sr.WholesalePurchaseHandler)
	sr.RegisterHandler("POST", "/api/paquetes/recoleccion-distribuidor", true, sr.CollectForDistributorHandler)
	sr.RegisterHandler("POST", "/api/paquetes/entrega-distribuidor", true, sr.DeliverToDistributorHandler)
	sr.RegisterHandler("POST", "/api/paquetes/compra-menudeo", true, sr.RetailPurchaseHandler)
	sr.RegisterHandler("POST", "/api/paquetes/recoleccion-punto-venta", true, sr.CollectForRetailHandler)
	sr.RegisterHandler("POST", "/api/paquetes/entrega-punto-venta", true, sr.DeliverToRetailHandler)
	sr.RegisterHandler("GET", "/api/paquetes/leer/:id", false, sr.ReadPackageHandler)
	sr.RegisterHandler("POST", "/api/paquetes/por-cosecha", true, sr.ListPackagesByHarvestHandler)
	sr.RegisterHandler("GET", "/api/paquetes/propietario/:propietario/:variedad", false, sr.HoldingsHandler)

	// Users
	sr.RegisterHandler("POST", "/api/usuarios", true, sr.RegisterUserHandler)
	sr.RegisterHandler("DELETE", "/api/usuarios/:address", false, sr.DeleteUserHandler)
	sr.RegisterHandler("GET", "/api/usuarios/leer/:address", false, sr.ReadUserHandler)
	sr.RegisterHandler("GET", "/api/usuarios/rol/:rol", false, sr.ListUsersByRoleHandler)

	// Mirror and system endpoints
	sr.RegisterHandler("GET", "/api/tx/:hash", false, sr.GetTransactionHandler)
	sr.RegisterHandler("GET", "/api/tx/caller/:address", false, sr.GetTransactionsByCallerHandler)
	sr.RegisterHandler("GET", "/api/status", true, sr.StatusHandler)
}

func (sr *ServiceRegistry) callerOf(req *Request) lifecycle.Caller {
	return lifecycle.Caller{
		Address: req.Headers[HeaderCallerAddress],
		Role:    req.Headers[HeaderCallerRole],
	}
}

func rawArgs(args interface{}) (json.RawMessage, error) {
	switch v := args.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return v, nil
	case string:
		if v == "" {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(args)
	}
}

// invoke submits a write operation to consensus and waits for commitment.
func (sr *ServiceRegistry) invoke(req *Request, contract, op string, args interface{}) (*Response, error) {
	raw, err := rawArgs(args)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid arguments: "+err.Error()),
			fmt.Errorf("invalid arguments: %w", err)
	}

	inv := contracts.Invocation{
		Contract: contract,
		Op:       op,
		Caller:   sr.callerOf(req),
		Args:     raw,
	}

	ctx, cancel := context.WithTimeout(context.Background(), consensusTimeout)
	defer cancel()

	result, repoErr := sr.repository.SubmitInvocation(ctx, inv)
	if repoErr != nil {
		sr.logger.Error("Consensus submission failed",
			"op", op, "code", repoErr.Code, "detail", repoErr.Detail)
		return errorResponse(http.StatusInternalServerError, repoErr.Message), fmt.Errorf("%s: %s", repoErr.Code, repoErr.Detail)
	}

	if result.Code != 0 {
		status := statusForResultCode(result.Code)
		return errorResponse(status, result.Log), fmt.Errorf("invocation rejected: %s", result.Log)
	}

	body, err := json.Marshal(map[string]interface{}{
		"data":         json.RawMessage(orEmptyObject(result.Data)),
		"tx_hash":      result.TxHash,
		"block_height": result.BlockHeight,
	})
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize response"), err
	}

	return &Response{
		StatusCode: http.StatusAccepted,
		Headers:    defaultHeaders,
		Body:       string(body),
	}, nil
}

// query runs a read operation against a snapshot of the local store, without
// consensus.
func (sr *ServiceRegistry) query(req *Request, contract, op string, args interface{}) (*Response, error) {
	raw, err := rawArgs(args)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid arguments: "+err.Error()),
			fmt.Errorf("invalid arguments: %w", err)
	}

	inv := contracts.Invocation{
		Contract: contract,
		Op:       op,
		Caller:   sr.callerOf(req),
		Args:     raw,
	}

	var result *contracts.Result
	viewErr := statestore.View(sr.badgerDB, func(store statestore.Store) error {
		var execErr error
		result, execErr = sr.contracts.Execute(store, inv)
		return execErr
	})
	if viewErr != nil {
		status := statusForFault(fault.CodeOf(viewErr))
		return errorResponse(status, viewErr.Error()), viewErr
	}

	body, err := json.Marshal(map[string]interface{}{"data": result.Data})
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize response"), err
	}

	return &Response{
		StatusCode: http.StatusOK,
		Headers:    defaultHeaders,
		Body:       string(body),
	}, nil
}

// Seed lot handlers

func (sr *ServiceRegistry) StoreSeedLotHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractSeedLot, "almacenarLote", req.Body)
}

func (sr *ServiceRegistry) PlantSeedLotHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractSeedLot, "sembrarLote", req.Body)
}

func (sr *ServiceRegistry) ReadSeedLotHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 7 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractSeedLot, "leerLote", map[string]string{
		"propietario": parts[4],
		"variedad":    parts[5],
		"lote":        parts[6],
	})
}

func (sr *ServiceRegistry) ListSeedLotsHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractSeedLot, "listarLotes", map[string]string{
		"propietario": parts[4],
	})
}

func (sr *ServiceRegistry) ListSeedLotsByVarietyHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 6 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractSeedLot, "listarLotes", map[string]string{
		"propietario": parts[4],
		"variedad":    parts[5],
	})
}

func (sr *ServiceRegistry) FindSeedLotHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractSeedLot, "buscarLotePorCodigo", map[string]string{
		"lote": parts[4],
	})
}

// Harvest handlers

func (sr *ServiceRegistry) HarvestHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractHarvest, "cosecharFresas", req.Body)
}

func (sr *ServiceRegistry) ReadHarvestHandler(req *Request) (*Response, error) {
	return sr.query(req, contracts.ContractHarvest, "leerCosecha", req.Body)
}

func (sr *ServiceRegistry) HarvestExistsHandler(req *Request) (*Response, error) {
	return sr.query(req, contracts.ContractHarvest, "existeCosecha", req.Body)
}

func (sr *ServiceRegistry) ListHarvestsHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractHarvest, "listarCosechasPorAgricultor", map[string]string{
		"propietario": parts[4],
	})
}

// Package handlers

func (sr *ServiceRegistry) PackHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "empacarFresas", req.Body)
}

func (sr *ServiceRegistry) WholesalePurchaseHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "comprarMayoreo", req.Body)
}

func (sr *ServiceRegistry) CollectForDistributorHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "recolectarDistribuidor", req.Body)
}

func (sr *ServiceRegistry) DeliverToDistributorHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "entregarDistribuidor", req.Body)
}

func (sr *ServiceRegistry) RetailPurchaseHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "comprarMenudeo", req.Body)
}

func (sr *ServiceRegistry) CollectForRetailHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "recolectarPuntoVenta", req.Body)
}

func (sr *ServiceRegistry) DeliverToRetailHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractPackage, "entregarPuntoVenta", req.Body)
}

func (sr *ServiceRegistry) ReadPackageHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractPackage, "leerPaquete", map[string]string{
		"idPaquete": parts[4],
	})
}

func (sr *ServiceRegistry) ListPackagesByHarvestHandler(req *Request) (*Response, error) {
	return sr.query(req, contracts.ContractPackage, "listarPaquetesPorCosecha", req.Body)
}

func (sr *ServiceRegistry) HoldingsHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 6 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractPackage, "listarPaquetesPorPropietario", map[string]string{
		"propietario": parts[4],
		"variedad":    parts[5],
	})
}

// User handlers

func (sr *ServiceRegistry) RegisterUserHandler(req *Request) (*Response, error) {
	return sr.invoke(req, contracts.ContractAdmin, "registrarUsuario", req.Body)
}

func (sr *ServiceRegistry) DeleteUserHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 4 {
		return invalidPath()
	}
	return sr.invoke(req, contracts.ContractAdmin, "eliminarUsuario", map[string]string{
		"metamaskAddress": parts[3],
	})
}

func (sr *ServiceRegistry) ReadUserHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractAdmin, "leerUsuario", map[string]string{
		"metamaskAddress": parts[4],
	})
}

func (sr *ServiceRegistry) ListUsersByRoleHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}
	return sr.query(req, contracts.ContractAdmin, "listarUsuariosPorRol", map[string]string{
		"rol": parts[4],
	})
}

// Mirror handlers

// GetTransactionHandler retrieves a committed invocation by hash
func (sr *ServiceRegistry) GetTransactionHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 4 {
		return invalidPath()
	}

	transaction, repoErr := sr.repository.GetTransactionByHash(parts[3])
	if repoErr != nil {
		if repoErr.Code == "TRANSACTION_NOT_FOUND" {
			return errorResponse(http.StatusNotFound, repoErr.Detail),
				fmt.Errorf("transaction not found: %s", repoErr.Detail)
		}
		return errorResponse(http.StatusInternalServerError, "Internal server error"),
			fmt.Errorf("repository error: %s", repoErr.Detail)
	}

	txJSON, err := json.Marshal(transaction)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize transaction"), err
	}

	return &Response{
		StatusCode: http.StatusOK,
		Headers:    defaultHeaders,
		Body:       string(txJSON),
	}, nil
}

// GetTransactionsByCallerHandler retrieves an address's committed invocations
func (sr *ServiceRegistry) GetTransactionsByCallerHandler(req *Request) (*Response, error) {
	parts := strings.Split(req.Path, "/")
	if len(parts) != 5 {
		return invalidPath()
	}

	transactions, repoErr := sr.repository.GetTransactionsByCaller(parts[4])
	if repoErr != nil {
		return errorResponse(http.StatusInternalServerError, "Internal server error"),
			fmt.Errorf("repository error: %s", repoErr.Detail)
	}

	txJSON, err := json.Marshal(transactions)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize transactions"), err
	}

	return &Response{
		StatusCode: http.StatusOK,
		Headers:    defaultHeaders,
		Body:       string(txJSON),
	}, nil
}

// StatusHandler provides system status
func (sr *ServiceRegistry) StatusHandler(req *Request) (*Response, error) {
	status := map[string]interface{}{
		"status": "active",
		"chain":  "fresachain",
		"time":   time.Now(),
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to serialize status"), err
	}

	return &Response{
		StatusCode: http.StatusOK,
		Headers:    defaultHeaders,
		Body:       string(statusJSON),
	}, nil
}

// ConvertHttpRequestToConsensusRequest converts an http.Request to Request
func ConvertHttpRequestToConsensusRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(string(bodyBytes))
		body = compactJSON(raw)
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}, nil
}

// GenerateResponse executes the request and generates a response
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    defaultHeaders,
			Body:       fmt.Sprintf(`{"error":"Service not found for %s %s"}`, req.Method, req.Path),
		}, nil
	}

	response, err := handler(req)
	return response, err
}

// Helpers

func invalidPath() (*Response, error) {
	return errorResponse(http.StatusBadRequest, "Invalid path format"), fmt.Errorf("invalid path format")
}

func errorResponse(status int, message string) *Response {
	body, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(body),
	}
}

func orEmptyObject(data []byte) []byte {
	if len(data) == 0 {
		return []byte(`{}`)
	}
	return data
}

// statusForFault maps a domain fault code to an HTTP status.
func statusForFault(code fault.Code) int {
	switch code {
	case fault.Validation, fault.WrongAssetType, fault.InvalidKeyAttribute:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.AlreadyExists, fault.DuplicateOperation, fault.IllegalTransition:
		return http.StatusConflict
	case fault.Unauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// statusForResultCode maps a consensus result code to an HTTP status. The
// numbering mirrors the ABCI code assignment in the application.
func statusForResultCode(code uint32) int {
	switch code {
	case 1, 7, 8:
		return http.StatusBadRequest
	case 2:
		return http.StatusNotFound
	case 3, 4, 6:
		return http.StatusConflict
	case 5:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return strings.TrimSpace(body)
	}
	return buf.String()
}
