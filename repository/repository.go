package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/contracts"
	"github.com/agrofresa/fresachain/repository/models"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgreSQL error codes
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

// ConsensusResult contains the outcome of submitting an invocation to
// consensus.
type ConsensusResult struct {
	TxHash      string
	BlockHeight int64
	Code        uint32
	Log         string
	Data        []byte
}

// RepositoryError represents repository layer errors
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

// Repository bridges the consensus node and the relational mirror. Writes go
// to consensus first; the mirror is updated only after a transaction commits,
// and mirror failures never fail the ledger write.
type Repository struct {
	db        *gorm.DB
	rpcClient *cmtrpc.Local
}

func NewRepository() *Repository {
	return &Repository{}
}

// ConnectDB establishes database connection and performs migrations
func (r *Repository) ConnectDB(dsn string) {
	for i := range 10 {
		log.Printf("Connection attempt %d...\n", i+1)
		DB, err := gorm.Open(postgres.Open(dsn))
		if err != nil {
			log.Printf("Connection attempt %d, failed: %v\n", i+1, err)
			time.Sleep(2 * time.Second)
			continue
		}
		r.db = DB
		break
	}

	if r.db != nil {
		r.Migrate()
		log.Println("Connected to DB and completed setup")
	} else {
		log.Println("Failed to connect to DB")
	}
}

// Migrate performs database schema migrations
func (r *Repository) Migrate() {
	migrator := r.db.Migrator()

	if !migrator.HasTable(&models.MirrorUser{}) {
		if err := migrator.CreateTable(&models.MirrorUser{}); err != nil {
			log.Printf("Error creating MirrorUser table: %v", err)
			return
		}
		log.Println("✓ MirrorUser table created")
	} else {
		log.Println("✓ MirrorUser table already exists")
	}

	if !migrator.HasTable(&models.LedgerTransaction{}) {
		if err := migrator.CreateTable(&models.LedgerTransaction{}); err != nil {
			log.Printf("Error creating LedgerTransaction table: %v", err)
			return
		}
		log.Println("✓ LedgerTransaction table created")
	} else {
		log.Println("✓ LedgerTransaction table already exists")
	}

	log.Println("Database migration completed successfully")
}

// SetupRpcClient configures the RPC client for BFT consensus
func (r *Repository) SetupRpcClient(rpcClient *cmtrpc.Local) {
	r.rpcClient = rpcClient
}

// SubmitInvocation serializes an invocation, submits it to consensus, and
// waits for it to land in a block. A non-zero result code is returned to the
// caller, not treated as a transport error; the contract decides semantics.
func (r *Repository) SubmitInvocation(ctx context.Context, inv contracts.Invocation) (*ConsensusResult, *RepositoryError) {
	payloadBytes, err := json.Marshal(inv)
	if err != nil {
		return nil, &RepositoryError{
			Code:    "SERIALIZATION_ERROR",
			Message: "Failed to serialize invocation",
			Detail:  err.Error(),
		}
	}

	consensusTx := cmttypes.Tx(payloadBytes)

	done := make(chan struct {
		result *cmtrpctypes.ResultBroadcastTxCommit
		err    error
	}, 1)

	go func() {
		result, err := r.rpcClient.BroadcastTxCommit(ctx, consensusTx)
		done <- struct {
			result *cmtrpctypes.ResultBroadcastTxCommit
			err    error
		}{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RepositoryError{
			Code:    "CONSENSUS_TIMEOUT",
			Message: "Consensus operation timed out",
			Detail:  ctx.Err().Error(),
		}
	case result := <-done:
		if result.err != nil {
			return nil, &RepositoryError{
				Code:    "CONSENSUS_ERROR",
				Message: "Failed to commit to blockchain",
				Detail:  result.err.Error(),
			}
		}

		if result.result.CheckTx.Code != 0 {
			return nil, &RepositoryError{
				Code:    "CONSENSUS_ERROR",
				Message: "Blockchain rejected transaction",
				Detail:  result.result.CheckTx.Log,
			}
		}

		res := &ConsensusResult{
			TxHash:      hex.EncodeToString(result.result.Hash),
			BlockHeight: result.result.Height,
			Code:        result.result.TxResult.Code,
			Log:         result.result.TxResult.Log,
			Data:        result.result.TxResult.Data,
		}
		r.mirrorInvocation(inv, res, payloadBytes)
		return res, nil
	}
}

// mirrorInvocation records the committed transaction and, for successful user
// operations, keeps the user mirror in step. Failures are logged only.
func (r *Repository) mirrorInvocation(inv contracts.Invocation, res *ConsensusResult, payload []byte) {
	if r.db == nil {
		return
	}

	record := models.LedgerTransaction{
		TxHash:        res.TxHash,
		BlockHeight:   res.BlockHeight,
		Contract:      inv.Contract,
		Op:            inv.Op,
		CallerAddress: inv.Caller.Address,
		CallerRole:    inv.Caller.Role,
		Code:          res.Code,
		Log:           res.Log,
		Payload:       string(payload),
		Timestamp:     time.Now(),
	}
	if err := r.db.Create(&record).Error; err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != PgErrUniqueViolation {
			log.Printf("Error mirroring transaction %s: %v", res.TxHash, err)
		}
	}

	if res.Code != 0 || inv.Contract != contracts.ContractAdmin {
		return
	}
	switch inv.Op {
	case "registrarUsuario", "crearAdminInicial":
		var user assets.User
		if err := json.Unmarshal(res.Data, &user); err != nil || user.Address == "" {
			return
		}
		r.mirrorUser(user)
	case "eliminarUsuario":
		var args struct {
			Address string `json:"metamaskAddress"`
		}
		if err := json.Unmarshal(inv.Args, &args); err != nil || args.Address == "" {
			return
		}
		if err := r.db.Where("metamask_address = ?", args.Address).Delete(&models.MirrorUser{}).Error; err != nil {
			log.Printf("Error removing mirrored user %s: %v", args.Address, err)
		}
	}
}

func (r *Repository) mirrorUser(user assets.User) {
	row := models.MirrorUser{
		Address:    user.Address,
		Role:       user.Role,
		Name:       user.Name,
		IdentityID: user.IdentityID,
	}
	if err := r.db.Save(&row).Error; err != nil {
		log.Printf("Error mirroring user %s: %v", user.Address, err)
	}
}

// Relational query methods

// GetTransactionByHash retrieves a committed invocation by consensus hash.
func (r *Repository) GetTransactionByHash(txHash string) (*models.LedgerTransaction, *RepositoryError) {
	if r.db == nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Mirror database not connected",
		}
	}
	var transaction models.LedgerTransaction
	err := r.db.Where("tx_hash = ?", txHash).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    "TRANSACTION_NOT_FOUND",
				Message: "Transaction not found",
				Detail:  fmt.Sprintf("Transaction with hash %s not found", txHash),
			}
		}
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query transaction",
			Detail:  err.Error(),
		}
	}

	return &transaction, nil
}

// GetTransactionsByCaller retrieves every committed invocation submitted by
// an address, newest first.
func (r *Repository) GetTransactionsByCaller(address string) ([]models.LedgerTransaction, *RepositoryError) {
	if r.db == nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Mirror database not connected",
		}
	}
	var transactions []models.LedgerTransaction
	err := r.db.Where("caller_address = ?", address).
		Order("block_height desc").Find(&transactions).Error
	if err != nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query transactions",
			Detail:  err.Error(),
		}
	}

	return transactions, nil
}

// GetMirroredUsersByRole retrieves mirrored users holding a role.
func (r *Repository) GetMirroredUsersByRole(role string) ([]models.MirrorUser, *RepositoryError) {
	if r.db == nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Mirror database not connected",
		}
	}
	var users []models.MirrorUser
	err := r.db.Where("role = ?", role).Find(&users).Error
	if err != nil {
		return nil, &RepositoryError{
			Code:    "DATABASE_ERROR",
			Message: "Failed to query users",
			Detail:  err.Error(),
		}
	}

	return users, nil
}
