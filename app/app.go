package app

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/agrofresa/fresachain/contracts"
	"github.com/agrofresa/fresachain/fault"
	"github.com/agrofresa/fresachain/statestore"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

// Application implements the ABCI interface over the asset ledger. Each block
// opens one badger transaction; each invocation inside the block runs against
// a staged overlay that is flushed on success and dropped on failure, so a
// failed invocation leaves no partial writes behind.
type Application struct {
	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	contracts    *contracts.Set
	nodeID       string
	mu           sync.Mutex
	logger       cmtlog.Logger
}

// NewABCIApplication creates the ledger ABCI application.
func NewABCIApplication(badgerDB *badger.DB, contractSet *contracts.Set, logger cmtlog.Logger) *Application {
	return &Application{
		badgerDB:  badgerDB,
		contracts: contractSet,
		logger:    logger,
	}
}

func (app *Application) SetNodeID(id string) {
	app.nodeID = id
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, info *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	lastBlockHeight := int64(0)
	var lastBlockAppHash []byte

	err := app.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("last_block_height"))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		err = item.Value(func(val []byte) error {
			lastBlockHeight = bytesToInt64(val)
			return nil
		})
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte("last_block_app_hash"))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err == nil {
			err = item.Value(func(val []byte) error {
				lastBlockAppHash = val
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		log.Printf("Error getting last block info: %v", err)
	}

	return &abcitypes.InfoResponse{
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// Query implements the ABCI Query method. "key:<ledger key>" reads one
// record; "prefix:<key prefix>" returns a JSON map of every record under the
// prefix.
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	if len(req.Data) == 0 {
		return &abcitypes.QueryResponse{
			Code: 1,
			Log:  "Empty query data",
		}, nil
	}

	query := string(req.Data)
	if strings.HasPrefix(query, "prefix:") {
		return app.queryPrefix(strings.TrimPrefix(query, "prefix:"))
	}
	key := strings.TrimPrefix(query, "key:")

	resp := abcitypes.QueryResponse{Key: []byte(key)}
	dbErr := statestore.View(app.badgerDB, func(store statestore.Store) error {
		val, err := store.Get(key)
		if err != nil {
			return err
		}
		if val == nil {
			resp.Log = "key doesn't exist"
			return nil
		}
		resp.Log = "exists"
		resp.Value = val
		return nil
	})

	if dbErr != nil {
		log.Printf("Error reading database: %v", dbErr)
		return &abcitypes.QueryResponse{
			Code: 2,
			Log:  fmt.Sprintf("Database error: %v", dbErr),
		}, nil
	}

	return &resp, nil
}

func (app *Application) queryPrefix(prefix string) (*abcitypes.QueryResponse, error) {
	records := make(map[string]json.RawMessage)

	dbErr := statestore.View(app.badgerDB, func(store statestore.Store) error {
		it, err := store.Scan(prefix)
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Next() {
			records[it.Key()] = append(json.RawMessage{}, it.Value()...)
		}
		return nil
	})

	if dbErr != nil {
		log.Printf("Error scanning database: %v", dbErr)
		return &abcitypes.QueryResponse{
			Code: 2,
			Log:  fmt.Sprintf("Database error: %v", dbErr),
		}, nil
	}

	value, err := json.Marshal(records)
	if err != nil {
		return &abcitypes.QueryResponse{
			Code: 2,
			Log:  fmt.Sprintf("Serialization error: %v", err),
		}, nil
	}

	return &abcitypes.QueryResponse{
		Key:   []byte(prefix),
		Value: value,
		Log:   fmt.Sprintf("%d records", len(records)),
	}, nil
}

// CheckTx implements the ABCI CheckTx method
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	var inv contracts.Invocation
	if err := json.Unmarshal(check.Tx, &inv); err != nil {
		return &abcitypes.CheckTxResponse{Code: codeFor(fault.Validation)},
			fmt.Errorf("malformed invocation: %s", err.Error())
	}

	if inv.Contract == "" || inv.Op == "" || inv.Caller.Address == "" {
		return &abcitypes.CheckTxResponse{Code: codeFor(fault.Validation)},
			fmt.Errorf("missing contract, op, or caller address")
	}

	return &abcitypes.CheckTxResponse{Code: 0}, nil
}

// InitChain creates the initial admin user so the chain is operable from the
// first block.
func (app *Application) InitChain(_ context.Context, chain *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	err := statestore.Update(app.badgerDB, func(store statestore.Store) error {
		user, created, err := app.contracts.Admin.Bootstrap(store)
		if err != nil {
			return err
		}
		if created {
			app.logger.Info("Initial admin created", "address", user.Address)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &abcitypes.InitChainResponse{}, nil
}

// PrepareProposal implements the ABCI PrepareProposal method
func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	return &abcitypes.PrepareProposalResponse{Txs: proposal.Txs}, nil
}

// ProcessProposal implements the ABCI ProcessProposal method
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for i, txBytes := range proposal.Txs {
		var inv contracts.Invocation
		if err := json.Unmarshal(txBytes, &inv); err != nil {
			app.logger.Error("Invalid transaction format", "index", i, "error", err)
			return &abcitypes.ProcessProposalResponse{
				Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT,
			}, fmt.Errorf("invalid transaction at index %d: %v", i, err)
		}

		if inv.Contract == "" || inv.Op == "" {
			app.logger.Error("Invalid invocation", "index", i, "contract", inv.Contract, "op", inv.Op)
			return &abcitypes.ProcessProposalResponse{
				Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT,
			}, fmt.Errorf("invalid invocation at index %d", i)
		}
	}

	return &abcitypes.ProcessProposalResponse{
		Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT,
	}, nil
}

// FinalizeBlock implements the ABCI FinalizeBlock method
func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	var txResults = make([]*abcitypes.ExecTxResult, len(req.Txs))

	app.mu.Lock()
	defer app.mu.Unlock()

	app.onGoingBlock = app.badgerDB.NewTransaction(true)
	blockStore := statestore.NewTxnStore(app.onGoingBlock)

	for i, txBytes := range req.Txs {
		var inv contracts.Invocation
		if err := json.Unmarshal(txBytes, &inv); err != nil {
			txResults[i] = &abcitypes.ExecTxResult{
				Code: codeFor(fault.Validation),
				Log:  "Invalid invocation format",
			}
			continue
		}

		txResults[i] = app.executeInvocation(blockStore, inv)
	}

	blockHeight := req.Height
	appHash := calculateAppHash(txResults)

	err := app.onGoingBlock.Set([]byte("last_block_height"), int64ToBytes(blockHeight))
	if err != nil {
		log.Printf("Error storing block height: %v", err)
	}

	err = app.onGoingBlock.Set([]byte("last_block_app_hash"), appHash)
	if err != nil {
		log.Printf("Error storing app hash: %v", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

// executeInvocation runs one invocation against a staged overlay of the block
// transaction. Only a fully successful invocation is flushed into the block.
func (app *Application) executeInvocation(blockStore statestore.Store, inv contracts.Invocation) *abcitypes.ExecTxResult {
	staged := statestore.NewStaged(blockStore)

	result, err := app.contracts.Execute(staged, inv)
	if err != nil {
		staged.Discard()
		code := codeFor(fault.CodeOf(err))
		app.logger.Info("Invocation rejected",
			"contract", inv.Contract, "op", inv.Op,
			"caller", inv.Caller.Address, "code", code, "error", err.Error())
		return &abcitypes.ExecTxResult{
			Code: code,
			Log:  err.Error(),
		}
	}

	if err := staged.Flush(); err != nil {
		log.Printf("Error flushing invocation writes: %v", err)
		return &abcitypes.ExecTxResult{
			Code: codeFor(fault.StoreError),
			Log:  fmt.Sprintf("Database error: %v", err),
		}
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		data = nil
	}

	events := make([]abcitypes.Event, 0, len(result.Events))
	for _, ev := range result.Events {
		events = append(events, abcitypes.Event{
			Type: ev.Type,
			Attributes: []abcitypes.EventAttribute{
				{Key: "contract", Value: inv.Contract, Index: true},
				{Key: "op", Value: inv.Op, Index: true},
				{Key: "caller", Value: inv.Caller.Address, Index: true},
				{Key: "payload", Value: string(ev.Payload)},
			},
		})
	}

	app.logger.Info("Invocation applied",
		"contract", inv.Contract, "op", inv.Op, "caller", inv.Caller.Address)
	return &abcitypes.ExecTxResult{
		Code:   0,
		Data:   data,
		Log:    "applied",
		Events: events,
	}
}

// Commit implements the ABCI Commit method
func (app *Application) Commit(_ context.Context, commit *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	err := app.onGoingBlock.Commit()
	if err != nil {
		log.Printf("Error committing block: %v", err)
	}
	return &abcitypes.CommitResponse{}, nil
}

// Placeholder implementations for other ABCI methods
func (app *Application) ListSnapshots(_ context.Context, snapshots *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

func (app *Application) OfferSnapshot(_ context.Context, snapshot *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

func (app *Application) LoadSnapshotChunk(_ context.Context, chunk *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

func (app *Application) ApplySnapshotChunk(_ context.Context, chunk *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{
		Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT,
	}, nil
}

func (app *Application) ExtendVote(_ context.Context, extend *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

func (app *Application) VerifyVoteExtension(_ context.Context, verify *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{}, nil
}

// Helper functions

// codeFor maps a domain fault code to a deterministic ABCI result code. The
// mapping is part of consensus; every node must agree on it.
func codeFor(code fault.Code) uint32 {
	switch code {
	case fault.Validation:
		return 1
	case fault.NotFound:
		return 2
	case fault.AlreadyExists:
		return 3
	case fault.DuplicateOperation:
		return 4
	case fault.Unauthorized:
		return 5
	case fault.IllegalTransition:
		return 6
	case fault.WrongAssetType:
		return 7
	case fault.InvalidKeyAttribute:
		return 8
	case fault.StoreError:
		return 9
	}
	return 10
}

// calculateAppHash calculates the application hash for the current block
func calculateAppHash(txResults []*abcitypes.ExecTxResult) []byte {
	allData := make([]byte, 0)
	for _, result := range txResults {
		allData = append(allData, result.Data...)
	}
	hash := sha256.Sum256(allData)
	return hash[:]
}

// int64ToBytes converts an int64 to bytes
func int64ToBytes(i int64) []byte {
	buf := make([]byte, 8)
	buf[0] = byte(i >> 56)
	buf[1] = byte(i >> 48)
	buf[2] = byte(i >> 40)
	buf[3] = byte(i >> 32)
	buf[4] = byte(i >> 24)
	buf[5] = byte(i >> 16)
	buf[6] = byte(i >> 8)
	buf[7] = byte(i)
	return buf
}

// bytesToInt64 converts bytes to an int64
func bytesToInt64(buf []byte) int64 {
	if len(buf) < 8 {
		return 0
	}
	return int64(buf[0])<<56 |
		int64(buf[1])<<48 |
		int64(buf[2])<<40 |
		int64(buf[3])<<32 |
		int64(buf[4])<<24 |
		int64(buf[5])<<16 |
		int64(buf[6])<<8 |
		int64(buf[7])
}
