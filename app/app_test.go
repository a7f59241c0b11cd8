package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agrofresa/fresachain/assets"
	"github.com/agrofresa/fresachain/contracts"
	"github.com/agrofresa/fresachain/lifecycle"
	"github.com/agrofresa/fresachain/statestore"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

func newTestApp(t *testing.T) (*Application, *badger.DB) {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bootstrap := assets.User{Name: "Root", Role: assets.RoleAdmin, Address: "0xADMIN"}
	set := contracts.NewSet(bootstrap, func() time.Time {
		return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	})
	return NewABCIApplication(db, set, cmtlog.NewNopLogger()), db
}

func registerTx(t *testing.T, address string) []byte {
	t.Helper()
	tx, err := json.Marshal(contracts.Invocation{
		Contract: contracts.ContractAdmin,
		Op:       "registrarUsuario",
		Caller:   lifecycle.Caller{Address: "0xADMIN", Role: assets.RoleAdmin},
		Args:     json.RawMessage(`{"nombre":"Juan","metamaskAddress":"` + address + `","rol":"agricultor"}`),
	})
	assert.NoError(t, err)
	return tx
}

func TestCheckTxValidatesShape(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.CheckTx(context.Background(), &abcitypes.CheckTxRequest{Tx: []byte("not json")})
	assert.Error(t, err)
	assert.NotEqual(t, uint32(0), resp.Code)

	resp, err = app.CheckTx(context.Background(), &abcitypes.CheckTxRequest{Tx: []byte(`{"contract":"admin","op":"x"}`)})
	assert.Error(t, err)
	assert.NotEqual(t, uint32(0), resp.Code)

	resp, err = app.CheckTx(context.Background(), &abcitypes.CheckTxRequest{Tx: registerTx(t, "0xA")})
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Code)
}

func TestFinalizeBlockIsolatesFailedInvocations(t *testing.T) {
	app, db := newTestApp(t)

	// The same registration twice in one block: the first applies, the
	// second fails and must leave nothing behind.
	resp, err := app.FinalizeBlock(context.Background(), &abcitypes.FinalizeBlockRequest{
		Height: 1,
		Txs:    [][]byte{registerTx(t, "0xA"), registerTx(t, "0xA"), registerTx(t, "0xB")},
	})
	assert.NoError(t, err)
	assert.Len(t, resp.TxResults, 3)
	assert.Equal(t, uint32(0), resp.TxResults[0].Code)
	assert.NotEqual(t, uint32(0), resp.TxResults[1].Code)
	assert.Equal(t, uint32(0), resp.TxResults[2].Code)
	assert.Len(t, resp.TxResults[0].Events, 1)

	_, err = app.Commit(context.Background(), &abcitypes.CommitRequest{})
	assert.NoError(t, err)

	count := 0
	err = statestore.View(db, func(s statestore.Store) error {
		it, scanErr := s.Scan("usuario/")
		if scanErr != nil {
			return scanErr
		}
		defer it.Close()
		for it.Next() {
			count++
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInfoReportsCommittedHeight(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.FinalizeBlock(context.Background(), &abcitypes.FinalizeBlockRequest{
		Height: 7,
		Txs:    [][]byte{registerTx(t, "0xA")},
	})
	assert.NoError(t, err)
	_, err = app.Commit(context.Background(), &abcitypes.CommitRequest{})
	assert.NoError(t, err)

	info, err := app.Info(context.Background(), &abcitypes.InfoRequest{})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), info.LastBlockHeight)
	assert.NotEmpty(t, info.LastBlockAppHash)
}

func TestQueryKeyAndPrefix(t *testing.T) {
	app, db := newTestApp(t)

	err := statestore.Update(db, func(s statestore.Store) error {
		if err := s.Put("usuario/agricultor/0xA/", []byte(`{"nombre":"Juan"}`)); err != nil {
			return err
		}
		return s.Put("usuario/agricultor/0xB/", []byte(`{"nombre":"Ana"}`))
	})
	assert.NoError(t, err)

	resp, err := app.Query(context.Background(), &abcitypes.QueryRequest{Data: []byte("key:usuario/agricultor/0xA/")})
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Code)
	assert.Equal(t, "exists", resp.Log)

	resp, err = app.Query(context.Background(), &abcitypes.QueryRequest{Data: []byte("prefix:usuario/agricultor/")})
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Code)
	var records map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(resp.Value, &records))
	assert.Len(t, records, 2)

	resp, err = app.Query(context.Background(), &abcitypes.QueryRequest{Data: []byte("key:missing/")})
	assert.NoError(t, err)
	assert.Equal(t, "key doesn't exist", resp.Log)
}
