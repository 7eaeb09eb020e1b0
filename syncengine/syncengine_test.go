package syncengine

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/keymanager"
	"github.com/nav-io/blsctwallet/rpcclient"
	"github.com/nav-io/blsctwallet/walletstore"
)

// fakeIndexer answers a fixed method->result table over one connection,
// enough lines to cover a single RunOnce: server.version, then whatever
// the test configures.
func fakeIndexer(t *testing.T, ln net.Listener, table map[string]string, lines int) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for i := 0; i < lines; i++ {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req struct {
			ID     uint32        `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		result, ok := table[req.Method]
		if !ok {
			result = "null"
		}
		idBytes, _ := json.Marshal(req.ID)
		resp := []byte(`{"jsonrpc":"2.0","id":` + string(idBytes) + `,"result":` + result + "}\n")
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func headerHexAt(height byte) string {
	raw := make([]byte, 80)
	raw[0] = height
	return hex.EncodeToString(raw)
}

func TestRunOnceCommitsOwnedOutput(t *testing.T) {
	primitives, _ := blsct.NewMock()
	km := keymanager.New(primitives)
	if _, err := km.Generate(); err != nil {
		t.Fatal(err)
	}
	sub, err := km.GetSubAddress(keymanager.AccountMain, 0)
	if err != nil {
		t.Fatal(err)
	}
	viewKey := km.Export().ViewKey

	viewTag, err := primitives.CalcViewTag(sub.Blinding, viewKey)
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := primitives.CalcNonce(sub.Blinding, viewKey)
	if err != nil {
		t.Fatal(err)
	}
	rangeProof := blsct.SealRangeProof(nonce, nil, 0, 1_000_000, "")

	ownedHint := outputHint{
		OutputHash:  "out1",
		BlindingKey: hex.EncodeToString(sub.Blinding[:]),
		SpendingKey: hex.EncodeToString(sub.Spend[:]),
		ViewTag:     uint16(viewTag),
		RangeProof:  hex.EncodeToString(rangeProof),
	}
	payload, err := json.Marshal(txKeyPayload{Outputs: []outputHint{ownedHint}})
	if err != nil {
		t.Fatal(err)
	}

	headerHex := headerHexAt(100)

	txsJSON, err := json.Marshal([]struct {
		TxHash string          `json:"txHash"`
		Keys   json.RawMessage `json:"keys"`
	}{{TxHash: "tx1", Keys: payload}})
	if err != nil {
		t.Fatal(err)
	}

	rangeResult := `{"blocks":[{"height":100,"txs":` + string(txsJSON) + `}],"nextHeight":101}`

	table := map[string]string{
		"server.version":                       `["test-indexer","1.0"]`,
		"blockchain.headers.subscribe":          `{"height":100,"hex":"` + headerHex + `"}`,
		"blockchain.block.header":               `"` + headerHex + `"`,
		"blockchain.block.transaction_keys_range": rangeResult,
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go fakeIndexer(t, ln, table, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := rpcclient.Dial(ctx, ln.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	store, err := walletstore.Create(filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	engine := New(client, store, km, nil, Callbacks{}, DefaultConfig())
	if err := engine.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	balance, err := store.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 1_000_000 {
		t.Fatalf("expected balance 1000000, got %d", balance)
	}

	unspent, err := store.GetUnspentOutputs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(unspent) != 1 || unspent[0].BlockHeight != 100 {
		t.Fatalf("expected a single unspent output at height 100, got %+v", unspent)
	}

	cursor, err := store.LoadSyncState()
	if err != nil {
		t.Fatal(err)
	}
	if cursor.LastSyncedHeight != 100 {
		t.Fatalf("expected cursor at height 100, got %d", cursor.LastSyncedHeight)
	}
}

func TestReorgCheckRollsBackDivergedHeight(t *testing.T) {
	oldHeaderHex := headerHexAt(100)
	oldHash, err := rpcclient.HeaderHash(oldHeaderHex)
	if err != nil {
		t.Fatal(err)
	}

	store, err := walletstore.Create(filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.CommitBlock(walletstore.BlockCommit{
		Height:    100,
		BlockHash: oldHash,
		NewOutputs: []walletstore.WalletOutput{
			{OutputHash: "out1", BlockHeight: 100, Amount: 1_000_000},
		},
		Cursor: walletstore.SyncCursor{LastSyncedHeight: 100, LastSyncedHash: oldHash},
	}); err != nil {
		t.Fatal(err)
	}

	// The server now reports a different header at height 100: a fork.
	newHeaderHex := headerHexAt(101)

	table := map[string]string{
		"server.version":          `["test-indexer","1.0"]`,
		"blockchain.block.header": `"` + newHeaderHex + `"`,
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	// server.version, block.header(100), block.header(90) — the rollback
	// walks one ReorgStep chunk back, finds nothing stored at 90, and
	// stops there without a third round trip.
	go fakeIndexer(t, ln, table, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := rpcclient.Dial(ctx, ln.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	primitives, _ := blsct.NewMock()
	km := keymanager.New(primitives)
	if _, err := km.Generate(); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.ReorgStep = 10
	engine := New(client, store, km, nil, Callbacks{}, cfg)

	if err := engine.reorgCheck(ctx); err != nil {
		t.Fatal(err)
	}

	balance, err := store.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after rollback, got %d", balance)
	}

	cursor, err := store.LoadSyncState()
	if err != nil {
		t.Fatal(err)
	}
	// One ReorgStep (10) chunk back from 100 is 90; nothing was ever
	// stored at 90, so the walk-back treats it as agreement and stops.
	if cursor.LastSyncedHeight != 90 {
		t.Fatalf("expected cursor rolled back to 90, got %d", cursor.LastSyncedHeight)
	}

	hash100, err := store.GetBlockHash(100)
	if err != nil {
		t.Fatal(err)
	}
	if hash100 != "" {
		t.Fatal("expected block hash at height 100 to be removed by the rollback")
	}
}
