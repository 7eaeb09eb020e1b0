package walletstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/keymanager"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.db")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateFailsIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.db")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Create(path); err == nil {
		t.Fatal("expected Create to fail on an existing file")
	}
}

func TestOutputBalanceAndUnspentQueries(t *testing.T) {
	s := newTestStore(t)

	outs := []WalletOutput{
		{OutputHash: "a", BlockHeight: 100, Amount: 1000},
		{OutputHash: "b", BlockHeight: 101, Amount: 2000},
		{OutputHash: "c", BlockHeight: 102, Amount: 3000, IsSpent: true},
	}
	for _, out := range outs {
		if err := s.StoreOutput(out); err != nil {
			t.Fatal(err)
		}
	}

	balance, err := s.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 3000 {
		t.Fatalf("expected balance 3000, got %d", balance)
	}

	unspent, err := s.GetUnspentOutputs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(unspent) != 2 {
		t.Fatalf("expected 2 unspent outputs, got %d", len(unspent))
	}
	if unspent[0].BlockHeight > unspent[1].BlockHeight {
		t.Fatal("unspent outputs not sorted by blockHeight ascending")
	}

	all, err := s.GetAllOutputs()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 total outputs, got %d", len(all))
	}
}

func TestMarkSpentAndRollback(t *testing.T) {
	s := newTestStore(t)
	out := WalletOutput{OutputHash: "a", BlockHeight: 100, Amount: 1000}
	if err := s.StoreOutput(out); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSpent("a", "spendtx", 101); err != nil {
		t.Fatal(err)
	}

	balance, err := s.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Fatalf("expected 0 balance after spend, got %d", balance)
	}

	if err := s.UnspendOutputsBySpentHeight(101); err != nil {
		t.Fatal(err)
	}
	balance, err = s.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance restored to 1000 after rollback, got %d", balance)
	}
}

func TestDeleteOutputsByHeight(t *testing.T) {
	s := newTestStore(t)
	if err := s.StoreOutput(WalletOutput{OutputHash: "a", BlockHeight: 100, Amount: 500}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreOutput(WalletOutput{OutputHash: "b", BlockHeight: 101, Amount: 500}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteOutputsByHeight(100); err != nil {
		t.Fatal(err)
	}
	all, err := s.GetAllOutputs()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].OutputHash != "b" {
		t.Fatalf("expected only output b to remain, got %+v", all)
	}
}

func TestCommitBlockAtomicity(t *testing.T) {
	s := newTestStore(t)
	commit := BlockCommit{
		Height:    100,
		BlockHash: "deadbeef",
		NewOutputs: []WalletOutput{
			{OutputHash: "a", BlockHeight: 100, Amount: 1000},
		},
		Cursor: SyncCursor{LastSyncedHeight: 100, LastSyncedHash: "deadbeef"},
	}
	if err := s.CommitBlock(commit); err != nil {
		t.Fatal(err)
	}

	hash, err := s.GetBlockHash(100)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "deadbeef" {
		t.Fatalf("expected block hash deadbeef, got %q", hash)
	}
	cursor, err := s.LoadSyncState()
	if err != nil {
		t.Fatal(err)
	}
	if cursor.LastSyncedHeight != 100 {
		t.Fatalf("expected cursor at height 100, got %d", cursor.LastSyncedHeight)
	}
	balance, err := s.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance 1000 after commit, got %d", balance)
	}
}

func TestRollbackHeightUndoesCommit(t *testing.T) {
	s := newTestStore(t)
	if err := s.CommitBlock(BlockCommit{
		Height:    100,
		BlockHash: "h100",
		NewOutputs: []WalletOutput{
			{OutputHash: "a", BlockHeight: 100, Amount: 1000},
		},
		Cursor: SyncCursor{LastSyncedHeight: 100, LastSyncedHash: "h100"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RollbackHeight(100); err != nil {
		t.Fatal(err)
	}
	all, err := s.GetAllOutputs()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no outputs after rollback, got %d", len(all))
	}
	hash, err := s.GetBlockHash(100)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "" {
		t.Fatal("expected block hash to be removed after rollback")
	}
}

func TestTxKeysByHeight(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTxKeys("tx1", 50, json.RawMessage(`{"k":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTxKeys("tx2", 50, json.RawMessage(`{"k":2}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTxKeys("tx3", 51, json.RawMessage(`{"k":3}`)); err != nil {
		t.Fatal(err)
	}

	hints, err := s.GetTxKeysByHeight(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hints) != 2 {
		t.Fatalf("expected 2 hints at height 50, got %d", len(hints))
	}

	if err := s.DeleteTxKeysByHeight(50); err != nil {
		t.Fatal(err)
	}
	hints, err = s.GetTxKeysByHeight(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hints) != 0 {
		t.Fatal("expected hints at height 50 to be deleted")
	}
}

func TestKeyMaterialRoundTrip(t *testing.T) {
	s := newTestStore(t)
	primitives, _ := blsct.NewMock()
	km := keymanager.New(primitives)
	if _, err := km.Generate(); err != nil {
		t.Fatal(err)
	}
	if _, err := km.NewSubAddress(keymanager.AccountMain); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveKeyMaterial(km.Export()); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadKeyMaterial()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chain != km.ChainRoot() {
		t.Fatal("chain root did not round-trip through the store")
	}
	if loaded.ViewKey != km.Export().ViewKey {
		t.Fatal("view key did not round-trip through the store")
	}
}

func TestEncryptionMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	encrypted, err := s.IsEncrypted()
	if err != nil {
		t.Fatal(err)
	}
	if encrypted {
		t.Fatal("fresh store must not report encrypted")
	}

	meta := EncryptionMetadata{Version: 1}
	meta.Salt[0] = 0xaa
	meta.VerificationHash[0] = 0xbb
	if err := s.SaveEncryptionMetadata(meta); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.GetEncryptionMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected encryption metadata to be found")
	}
	if got.Salt != meta.Salt || got.VerificationHash != meta.VerificationHash {
		t.Fatal("encryption metadata did not round-trip")
	}
}
