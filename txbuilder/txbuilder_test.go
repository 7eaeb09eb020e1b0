package txbuilder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/keymanager"
	"github.com/nav-io/blsctwallet/walletstore"
)

func newTestWallet(t *testing.T) (*walletstore.Store, *keymanager.KeyManager, blsct.Primitives) {
	t.Helper()
	primitives, _ := blsct.NewMock()
	km := keymanager.New(primitives)
	if _, err := km.Generate(); err != nil {
		t.Fatal(err)
	}
	store, err := walletstore.Create(filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatal(err)
	}
	return store, km, primitives
}

// seedOutput stores a spendable output owned by (account, address) at
// blockHeight, registering it the way a sync commit would.
func seedOutput(t *testing.T, store *walletstore.Store, km *keymanager.KeyManager, account int64, address uint64, amount uint64, height uint64) walletstore.WalletOutput {
	t.Helper()
	if account == keymanager.AccountMain {
		for {
			idx, err := km.NewSubAddress(account)
			if err != nil {
				t.Fatal(err)
			}
			if idx == address {
				break
			}
		}
	}
	sub, err := km.GetSubAddress(account, address)
	if err != nil {
		t.Fatal(err)
	}
	out := walletstore.WalletOutput{
		OutputHash:  "seed-output",
		TxHash:      "seed-tx",
		BlockHeight: height,
		Amount:      amount,
		BlindingKey: sub.Blinding[:],
		SpendingKey: sub.Spend[:],
	}
	if err := store.StoreOutput(out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSendInsufficientFunds(t *testing.T) {
	store, km, primitives := newTestWallet(t)
	defer store.Close()

	seedOutput(t, store, km, keymanager.AccountMain, 0, 1000, 10)

	destSub, err := km.GetSubAddress(keymanager.AccountMain, 1)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := blsct.EncodeAddress(destSub)
	if err != nil {
		t.Fatal(err)
	}

	b := New(store, km, primitives, nil, nil, DefaultConfig())
	_, err = b.Send(context.Background(), SendRequest{Destination: addr, Amount: 100_000})
	if err == nil {
		t.Fatal("expected an insufficient-funds error")
	}
}

func TestSendCreatesChangeAsMempoolOutput(t *testing.T) {
	store, km, primitives := newTestWallet(t)
	defer store.Close()

	seedOutput(t, store, km, keymanager.AccountMain, 0, 1_000_000, 10)
	if err := store.SaveSyncState(walletstore.SyncCursor{LastSyncedHeight: 10}); err != nil {
		t.Fatal(err)
	}

	destSub, err := km.GetSubAddress(keymanager.AccountMain, 1)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := blsct.EncodeAddress(destSub)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	b := New(store, km, primitives, nil, nil, cfg)

	before, err := store.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := b.Send(context.Background(), SendRequest{Destination: addr, Amount: 100_000})
	if err != nil {
		t.Fatal(err)
	}
	if result.InputCount != 1 {
		t.Fatalf("expected exactly one input selected, got %d", result.InputCount)
	}
	if result.OutputCount != 2 {
		t.Fatalf("expected a destination output plus change, got %d", result.OutputCount)
	}

	// The spent input is marked spent immediately, so the balance drops
	// by amount+fee; the new pending change output (blockHeight=0)
	// accounts for the rest, per the S5 scenario.
	after, err := store.GetBalance(nil)
	if err != nil {
		t.Fatal(err)
	}
	expectedChange := before - 100_000 - result.Fee
	if after != expectedChange {
		t.Fatalf("expected balance to drop to the pending change amount %d, got before=%d after=%d", expectedChange, before, after)
	}

	outputs, err := store.GetUnspentOutputs(nil)
	if err != nil {
		t.Fatal(err)
	}
	var foundPending bool
	for _, out := range outputs {
		if out.BlockHeight == 0 {
			foundPending = true
			if out.Amount != expectedChange {
				t.Fatalf("expected pending change amount %d, got %d", expectedChange, out.Amount)
			}
		}
	}
	if !foundPending {
		t.Fatal("expected a blockHeight=0 pending change output after send")
	}
}

func TestSendDoesNotReselectSpentOutput(t *testing.T) {
	store, km, primitives := newTestWallet(t)
	defer store.Close()

	cfg := DefaultConfig()
	exactFund := 100_000 + cfg.BaseFee + cfg.FeePerInput + 2*cfg.FeePerOutput
	seedOutput(t, store, km, keymanager.AccountMain, 0, exactFund, 10)
	if err := store.SaveSyncState(walletstore.SyncCursor{LastSyncedHeight: 10}); err != nil {
		t.Fatal(err)
	}

	destSub, err := km.GetSubAddress(keymanager.AccountMain, 1)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := blsct.EncodeAddress(destSub)
	if err != nil {
		t.Fatal(err)
	}

	b := New(store, km, primitives, nil, nil, cfg)
	first, err := b.Send(context.Background(), SendRequest{Destination: addr, Amount: 100_000})
	if err != nil {
		t.Fatal(err)
	}
	if first.OutputCount != 1 {
		t.Fatalf("expected the exact-fund send to leave no change, got %d outputs", first.OutputCount)
	}

	// The only output the wallet owned is now marked spent (and left no
	// change), so a second send must fail with insufficient funds
	// rather than reselecting it.
	_, err = b.Send(context.Background(), SendRequest{Destination: addr, Amount: 100_000})
	if err == nil {
		t.Fatal("expected the second send to fail: its only output is already spent")
	}
}

// TestSendRespendWindowGuardsRevivedOutput exercises the respend-window
// config directly: an output freed up (e.g. by a reorg unspend) stays
// excluded from selection until RespendWindow blocks have passed.
func TestSendRespendWindowGuardsRevivedOutput(t *testing.T) {
	store, km, primitives := newTestWallet(t)
	defer store.Close()

	out := seedOutput(t, store, km, keymanager.AccountMain, 0, 1_000_000, 10)
	if err := store.SaveSyncState(walletstore.SyncCursor{LastSyncedHeight: 10}); err != nil {
		t.Fatal(err)
	}

	destSub, err := km.GetSubAddress(keymanager.AccountMain, 1)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := blsct.EncodeAddress(destSub)
	if err != nil {
		t.Fatal(err)
	}

	b := New(store, km, primitives, nil, nil, DefaultConfig())
	b.recentSpends[out.OutputHash] = 10

	_, err = b.Send(context.Background(), SendRequest{Destination: addr, Amount: 100_000})
	if err == nil {
		t.Fatal("expected the freshly-revived output to stay excluded within the respend window")
	}
}
