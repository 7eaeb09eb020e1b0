// Package wallet ties the key manager, wallet store, sync engine,
// transaction builder and RPC client together into the single
// top-level type client code is expected to use: one type exposing
// create/open/close lifecycle plus balance, address and send
// operations (Create, RestoreFromMnemonic, Open, Close, Height,
// SubAddresses).
package wallet

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/NebulousLabs/threadgroup"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/build"
	"github.com/nav-io/blsctwallet/keymanager"
	"github.com/nav-io/blsctwallet/persist"
	"github.com/nav-io/blsctwallet/rpcclient"
	"github.com/nav-io/blsctwallet/syncengine"
	"github.com/nav-io/blsctwallet/txbuilder"
	"github.com/nav-io/blsctwallet/walleterr"
	"github.com/nav-io/blsctwallet/walletstore"
)

// Config bundles everything needed to open or create a wallet.
type Config struct {
	// PersistDir holds the wallet's database file and log.
	PersistDir string
	// RpcAddr is the boundary RPC indexer's address, e.g. "127.0.0.1:8332".
	// Leave empty to run store/key-manager only, without a sync engine or
	// broadcast capability (used by tests and offline signing tools).
	RpcAddr string
	// Primitives overrides the BLSCT backend; nil selects the
	// production herumi-backed implementation.
	Primitives blsct.Primitives
	Sync       syncengine.Config
	Builder    txbuilder.Config
}

func (c Config) dbPath() string  { return filepath.Join(c.PersistDir, "wallet.db") }
func (c Config) logPath() string { return filepath.Join(c.PersistDir, "wallet.log") }

// Wallet is the wallet daemon's in-process API surface: balance and
// address queries, sending, locking, and lifecycle management.
type Wallet struct {
	mu sync.RWMutex

	store      *walletstore.Store
	keys       *keymanager.KeyManager
	primitives blsct.Primitives
	client     *rpcclient.Client
	engine     *syncengine.Engine
	builder    *txbuilder.Builder
	log        *persist.Logger

	cfg Config
	tg  threadgroup.ThreadGroup
}

// Create initializes a brand-new wallet at cfg.PersistDir with a fresh
// 24-word mnemonic, returning the mnemonic so the caller can display it
// exactly once.
func Create(cfg Config) (*Wallet, string, error) {
	if err := persist.MkdirAll(cfg.PersistDir); err != nil {
		return nil, "", err
	}
	primitives, err := resolvePrimitives(cfg)
	if err != nil {
		return nil, "", err
	}
	keys := keymanager.New(primitives)
	mnemonic, err := keys.Generate()
	if err != nil {
		return nil, "", err
	}
	store, err := walletstore.Create(cfg.dbPath())
	if err != nil {
		return nil, "", err
	}
	if err := store.SaveKeyMaterial(keys.Export()); err != nil {
		store.Close()
		return nil, "", err
	}
	w, err := newWallet(cfg, store, keys, primitives)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// RestoreFromMnemonic rebuilds a wallet deterministically from an
// existing mnemonic phrase, creating a new store at cfg.PersistDir.
func RestoreFromMnemonic(cfg Config, mnemonic string) (*Wallet, error) {
	if err := persist.MkdirAll(cfg.PersistDir); err != nil {
		return nil, err
	}
	primitives, err := resolvePrimitives(cfg)
	if err != nil {
		return nil, err
	}
	keys := keymanager.New(primitives)
	if err := keys.RestoreFromMnemonic(mnemonic); err != nil {
		return nil, err
	}
	store, err := walletstore.Create(cfg.dbPath())
	if err != nil {
		return nil, err
	}
	if err := store.SaveKeyMaterial(keys.Export()); err != nil {
		store.Close()
		return nil, err
	}
	return newWallet(cfg, store, keys, primitives)
}

// Open loads an existing wallet from cfg.PersistDir. If the key
// material is encrypted, the returned wallet starts Locked; call
// Unlock before sending.
func Open(cfg Config) (*Wallet, error) {
	primitives, err := resolvePrimitives(cfg)
	if err != nil {
		return nil, err
	}
	store, err := walletstore.Open(cfg.dbPath())
	if err != nil {
		return nil, err
	}
	persisted, err := store.LoadKeyMaterial()
	if err != nil {
		store.Close()
		return nil, err
	}
	keys := keymanager.Import(primitives, persisted)
	return newWallet(cfg, store, keys, primitives)
}

func resolvePrimitives(cfg Config) (blsct.Primitives, error) {
	if cfg.Primitives != nil {
		return cfg.Primitives, nil
	}
	return blsct.New()
}

func newWallet(cfg Config, store *walletstore.Store, keys *keymanager.KeyManager, primitives blsct.Primitives) (*Wallet, error) {
	log, err := persist.NewFileLogger(cfg.logPath())
	if err != nil {
		store.Close()
		return nil, err
	}

	w := &Wallet{
		store:      store,
		keys:       keys,
		primitives: primitives,
		log:        log,
		cfg:        cfg,
	}

	if cfg.RpcAddr != "" {
		client, err := rpcclient.Dial(context.Background(), cfg.RpcAddr, log)
		if err != nil {
			log.Close()
			store.Close()
			return nil, err
		}
		w.client = client
		w.engine = syncengine.New(client, store, keys, log, syncengine.Callbacks{
			OnError: func(err error) { log.Errorln("wallet: sync error:", err) },
		}, cfg.Sync)
		if err := w.engine.Start(); err != nil {
			client.Close()
			log.Close()
			store.Close()
			return nil, err
		}
	}

	builderCfg := cfg.Builder
	if builderCfg == (txbuilder.Config{}) {
		builderCfg = txbuilder.DefaultConfig()
	}
	w.builder = txbuilder.New(store, keys, primitives, w.client, log, builderCfg)

	return w, nil
}

// Close stops the sync engine, closes the RPC connection, and flushes
// the store and log, in that order.
func (w *Wallet) Close() error {
	if err := w.tg.Stop(); err != nil {
		return err
	}
	var errs []error
	if w.engine != nil {
		if err := w.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.client != nil {
		if err := w.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := w.log.Close(); err != nil {
		errs = append(errs, err)
	}
	return build.JoinErrors(errs, "; ")
}

// Height returns the last synced chain height.
func (w *Wallet) Height() (uint64, error) {
	if err := w.tg.Add(); err != nil {
		return 0, walleterr.ErrStoreBusy
	}
	defer w.tg.Done()

	cursor, err := w.store.LoadSyncState()
	if err != nil {
		return 0, err
	}
	return cursor.LastSyncedHeight, nil
}

// Balance returns the sum of unspent output amounts for tokenID (nil
// means all tokens; a non-nil all-zero id selects the default token).
func (w *Wallet) Balance(tokenID *[32]byte) (uint64, error) {
	if err := w.tg.Add(); err != nil {
		return 0, walleterr.ErrStoreBusy
	}
	defer w.tg.Done()
	return w.store.GetBalance(tokenID)
}

// UnspentOutputs returns every unspent output matching tokenID.
func (w *Wallet) UnspentOutputs(tokenID *[32]byte) ([]walletstore.WalletOutput, error) {
	if err := w.tg.Add(); err != nil {
		return nil, walleterr.ErrStoreBusy
	}
	defer w.tg.Done()
	return w.store.GetUnspentOutputs(tokenID)
}

// NewAddress derives and registers the next unused sub-address on
// account, returning its bech32m encoding.
func (w *Wallet) NewAddress(account int64) (string, error) {
	if err := w.tg.Add(); err != nil {
		return "", walleterr.ErrStoreBusy
	}
	defer w.tg.Done()

	address, err := w.keys.NewSubAddress(account)
	if err != nil {
		return "", err
	}
	sub, err := w.keys.GetSubAddress(account, address)
	if err != nil {
		return "", err
	}
	encoded, err := blsct.EncodeAddress(sub)
	if err != nil {
		return "", err
	}
	if saveErr := w.store.SaveKeyMaterial(w.keys.Export()); saveErr != nil {
		w.log.Errorln("wallet: persisting new sub-address counter:", saveErr)
	}
	return encoded, nil
}

// SubAddresses returns the bech32m encoding of every sub-address this
// wallet has registered, sorted by account then address.
func (w *Wallet) SubAddresses() ([]string, error) {
	if err := w.tg.Add(); err != nil {
		return nil, walleterr.ErrStoreBusy
	}
	defer w.tg.Done()

	refs := w.keys.KnownSubAddresses()
	addrs := make([]string, 0, len(refs))
	for _, ref := range refs {
		sub, err := w.keys.GetSubAddress(ref.Account, ref.Address)
		if err != nil {
			return nil, err
		}
		encoded, err := blsct.EncodeAddress(sub)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, encoded)
	}
	return addrs, nil
}

// Send builds, signs and broadcasts a single-destination payment.
func (w *Wallet) Send(ctx context.Context, req txbuilder.SendRequest) (txbuilder.SendResult, error) {
	if err := w.tg.Add(); err != nil {
		return txbuilder.SendResult{}, walleterr.ErrStoreBusy
	}
	defer w.tg.Done()
	return w.builder.Send(ctx, req)
}

// SetPassword encrypts the wallet's spending secrets under password and
// persists the change.
func (w *Wallet) SetPassword(password []byte) error {
	if err := w.tg.Add(); err != nil {
		return walleterr.ErrStoreBusy
	}
	defer w.tg.Done()

	if err := w.keys.SetPassword(password); err != nil {
		return err
	}
	return w.store.SaveKeyMaterial(w.keys.Export())
}

// Lock discards in-memory spending secrets. The view key and public
// keys remain available for balance/address queries.
func (w *Wallet) Lock() error {
	if err := w.tg.Add(); err != nil {
		return walleterr.ErrStoreBusy
	}
	defer w.tg.Done()
	return w.keys.Lock()
}

// Unlock restores in-memory spending secrets from password, returning
// false on a wrong password.
func (w *Wallet) Unlock(password []byte) bool {
	if err := w.tg.Add(); err != nil {
		return false
	}
	defer w.tg.Done()
	return w.keys.Unlock(password)
}

// IsEncrypted reports whether a password has ever been set.
func (w *Wallet) IsEncrypted() bool {
	return w.keys.IsEncrypted()
}

// Mnemonic returns the wallet's recovery phrase, failing while locked.
func (w *Wallet) Mnemonic() (string, error) {
	return w.keys.GetMnemonic()
}

// BackupMnemonic writes the wallet's mnemonic to a new, randomly-named
// backup file under dir and returns its path, failing while locked.
func (w *Wallet) BackupMnemonic(dir string) (string, error) {
	if err := w.tg.Add(); err != nil {
		return "", walleterr.ErrStoreBusy
	}
	defer w.tg.Done()
	return w.keys.BackupMnemonic(dir)
}

// State reports the key manager's current lock state.
func (w *Wallet) State() keymanager.State {
	return w.keys.State()
}
