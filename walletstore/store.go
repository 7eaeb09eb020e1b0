// Package walletstore implements the on-disk record schema: ten
// logical record kinds (config, keys/outKeys and their encrypted
// counterparts, sub-addresses, key metadata, sync state, block hashes
// and tx-key hints) plus the walletOutputs UTXO set, all backed by a
// single bbolt database file via persist.BoltDatabase.
package walletstore

import (
	"fmt"
	"os"

	bolt "github.com/rivine/bbolt"

	"github.com/nav-io/blsctwallet/persist"
	"github.com/nav-io/blsctwallet/walleterr"
)

var storeMetadata = persist.Metadata{
	Header:  "BLSCT Wallet Store",
	Version: "1.0",
}

var (
	bucketConfig         = []byte("config")
	bucketKeys           = []byte("keys")
	bucketCryptedKeys    = []byte("cryptedKeys")
	bucketOutKeys        = []byte("outKeys")
	bucketCryptedOutKeys = []byte("cryptedOutKeys")
	bucketSubAddresses   = []byte("subAddresses")
	bucketKeyMetadata    = []byte("keyMetadata")
	bucketSyncState      = []byte("syncState")
	bucketBlockHashes    = []byte("blockHashes")
	bucketTxKeys         = []byte("txKeys")
	bucketOutputs        = []byte("walletOutputs")
)

var allBuckets = [][]byte{
	bucketConfig, bucketKeys, bucketCryptedKeys, bucketOutKeys,
	bucketCryptedOutKeys, bucketSubAddresses, bucketKeyMetadata,
	bucketSyncState, bucketBlockHashes, bucketTxKeys, bucketOutputs,
}

// Store is the wallet's persistent record store, a thin schema layer
// over a bbolt database file.
type Store struct {
	db *persist.BoltDatabase
}

// Create opens a brand-new store at path, failing if a file already
// exists there.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("walletstore: %s already exists", path)
	}
	return open(path)
}

// Open opens an existing store at path.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("walletstore: %s does not exist: %w", path, err)
	}
	return open(path)
}

func open(path string) (*Store, error) {
	db, err := persist.OpenDatabase(storeMetadata, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walleterr.ErrStoreCorrupt, err)
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("walletstore: creating buckets: %w", err)
	}
	return s, nil
}

// Close closes the underlying database file. Idempotent calls after
// the first return the bbolt "database not open" error.
func (s *Store) Close() error {
	return s.db.Close()
}
