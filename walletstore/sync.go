package walletstore

import (
	"encoding/json"

	bolt "github.com/rivine/bbolt"
)

// SyncCursor is the wallet's single sync-progress record.
type SyncCursor struct {
	LastSyncedHeight   uint64
	LastSyncedHash     string
	TotalTxKeysSynced  uint64
	LastSyncTimeUnix   int64
	ChainTipAtLastSync uint64
}

var syncStateKey = []byte("cursor")

// LoadSyncState returns the current sync cursor, or the zero value if
// none has ever been saved.
func (s *Store) LoadSyncState() (SyncCursor, error) {
	var cursor SyncCursor
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSyncState).Get(syncStateKey)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &cursor)
	})
	return cursor, err
}

// SaveSyncState persists cursor as the current sync cursor.
func (s *Store) SaveSyncState(cursor SyncCursor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return saveSyncState(tx, cursor)
	})
}

func saveSyncState(tx *bolt.Tx, cursor SyncCursor) error {
	b, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSyncState).Put(syncStateKey, b)
}

// ClearSyncData resets the sync cursor and removes every tx-key hint
// and block hash, leaving wallet outputs untouched — used to force a
// full rescan without discarding already-recovered balances.
func (s *Store) ClearSyncData() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSyncState); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketSyncState); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketTxKeys); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketTxKeys); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketBlockHashes); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketBlockHashes); err != nil {
			return err
		}
		return nil
	})
}

// BlockCommit bundles everything the sync engine's per-block step
// needs to apply atomically: new outputs, spend markers, the block's
// header hash, its tx-key hints, and the advanced cursor.
type BlockCommit struct {
	Height      uint64
	BlockHash   string
	NewOutputs  []WalletOutput
	Spends      []SpendMark
	TxKeys      []TxKeyHintInput
	Cursor      SyncCursor
}

// SpendMark marks outputHash as spent by spentTx at the commit's height.
type SpendMark struct {
	OutputHash string
	SpentTx    string
}

// TxKeyHintInput is one tx-key hint to persist as part of a block commit.
type TxKeyHintInput struct {
	TxHash   string
	KeysData json.RawMessage
}

// CommitBlock applies a BlockCommit atomically: insert outputs, mark
// spends, persist the block hash and tx-key hints, and advance the
// sync cursor, all in one bbolt transaction. A crash at any point
// before the transaction commits leaves none of the block's changes
// visible; after commit, all of them are.
func (s *Store) CommitBlock(commit BlockCommit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, out := range commit.NewOutputs {
			if err := putOutput(tx, out); err != nil {
				return err
			}
		}
		for _, spend := range commit.Spends {
			if err := markSpent(tx, spend.OutputHash, spend.SpentTx, commit.Height); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketBlockHashes).Put(heightKey(commit.Height), []byte(commit.BlockHash)); err != nil {
			return err
		}
		for _, hint := range commit.TxKeys {
			if err := saveTxKeys(tx, hint.TxHash, commit.Height, hint.KeysData); err != nil {
				return err
			}
		}
		return saveSyncState(tx, commit.Cursor)
	})
}

// RollbackHeight undoes everything CommitBlock would have written for
// height h: deletes outputs first seen there, unspends outputs spent
// there, deletes its tx-key hints, and deletes its block hash. Used by
// the sync engine's reorg handling.
func (s *Store) RollbackHeight(h uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deleteOutputsByHeight(tx, h); err != nil {
			return err
		}
		if err := unspendOutputsBySpentHeight(tx, h); err != nil {
			return err
		}
		if err := deleteTxKeysByHeight(tx, h); err != nil {
			return err
		}
		return tx.Bucket(bucketBlockHashes).Delete(heightKey(h))
	})
}
