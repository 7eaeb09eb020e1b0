package walletstore

import (
	"encoding/binary"
	"encoding/json"

	bolt "github.com/rivine/bbolt"
)

// TxKeyHint is the per-transaction payload the remote indexer returns:
// an opaque blob the key manager forwards to the BLSCT recovery
// primitive, keyed by txHash and indexed by blockHeight.
type TxKeyHint struct {
	TxHash      string
	BlockHeight uint64
	KeysData    json.RawMessage
}

func txKeyKey(height uint64, txHash string) []byte {
	key := make([]byte, 8+len(txHash))
	binary.BigEndian.PutUint64(key[:8], height)
	copy(key[8:], txHash)
	return key
}

// SaveTxKeys records one transaction's key hint at height.
func (s *Store) SaveTxKeys(txHash string, height uint64, keysData json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return saveTxKeys(tx, txHash, height, keysData)
	})
}

func saveTxKeys(tx *bolt.Tx, txHash string, height uint64, keysData json.RawMessage) error {
	hint := TxKeyHint{TxHash: txHash, BlockHeight: height, KeysData: keysData}
	b, err := json.Marshal(hint)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTxKeys).Put(txKeyKey(height, txHash), b)
}

// GetTxKeysByHeight returns every hint recorded at height.
func (s *Store) GetTxKeysByHeight(height uint64) ([]TxKeyHint, error) {
	var hints []TxKeyHint
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachAtHeight(tx, height, func(v []byte) error {
			var hint TxKeyHint
			if err := json.Unmarshal(v, &hint); err != nil {
				return err
			}
			hints = append(hints, hint)
			return nil
		})
	})
	return hints, err
}

// DeleteTxKeysByHeight removes every hint recorded at height (reorg rollback).
func (s *Store) DeleteTxKeysByHeight(height uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteTxKeysByHeight(tx, height)
	})
}

func deleteTxKeysByHeight(tx *bolt.Tx, height uint64) error {
	bucket := tx.Bucket(bucketTxKeys)
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, height)
	c := bucket.Cursor()
	var toDelete [][]byte
	for k, _ := c.Seek(prefix); k != nil && hasBytesPrefix(k, prefix); k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), k...))
	}
	for _, k := range toDelete {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func forEachAtHeight(tx *bolt.Tx, height uint64, fn func(v []byte) error) error {
	bucket := tx.Bucket(bucketTxKeys)
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, height)
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasBytesPrefix(k, prefix); k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func hasBytesPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
