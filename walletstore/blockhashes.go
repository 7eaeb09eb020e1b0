package walletstore

import (
	"encoding/binary"

	bolt "github.com/rivine/bbolt"
)

func heightKey(h uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	return b[:]
}

// SaveBlockHash records the server-reported header hash at height h.
func (s *Store) SaveBlockHash(h uint64, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockHashes).Put(heightKey(h), []byte(hash))
	})
}

// GetBlockHash returns the stored header hash at height h, or "" if none.
func (s *Store) GetBlockHash(h uint64) (string, error) {
	var hash string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlockHashes).Get(heightKey(h))
		hash = string(v)
		return nil
	})
	return hash, err
}

// DeleteBlockHash removes the stored hash at height h.
func (s *Store) DeleteBlockHash(h uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockHashes).Delete(heightKey(h))
	})
}

// DeleteBlockHashesBefore prunes every block hash below height h.
func (s *Store) DeleteBlockHashesBefore(h uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlockHashes)
		c := bucket.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) < h {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
