package walletstore

import (
	"encoding/binary"

	bolt "github.com/rivine/bbolt"
)

// subAddresses bucket layout: each account's counter is stored under
// key "counter:<account_be64>", and each pool entry under
// "pool:<account_be64><address_be64>" with a 1-byte free/used value.
// This is a cache the key manager can always rebuild from the chain
// root, but persisting it avoids a full pool re-scan on every load.

func saveSubAddressState(tx *bolt.Tx, counter map[int64]uint64, pool map[int64]map[uint64]bool) error {
	// Clear previous contents by recreating the bucket: bbolt bucket
	// handles do not expose a bulk clear, and an explicit drop+recreate
	// guarantees removed accounts/addresses don't linger as stale keys.
	if err := tx.DeleteBucket(bucketSubAddresses); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	bucket, err := tx.CreateBucket(bucketSubAddresses)
	if err != nil {
		return err
	}

	for account, next := range counter {
		key := append([]byte("counter:"), accountKey(account)...)
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], next)
		if err := bucket.Put(key, v[:]); err != nil {
			return err
		}
	}
	for account, addrs := range pool {
		for address, free := range addrs {
			key := append([]byte("pool:"), append(accountKey(account), addressKey(address)...)...)
			v := byte(0)
			if free {
				v = 1
			}
			if err := bucket.Put(key, []byte{v}); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadSubAddressState(tx *bolt.Tx) (map[int64]uint64, map[int64]map[uint64]bool, error) {
	counter := make(map[int64]uint64)
	pool := make(map[int64]map[uint64]bool)

	bucket := tx.Bucket(bucketSubAddresses)
	c := bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		switch {
		case hasPrefix(k, "counter:"):
			account := decodeAccountKey(k[len("counter:"):])
			counter[account] = binary.BigEndian.Uint64(v)
		case hasPrefix(k, "pool:"):
			rest := k[len("pool:"):]
			if len(rest) != 16 {
				continue
			}
			account := decodeAccountKey(rest[:8])
			address := binary.BigEndian.Uint64(rest[8:16])
			if _, ok := pool[account]; !ok {
				pool[account] = make(map[uint64]bool)
			}
			pool[account][address] = len(v) > 0 && v[0] == 1
		}
	}
	return counter, pool, nil
}

func accountKey(account int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(account))
	return b[:]
}

func decodeAccountKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func addressKey(address uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], address)
	return b[:]
}

func hasPrefix(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	return string(b[:len(prefix)]) == prefix
}
