package persist

import (
	"time"

	bolt "github.com/rivine/bbolt"
)

// BoltDatabase is a persist-level wrapper around a bbolt database,
// tagging it with the Metadata header/version the rest of this package
// uses, a shape every component needing a KV store shares.
type BoltDatabase struct {
	Metadata
	*bolt.DB
}

// OpenDatabase opens (creating if necessary) the bbolt file at filename
// and validates or stamps its metadata bucket.
func OpenDatabase(md Metadata, filename string) (*BoltDatabase, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	boltDB := &BoltDatabase{Metadata: md, DB: db}
	if err := boltDB.checkMetadata(md); err != nil {
		db.Close()
		return nil, err
	}
	return boltDB, nil
}

var metadataBucket = []byte("Metadata")

func (db *BoltDatabase) checkMetadata(md Metadata) error {
	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		if bucket == nil {
			return db.writeMetadata(tx)
		}
		if header := string(bucket.Get([]byte("Header"))); header != md.Header {
			return ErrBadHeader
		}
		if version := string(bucket.Get([]byte("Version"))); version != md.Version {
			return ErrBadVersion
		}
		return nil
	})
}

func (db *BoltDatabase) writeMetadata(tx *bolt.Tx) error {
	bucket, err := tx.CreateBucketIfNotExists(metadataBucket)
	if err != nil {
		return err
	}
	if err := bucket.Put([]byte("Header"), []byte(db.Header)); err != nil {
		return err
	}
	return bucket.Put([]byte("Version"), []byte(db.Version))
}

// Close closes the underlying bbolt database.
func (db *BoltDatabase) Close() error {
	return db.DB.Close()
}
