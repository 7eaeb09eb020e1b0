package walletstore

import (
	"encoding/json"

	bolt "github.com/rivine/bbolt"
)

// EncryptionMetadata is the one record kept when the wallet has a
// password set: the Argon2id salt and the verification hash computed
// over it.
type EncryptionMetadata struct {
	Salt             [16]byte
	VerificationHash [32]byte
	Version          int
}

// SaveEncryptionMetadata persists the wallet's encryption metadata
// record directly, independent of a full SaveKeyMaterial call.
func (s *Store) SaveEncryptionMetadata(meta EncryptionMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		j := encryptionMetadataJSON{
			Encrypted: true,
			Salt:      hexEncode(meta.Salt[:]),
			Hash:      hexEncode(meta.VerificationHash[:]),
		}
		b, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketConfig).Put([]byte(configKeyEncryption), b)
	})
}

// GetEncryptionMetadata reads back the wallet's encryption metadata
// record, if one has been saved.
func (s *Store) GetEncryptionMetadata() (EncryptionMetadata, bool, error) {
	var meta EncryptionMetadata
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfig).Get([]byte(configKeyEncryption))
		if b == nil {
			return nil
		}
		var j encryptionMetadataJSON
		if err := json.Unmarshal(b, &j); err != nil {
			return err
		}
		if !j.Encrypted {
			return nil
		}
		found = true
		meta.Version = 1
		if salt, err := hexDecode(j.Salt); err == nil {
			copy(meta.Salt[:], salt)
		}
		if hash, err := hexDecode(j.Hash); err == nil {
			copy(meta.VerificationHash[:], hash)
		}
		return nil
	})
	return meta, found, err
}
