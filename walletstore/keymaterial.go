package walletstore

import (
	"encoding/json"
	"fmt"

	bolt "github.com/rivine/bbolt"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/keymanager"
)

const (
	configKeyHDChain    = "hdChain"
	configKeyViewKey    = "viewKey"
	configKeySpendPub   = "spendPub"
	configKeyEncryption = "encryptionMetadata"

	keysKeySecretBundle = "secretBundle"
)

// hdChainJSON is the on-disk shape of keymanager.HDChain: hash-ids
// round-trip as hex so the config record stays human-inspectable.
type hdChainJSON struct {
	Version    int    `json:"version"`
	SeedID     string `json:"seedId"`
	SpendID    string `json:"spendId"`
	ViewID     string `json:"viewId"`
	TokenID    string `json:"tokenId"`
	BlindingID string `json:"blindingId"`
}

func toHDChainJSON(c keymanager.HDChain) hdChainJSON {
	return hdChainJSON{
		Version:    c.Version,
		SeedID:     hexEncode(c.SeedID[:]),
		SpendID:    hexEncode(c.SpendID[:]),
		ViewID:     hexEncode(c.ViewID[:]),
		TokenID:    hexEncode(c.TokenID[:]),
		BlindingID: hexEncode(c.BlindingID[:]),
	}
}

func fromHDChainJSON(j hdChainJSON) (keymanager.HDChain, error) {
	var c keymanager.HDChain
	if j == (hdChainJSON{}) {
		return c, nil
	}
	c.Version = j.Version
	for dst, src := range map[*blsct.HashID]string{
		&c.SeedID: j.SeedID, &c.SpendID: j.SpendID, &c.ViewID: j.ViewID,
		&c.TokenID: j.TokenID, &c.BlindingID: j.BlindingID,
	} {
		b, err := hexDecode(src)
		if err != nil {
			return keymanager.HDChain{}, err
		}
		if len(b) != blsct.HashIDSize {
			return keymanager.HDChain{}, fmt.Errorf("walletstore: bad hash-id length in chain root")
		}
		copy(dst[:], b)
	}
	return c, nil
}

// SaveKeyMaterial writes out the key manager's exported projection.
func (s *Store) SaveKeyMaterial(p keymanager.Persisted) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(bucketConfig)

		chainJSON, err := json.Marshal(toHDChainJSON(p.Chain))
		if err != nil {
			return err
		}
		if err := config.Put([]byte(configKeyHDChain), chainJSON); err != nil {
			return err
		}
		if err := config.Put([]byte(configKeyViewKey), p.ViewKey[:]); err != nil {
			return err
		}
		if err := config.Put([]byte(configKeySpendPub), p.SpendPub[:]); err != nil {
			return err
		}

		encMeta := encryptionMetadataJSON{
			Encrypted: p.Encrypted,
			Salt:      hexEncode(p.VerifierSalt[:]),
			Hash:      hexEncode(p.VerifierHash[:]),
		}
		encJSON, err := json.Marshal(encMeta)
		if err != nil {
			return err
		}
		if err := config.Put([]byte(configKeyEncryption), encJSON); err != nil {
			return err
		}

		keysBucket := tx.Bucket(bucketKeys)
		cryptedBucket := tx.Bucket(bucketCryptedKeys)
		if p.Encrypted {
			if err := keysBucket.Delete([]byte(keysKeySecretBundle)); err != nil {
				return err
			}
			if err := cryptedBucket.Put([]byte(keysKeySecretBundle), p.Sealed); err != nil {
				return err
			}
		} else {
			if err := cryptedBucket.Delete([]byte(keysKeySecretBundle)); err != nil {
				return err
			}
			if err := keysBucket.Put([]byte(keysKeySecretBundle), p.Plain.Marshal()); err != nil {
				return err
			}
		}

		return saveSubAddressState(tx, p.Counter, p.Pool)
	})
}

// LoadKeyMaterial reads back the key manager's persisted projection.
func (s *Store) LoadKeyMaterial() (keymanager.Persisted, error) {
	var p keymanager.Persisted
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(bucketConfig)

		var chainJSON hdChainJSON
		if b := config.Get([]byte(configKeyHDChain)); b != nil {
			if err := json.Unmarshal(b, &chainJSON); err != nil {
				return err
			}
		}
		chain, err := fromHDChainJSON(chainJSON)
		if err != nil {
			return err
		}
		p.Chain = chain

		if b := config.Get([]byte(configKeyViewKey)); b != nil {
			copy(p.ViewKey[:], b)
		}
		if b := config.Get([]byte(configKeySpendPub)); b != nil {
			copy(p.SpendPub[:], b)
		}

		var encMeta encryptionMetadataJSON
		if b := config.Get([]byte(configKeyEncryption)); b != nil {
			if err := json.Unmarshal(b, &encMeta); err != nil {
				return err
			}
		}
		p.Encrypted = encMeta.Encrypted
		if salt, err := hexDecode(encMeta.Salt); err == nil {
			copy(p.VerifierSalt[:], salt)
		}
		if hash, err := hexDecode(encMeta.Hash); err == nil {
			copy(p.VerifierHash[:], hash)
		}

		if p.Encrypted {
			p.Sealed = append([]byte(nil), tx.Bucket(bucketCryptedKeys).Get([]byte(keysKeySecretBundle))...)
		} else {
			raw := tx.Bucket(bucketKeys).Get([]byte(keysKeySecretBundle))
			if raw != nil {
				bundle, err := keymanager.UnmarshalSecretBundle(raw)
				if err != nil {
					return err
				}
				p.Plain = bundle
			}
		}

		counter, pool, err := loadSubAddressState(tx)
		if err != nil {
			return err
		}
		p.Counter = counter
		p.Pool = pool
		return nil
	})
	return p, err
}

type encryptionMetadataJSON struct {
	Encrypted bool   `json:"encrypted"`
	Salt      string `json:"salt"`
	Hash      string `json:"hash"`
}

// IsEncrypted reports whether the stored key material is encrypted,
// without requiring a successful unlock.
func (s *Store) IsEncrypted() (bool, error) {
	var encrypted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfig).Get([]byte(configKeyEncryption))
		if b == nil {
			return nil
		}
		var meta encryptionMetadataJSON
		if err := json.Unmarshal(b, &meta); err != nil {
			return err
		}
		encrypted = meta.Encrypted
		return nil
	})
	return encrypted, err
}
