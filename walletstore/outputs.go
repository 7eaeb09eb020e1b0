package walletstore

import (
	"encoding/json"
	"sort"

	bolt "github.com/rivine/bbolt"
)

// WalletOutput is the canonical record of a UTXO the wallet owns. This
// is the store-facing shape: all BLSCT types are already serialized to
// bytes/hex by the caller (the key manager and sync engine), keeping
// pairing-curve types out of the store package entirely.
type WalletOutput struct {
	OutputHash  string
	TxHash      string
	OutputIndex uint32
	BlockHeight uint64

	Amount  uint64
	Memo    string
	TokenID *[32]byte

	BlindingKey []byte
	SpendingKey []byte

	IsSpent          bool
	SpentTxHash      string
	SpentBlockHeight *uint64

	OutputData []byte
}

// defaultTokenID is the canonical stand-in for "no token": null and an
// all-zero token id are treated as equivalent.
var defaultTokenID = [32]byte{}

func tokenFilterMatches(out *WalletOutput, filter *[32]byte) bool {
	if filter == nil {
		return true
	}
	id := defaultTokenID
	if out.TokenID != nil {
		id = *out.TokenID
	}
	return id == *filter
}

// StoreOutput upserts a wallet output by its outputHash, inside its own
// transaction. Callers that need to combine this with other mutations
// atomically should use CommitBlock instead.
func (s *Store) StoreOutput(out WalletOutput) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putOutput(tx, out)
	})
}

func putOutput(tx *bolt.Tx, out WalletOutput) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketOutputs).Put([]byte(out.OutputHash), b)
}

func getOutput(tx *bolt.Tx, outputHash string) (*WalletOutput, error) {
	raw := tx.Bucket(bucketOutputs).Get([]byte(outputHash))
	if raw == nil {
		return nil, nil
	}
	var out WalletOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkSpent marks outputHash as spent by spentTx at spentHeight.
func (s *Store) MarkSpent(outputHash, spentTx string, spentHeight uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return markSpent(tx, outputHash, spentTx, spentHeight)
	})
}

func markSpent(tx *bolt.Tx, outputHash, spentTx string, spentHeight uint64) error {
	out, err := getOutput(tx, outputHash)
	if err != nil || out == nil {
		return err
	}
	out.IsSpent = true
	out.SpentTxHash = spentTx
	height := spentHeight
	out.SpentBlockHeight = &height
	return putOutput(tx, *out)
}

// GetBalance sums amount over unspent outputs matching tokenId (nil
// means "all tokens"; a non-nil all-zero id is the default token and
// matches unset/zero TokenID fields).
func (s *Store) GetBalance(tokenID *[32]byte) (uint64, error) {
	var total uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutputs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var out WalletOutput
			if err := json.Unmarshal(v, &out); err != nil {
				return err
			}
			if !out.IsSpent && tokenFilterMatches(&out, tokenID) {
				total += out.Amount
			}
		}
		return nil
	})
	return total, err
}

// GetUnspentOutputs returns every unspent output matching tokenId,
// sorted by blockHeight ascending.
func (s *Store) GetUnspentOutputs(tokenID *[32]byte) ([]WalletOutput, error) {
	return s.queryOutputs(func(out *WalletOutput) bool {
		return !out.IsSpent && tokenFilterMatches(out, tokenID)
	})
}

// GetAllOutputs returns every output, sorted by blockHeight ascending.
func (s *Store) GetAllOutputs() ([]WalletOutput, error) {
	return s.queryOutputs(func(*WalletOutput) bool { return true })
}

func (s *Store) queryOutputs(match func(*WalletOutput) bool) ([]WalletOutput, error) {
	var outs []WalletOutput
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutputs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var out WalletOutput
			if err := json.Unmarshal(v, &out); err != nil {
				return err
			}
			if match(&out) {
				outs = append(outs, out)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i].BlockHeight < outs[j].BlockHeight })
	return outs, nil
}

// DeleteOutputsByHeight removes every output first seen at height h,
// the forward-side reorg rollback.
func (s *Store) DeleteOutputsByHeight(h uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteOutputsByHeight(tx, h)
	})
}

func deleteOutputsByHeight(tx *bolt.Tx, h uint64) error {
	bucket := tx.Bucket(bucketOutputs)
	c := bucket.Cursor()
	var toDelete [][]byte
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var out WalletOutput
		if err := json.Unmarshal(v, &out); err != nil {
			return err
		}
		if out.BlockHeight == h {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
	}
	for _, k := range toDelete {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// UnspendOutputsBySpentHeight restores isSpent=false and clears the
// spend fields on every output whose spentBlockHeight equals h, the
// spend-side reorg rollback.
func (s *Store) UnspendOutputsBySpentHeight(h uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return unspendOutputsBySpentHeight(tx, h)
	})
}

func unspendOutputsBySpentHeight(tx *bolt.Tx, h uint64) error {
	bucket := tx.Bucket(bucketOutputs)
	c := bucket.Cursor()
	var toRestore []WalletOutput
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var out WalletOutput
		if err := json.Unmarshal(v, &out); err != nil {
			return err
		}
		if out.SpentBlockHeight != nil && *out.SpentBlockHeight == h {
			toRestore = append(toRestore, out)
		}
	}
	for _, out := range toRestore {
		out.IsSpent = false
		out.SpentTxHash = ""
		out.SpentBlockHeight = nil
		if err := putOutput(tx, out); err != nil {
			return err
		}
	}
	return nil
}
