package keymanager

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/walleterr"
)

// GetSpendingKeyForOutput derives the private spending scalar for an
// output identified by its blinding key and hash-id, failing with
// walleterr.ErrWalletLocked if the wallet is locked or
// walleterr.ErrUnknownOutput if hashID is not in the registry.
func (k *KeyManager) GetSpendingKeyForOutput(blindingKey blsct.PublicKey, hashID blsct.HashID) (blsct.Scalar, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.spendingKeyLocked(blindingKey, hashID)
}

func (k *KeyManager) spendingKeyLocked(blindingKey blsct.PublicKey, hashID blsct.HashID) (blsct.Scalar, error) {
	if k.state == StateLocked {
		return blsct.Scalar{}, walleterr.ErrWalletLocked
	}
	id, ok := k.registry[hashID]
	if !ok {
		return blsct.Scalar{}, walleterr.ErrUnknownOutput
	}
	return k.primitives.CalcPrivSpendingKey(blindingKey, k.viewKey, k.spendKey, id.Account, id.Address)
}

// SpendingKeyForStoredOutput derives the private spending scalar for a
// wallet-store output identified by its public (blindingKey,
// spendingKey) pair, the shape the store actually persists, recomputing
// the hash-id the registry is keyed by. Used by the transaction builder,
// which only ever sees stored outputs, never candidate blockchain hints.
func (k *KeyManager) SpendingKeyForStoredOutput(blindingKey, spendingKey blsct.PublicKey) (blsct.Scalar, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == StateLocked {
		return blsct.Scalar{}, walleterr.ErrWalletLocked
	}
	hashID, err := k.primitives.CalcHashID(blindingKey, spendingKey, k.viewKey)
	if err != nil {
		return blsct.Scalar{}, err
	}
	id, ok := k.registry[hashID]
	if !ok {
		return blsct.Scalar{}, walleterr.ErrUnknownOutput
	}
	key := outID(blindingKey, k.viewKey, k.spendKey, id.Account, id.Address)
	if cached, ok := k.outKeyCache[key]; ok {
		return cached, nil
	}
	priv, err := k.primitives.CalcPrivSpendingKey(blindingKey, k.viewKey, k.spendKey, id.Account, id.Address)
	if err != nil {
		return blsct.Scalar{}, err
	}
	k.outKeyCache[key] = priv
	return priv, nil
}

// outID computes the cache key from §4.1: SHA-256(blindingKey ||
// viewKey || spendKey || account_le64 || address_le64).
func outID(blindingKey blsct.PublicKey, viewKey, spendKey blsct.Scalar, account int64, address uint64) [32]byte {
	h := sha256.New()
	h.Write(blindingKey[:])
	h.Write(viewKey[:])
	h.Write(spendKey[:])
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(account))
	binary.LittleEndian.PutUint64(buf[8:16], address)
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GetSpendingKeyForOutputCached behaves like GetSpendingKeyForOutput
// but remembers the result keyed by outID, so repeated spends of the
// same output never re-derive the scalar.
func (k *KeyManager) GetSpendingKeyForOutputCached(blindingKey blsct.PublicKey, hashID blsct.HashID) (blsct.Scalar, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.state == StateLocked {
		return blsct.Scalar{}, walleterr.ErrWalletLocked
	}
	id, ok := k.registry[hashID]
	if !ok {
		return blsct.Scalar{}, walleterr.ErrUnknownOutput
	}
	key := outID(blindingKey, k.viewKey, k.spendKey, id.Account, id.Address)
	if cached, ok := k.outKeyCache[key]; ok {
		return cached, nil
	}
	priv, err := k.primitives.CalcPrivSpendingKey(blindingKey, k.viewKey, k.spendKey, id.Account, id.Address)
	if err != nil {
		return blsct.Scalar{}, err
	}
	k.outKeyCache[key] = priv
	return priv, nil
}
