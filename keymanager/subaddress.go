package keymanager

import (
	"sort"

	"github.com/nav-io/blsctwallet/blsct"
)

// SubAddressRef names one registered sub-address by its derivation
// coordinates.
type SubAddressRef struct {
	Account int64
	Address uint64
}

// GetSubAddress returns the deterministic public sub-address pair for
// (account, address). It is a pure function of the chain root and
// works regardless of lock state, since it only needs the (always
// available) view key and spend public key.
func (k *KeyManager) GetSubAddress(account int64, address uint64) (blsct.SubAddr, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.primitives.GenSubAddress(k.viewKey, k.spendPub, account, address)
}

// NewSubAddress returns the next unused address index for account,
// advancing the account's counter and registering the resulting
// hash-id in the sub-address registry.
func (k *KeyManager) NewSubAddress(account int64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	address := k.counter[account]
	if err := k.registerLocked(account, address); err != nil {
		return 0, err
	}
	k.counter[account] = address + 1
	return address, nil
}

// ReserveSubAddress hands out a pre-committed address from account's
// pool for UI handoff without marking it "used" in the counter. The
// same address is never reserved twice until it is released.
func (k *KeyManager) ReserveSubAddress(account int64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	pool := k.reserved[account]
	for address, free := range pool {
		if free {
			pool[address] = false
			return address, nil
		}
	}
	if err := k.fillPoolLocked(account, subAddressPreloadDepth); err != nil {
		return 0, err
	}
	for address, free := range k.reserved[account] {
		if free {
			k.reserved[account][address] = false
			return address, nil
		}
	}
	return 0, errNoPoolCapacity
}

// ReleaseSubAddress returns a reserved-but-unused address to account's
// pool, making it available for the next ReserveSubAddress call.
func (k *KeyManager) ReleaseSubAddress(account int64, address uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	pool, ok := k.reserved[account]
	if !ok {
		return errUnknownPoolAddress
	}
	if _, ok := pool[address]; !ok {
		return errUnknownPoolAddress
	}
	pool[address] = true
	return nil
}

// fillPoolLocked registers and marks free the next depth addresses in
// account's pool, starting just past the highest address already
// known to the pool. Caller must hold k.mu.
func (k *KeyManager) fillPoolLocked(account int64, depth int) error {
	pool, ok := k.reserved[account]
	if !ok {
		pool = make(map[uint64]bool)
		k.reserved[account] = pool
	}
	next := uint64(len(pool))
	for i := 0; i < depth; i++ {
		address := next + uint64(i)
		if _, exists := pool[address]; exists {
			continue
		}
		if err := k.registerLocked(account, address); err != nil {
			return err
		}
		pool[address] = true
	}
	return nil
}

// registerLocked derives (account, address)'s sub-address and records
// its hash-id in the registry. Caller must hold k.mu.
func (k *KeyManager) registerLocked(account int64, address uint64) error {
	sub, err := k.primitives.GenSubAddress(k.viewKey, k.spendPub, account, address)
	if err != nil {
		return err
	}
	hashID, err := k.primitives.CalcHashID(sub.Blinding, sub.Spend, k.viewKey)
	if err != nil {
		return err
	}
	k.registry[hashID] = subAddrID{Account: account, Address: address}
	return nil
}

// IsMine tests whether a candidate output belongs to this wallet. The
// fast path rejects on a view-tag mismatch without touching the
// registry; the slow path looks up the output's hash-id. It never
// returns an error: any internal failure is treated as "not mine".
func (k *KeyManager) IsMine(blindingKey, spendingKey blsct.PublicKey, viewTag blsct.ViewTag) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	tag, err := k.primitives.CalcViewTag(blindingKey, k.viewKey)
	if err != nil || tag != viewTag {
		return false
	}
	hashID, err := k.primitives.CalcHashID(blindingKey, spendingKey, k.viewKey)
	if err != nil {
		return false
	}
	_, ok := k.registry[hashID]
	return ok
}

// KnownSubAddresses returns every (account, address) pair currently
// registered, sorted by account then address for deterministic display
// and iteration order.
func (k *KeyManager) KnownSubAddresses() []SubAddressRef {
	k.mu.RLock()
	defer k.mu.RUnlock()

	refs := make([]SubAddressRef, 0, len(k.registry))
	for _, id := range k.registry {
		refs = append(refs, SubAddressRef{Account: id.Account, Address: id.Address})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Account != refs[j].Account {
			return refs[i].Account < refs[j].Account
		}
		return refs[i].Address < refs[j].Address
	})
	return refs
}

// ResolveHashID reports the (account, address) registered for hashID,
// if any.
func (k *KeyManager) ResolveHashID(hashID blsct.HashID) (account int64, address uint64, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.registry[hashID]
	return id.Account, id.Address, ok
}

type poolError string

func (e poolError) Error() string { return string(e) }

const (
	errNoPoolCapacity     poolError = "keymanager: no free sub-address in pool"
	errUnknownPoolAddress poolError = "keymanager: address not present in pool"
)
