package keymanager

import (
	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/cryptoenvelope"
)

// Persisted is the key manager's serialized projection: exactly the
// bytes the wallet store's config/keys/cryptedKeys record kinds hold.
// The store never sees a Scalar or PublicKey value directly, only this
// flat, store-friendly shape.
type Persisted struct {
	Chain     HDChain
	ViewKey   blsct.Scalar  // config record "viewKey": always plaintext
	SpendPub  blsct.PublicKey
	Encrypted bool
	// Plain is valid, and Sealed/VerifierSalt/VerifierHash are zero,
	// when Encrypted is false.
	Plain SecretBundle
	// Sealed is the cryptoenvelope output of SetPassword; valid when
	// Encrypted is true.
	Sealed        []byte
	VerifierSalt  [16]byte
	VerifierHash  [32]byte

	// Pool is the serialized reservation state per account, and Counter
	// the next-unused address per account; both are rebuildable from
	// the chain root (registry is a cache, not ground truth) but are
	// carried to avoid a full pool re-scan on every load.
	Counter map[int64]uint64
	Pool    map[int64]map[uint64]bool
}

// Export snapshots the key manager's persistent projection for the
// wallet store to write out. Safe to call in any lock state.
func (k *KeyManager) Export() Persisted {
	k.mu.RLock()
	defer k.mu.RUnlock()

	p := Persisted{
		Chain:     k.chain,
		ViewKey:   k.viewKey,
		SpendPub:  k.spendPub,
		Encrypted: k.encrypted,
		Counter:   make(map[int64]uint64, len(k.counter)),
		Pool:      make(map[int64]map[uint64]bool, len(k.reserved)),
	}
	for account, next := range k.counter {
		p.Counter[account] = next
	}
	for account, pool := range k.reserved {
		copied := make(map[uint64]bool, len(pool))
		for addr, free := range pool {
			copied[addr] = free
		}
		p.Pool[account] = copied
	}
	if k.encrypted {
		p.Sealed = append([]byte(nil), k.sealed...)
		p.VerifierSalt = k.verifier.Salt
		p.VerifierHash = k.verifier.Hash
	} else {
		p.Plain = SecretBundle{
			Seed:        k.seed,
			SpendKey:    k.spendKey,
			TokenKey:    k.tokenKey,
			BlindingKey: k.blindingKey,
			Mnemonic:    k.mnemonic,
		}
	}
	return p
}

// Import restores a key manager from a previously exported projection.
// The resulting state is Plain if p.Encrypted is false, or Locked
// (requiring Unlock) if p.Encrypted is true — a freshly reopened
// encrypted wallet never starts Unlocked.
func Import(primitives blsct.Primitives, p Persisted) *KeyManager {
	k := New(primitives)
	k.chain = p.Chain
	k.viewKey = p.ViewKey
	k.spendPub = p.SpendPub
	k.encrypted = p.Encrypted
	k.counter = make(map[int64]uint64, len(p.Counter))
	for account, next := range p.Counter {
		k.counter[account] = next
	}
	k.reserved = make(map[int64]map[uint64]bool, len(p.Pool))
	for account, pool := range p.Pool {
		copied := make(map[uint64]bool, len(pool))
		for addr, free := range pool {
			copied[addr] = free
		}
		k.reserved[account] = copied
	}

	if p.Encrypted {
		k.sealed = append([]byte(nil), p.Sealed...)
		k.verifier = cryptoenvelope.Verifier{Salt: p.VerifierSalt, Hash: p.VerifierHash}
		k.state = StateLocked
	} else {
		k.seed = p.Plain.Seed
		k.spendKey = p.Plain.SpendKey
		k.tokenKey = p.Plain.TokenKey
		k.blindingKey = p.Plain.BlindingKey
		k.mnemonic = p.Plain.Mnemonic
		k.state = StatePlain
	}

	k.rebuildRegistry()
	return k
}

// rebuildRegistry re-derives the sub-address registry from the chain
// root and the known pool/counter ranges, since the registry itself is
// never persisted (it is a cache, not ground truth).
func (k *KeyManager) rebuildRegistry() {
	k.registry = make(map[blsct.HashID]subAddrID)
	for account, next := range k.counter {
		for address := uint64(0); address < next; address++ {
			_ = k.registerLocked(account, address)
		}
	}
	for account, pool := range k.reserved {
		for address := range pool {
			_ = k.registerLocked(account, address)
		}
	}
}
