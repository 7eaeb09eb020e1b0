// Package keymanager implements hierarchical-deterministic key
// derivation, sub-address generation, output ownership detection and
// the lock/unlock state machine for wallet secrets. It treats the
// BLSCT pairing-curve math as an opaque dependency (blsct.Primitives),
// a pure-function backend the derivation tree never reaches past.
package keymanager

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tyler-smith/go-bip39"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/cryptoenvelope"
	"github.com/nav-io/blsctwallet/walleterr"
)

// Derivation indices, fixed by the HD chain layout in the data model:
// seed -> txKey(0)/blindingKey(1)/tokenKey(2), txKey -> viewKey(0)/spendKey(1).
const (
	indexTxKey       = 0
	indexBlindingKey = 1
	indexTokenKey    = 2
	indexViewKey     = 0
	indexSpendKey    = 1
)

// Account identifiers with fixed meaning.
const (
	AccountMain    int64 = 0
	AccountChange  int64 = -1
	AccountStaking int64 = -2
)

// subAddressPreloadDepth is how many sub-addresses are pre-committed
// into each account's pool at wallet creation/restore.
const subAddressPreloadDepth = 5

// State is the key manager's encryption lifecycle.
type State int

const (
	// StatePlain: no password has ever been set; secrets are in memory
	// and never encrypted.
	StatePlain State = iota
	// StateUnlocked: a password has been set and the wallet is
	// currently open; secrets are in memory.
	StateUnlocked
	// StateLocked: a password has been set and the wallet's spending
	// secrets are not in memory; public keys and the registry still work.
	StateLocked
)

// HDChain is the immutable set of five HASH160 identifiers derived
// once at creation/restore from the master seed, spend key, view key,
// token key and blinding key.
type HDChain struct {
	Version      int
	SeedID       blsct.HashID
	SpendID      blsct.HashID
	ViewID       blsct.HashID
	TokenID      blsct.HashID
	BlindingID   blsct.HashID
}

const chainVersion = 1

type subAddrID struct {
	Account int64
	Address uint64
}

// KeyManager holds the in-memory derivation state for an open wallet.
// Exactly one of (Plain secrets) or (sealed envelope) is the source of
// truth for spending secrets, selected by state.
type KeyManager struct {
	mu sync.RWMutex

	primitives blsct.Primitives

	state State
	chain HDChain

	// Always available, even while Locked: these are not spending
	// secrets. viewKey lets recover_outputs/is_mine keep working for a
	// watch-only-style locked wallet.
	viewKey  blsct.Scalar
	spendPub blsct.PublicKey

	// Zeroed while Locked; restored by Unlock.
	seed        blsct.Scalar
	mnemonic    string
	spendKey    blsct.Scalar
	tokenKey    blsct.Scalar
	blindingKey blsct.Scalar

	encrypted bool
	verifier  cryptoenvelope.Verifier
	sealed    []byte

	registry map[blsct.HashID]subAddrID
	counter  map[int64]uint64
	reserved map[int64]map[uint64]bool

	outKeyCache map[[32]byte]blsct.Scalar
}

// New constructs an empty key manager bound to the given BLSCT
// primitives backend. Call Generate, RestoreFromSeed or
// RestoreFromMnemonic before using it.
func New(primitives blsct.Primitives) *KeyManager {
	return &KeyManager{
		primitives:  primitives,
		registry:    make(map[blsct.HashID]subAddrID),
		counter:     make(map[int64]uint64),
		reserved:    make(map[int64]map[uint64]bool),
		outKeyCache: make(map[[32]byte]blsct.Scalar),
	}
}

// Generate creates a fresh 24-word BIP-39 mnemonic (256 bits of
// entropy), derives the chain root from it, and initializes the
// sub-address pools for the main, change and staking accounts.
func (k *KeyManager) Generate() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("keymanager: generating entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keymanager: generating mnemonic: %w", err)
	}
	if err := k.initFromMnemonic(mnemonic); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// RestoreFromMnemonic deterministically rebuilds the chain root from an
// existing mnemonic phrase, failing with walleterr.ErrInvalidMnemonic
// if the BIP-39 checksum does not validate.
func (k *KeyManager) RestoreFromMnemonic(phrase string) error {
	if !bip39.IsMnemonicValid(phrase) {
		return walleterr.ErrInvalidMnemonic
	}
	return k.initFromMnemonic(phrase)
}

// RestoreFromSeed deterministically rebuilds the chain root from a
// 32-byte hex-encoded master seed, without a mnemonic.
func (k *KeyManager) RestoreFromSeed(seedHex string) error {
	b, err := hex.DecodeString(seedHex)
	if err != nil {
		return fmt.Errorf("keymanager: decoding seed hex: %w", err)
	}
	if len(b) != blsct.ScalarSize {
		return fmt.Errorf("keymanager: seed must be %d bytes, got %d", blsct.ScalarSize, len(b))
	}
	var seed blsct.Scalar
	copy(seed[:], b)
	return k.initFromSeed(seed, "")
}

func (k *KeyManager) initFromMnemonic(mnemonic string) error {
	entropySeed := bip39.NewSeed(mnemonic, "")
	seed := foldSeed(entropySeed)
	return k.initFromSeed(seed, mnemonic)
}

func (k *KeyManager) initFromSeed(seed blsct.Scalar, mnemonic string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.primitives
	txKey, err := p.ChildKey(seed, indexTxKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving tx key: %w", err)
	}
	blindingKey, err := p.ChildKey(seed, indexBlindingKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving blinding key: %w", err)
	}
	tokenKey, err := p.ChildKey(seed, indexTokenKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving token key: %w", err)
	}
	viewKey, err := p.ChildKey(txKey, indexViewKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving view key: %w", err)
	}
	spendKey, err := p.ChildKey(txKey, indexSpendKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving spend key: %w", err)
	}
	spendPub, err := p.ScalarToPublicKey(spendKey)
	if err != nil {
		return fmt.Errorf("keymanager: deriving spend public key: %w", err)
	}

	chain, err := k.buildChainRoot(seed, spendKey, viewKey, tokenKey, blindingKey)
	if err != nil {
		return err
	}

	k.seed = seed
	k.mnemonic = mnemonic
	k.spendKey = spendKey
	k.tokenKey = tokenKey
	k.blindingKey = blindingKey
	k.viewKey = viewKey
	k.spendPub = spendPub
	k.chain = chain
	k.state = StatePlain
	k.encrypted = false
	k.sealed = nil
	k.registry = make(map[blsct.HashID]subAddrID)
	k.counter = make(map[int64]uint64)
	k.reserved = make(map[int64]map[uint64]bool)
	k.outKeyCache = make(map[[32]byte]blsct.Scalar)

	for _, account := range []int64{AccountMain, AccountChange, AccountStaking} {
		if err := k.fillPoolLocked(account, subAddressPreloadDepth); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeyManager) buildChainRoot(seed, spendKey, viewKey, tokenKey, blindingKey blsct.Scalar) (HDChain, error) {
	p := k.primitives
	id := func(s blsct.Scalar) (blsct.HashID, error) {
		pub, err := p.ScalarToPublicKey(s)
		if err != nil {
			return blsct.HashID{}, err
		}
		return p.HashID160(pub[:]), nil
	}
	seedID, err := id(seed)
	if err != nil {
		return HDChain{}, err
	}
	spendID, err := id(spendKey)
	if err != nil {
		return HDChain{}, err
	}
	viewID, err := id(viewKey)
	if err != nil {
		return HDChain{}, err
	}
	tokenID, err := id(tokenKey)
	if err != nil {
		return HDChain{}, err
	}
	blindingID, err := id(blindingKey)
	if err != nil {
		return HDChain{}, err
	}
	return HDChain{
		Version:    chainVersion,
		SeedID:     seedID,
		SpendID:    spendID,
		ViewID:     viewID,
		TokenID:    tokenID,
		BlindingID: blindingID,
	}, nil
}

// foldSeed compresses a BIP-39 512-bit PBKDF2 seed into the 32-byte
// scalar the derivation tree's root expects.
func foldSeed(seed64 []byte) blsct.Scalar {
	var s blsct.Scalar
	for i, b := range seed64 {
		s[i%blsct.ScalarSize] ^= b
	}
	return s
}

// ChainRoot returns the wallet's immutable HD chain identifiers.
func (k *KeyManager) ChainRoot() HDChain {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.chain
}

// State reports the current lock state.
func (k *KeyManager) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// GetMnemonic returns the wallet's mnemonic, failing with
// walleterr.ErrWalletLocked while locked. Returns an empty string, nil
// for a wallet restored from a raw seed rather than a mnemonic.
func (k *KeyManager) GetMnemonic() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.state == StateLocked {
		return "", walleterr.ErrWalletLocked
	}
	return k.mnemonic, nil
}
