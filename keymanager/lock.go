package keymanager

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nav-io/blsctwallet/cryptoenvelope"
	"github.com/nav-io/blsctwallet/walleterr"
)

// SecretBundle is the plaintext the crypto envelope wraps: everything
// needed to resume spending, but not the view key (kept available even
// while locked so scanning continues to work).
type SecretBundle struct {
	Seed        [32]byte
	SpendKey    [32]byte
	TokenKey    [32]byte
	BlindingKey [32]byte
	Mnemonic    string
}

// Marshal serializes the bundle to the flat byte form the crypto
// envelope seals, and that the wallet store persists verbatim when the
// wallet has no password set.
func (b SecretBundle) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(b.Seed[:])
	buf.Write(b.SpendKey[:])
	buf.Write(b.TokenKey[:])
	buf.Write(b.BlindingKey[:])
	var mnLen [4]byte
	binary.LittleEndian.PutUint32(mnLen[:], uint32(len(b.Mnemonic)))
	buf.Write(mnLen[:])
	buf.WriteString(b.Mnemonic)
	return buf.Bytes()
}

// UnmarshalSecretBundle parses bytes produced by SecretBundle.Marshal.
func UnmarshalSecretBundle(data []byte) (SecretBundle, error) {
	const fixed = 32 * 4
	if len(data) < fixed+4 {
		return SecretBundle{}, fmt.Errorf("keymanager: secret bundle too short")
	}
	var b SecretBundle
	copy(b.Seed[:], data[0:32])
	copy(b.SpendKey[:], data[32:64])
	copy(b.TokenKey[:], data[64:96])
	copy(b.BlindingKey[:], data[96:128])
	mnLen := binary.LittleEndian.Uint32(data[128:132])
	if uint32(len(data)-132) < mnLen {
		return SecretBundle{}, fmt.Errorf("keymanager: secret bundle mnemonic length out of range")
	}
	b.Mnemonic = string(data[132 : 132+mnLen])
	return b, nil
}

// SetPassword encrypts the wallet's spending secrets under password,
// moving a Plain wallet to Unlocked(encrypted) or re-keying an already
// encrypted, currently-unlocked wallet.
func (k *KeyManager) SetPassword(password []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == StateLocked {
		return walleterr.ErrWalletLocked
	}

	bundle := SecretBundle{
		Seed:        k.seed,
		SpendKey:    k.spendKey,
		TokenKey:    k.tokenKey,
		BlindingKey: k.blindingKey,
		Mnemonic:    k.mnemonic,
	}
	sealed, err := cryptoenvelope.Seal(password, bundle.Marshal())
	if err != nil {
		return fmt.Errorf("keymanager: sealing secrets: %w", err)
	}
	verifier, err := cryptoenvelope.NewVerifier(password)
	if err != nil {
		return fmt.Errorf("keymanager: deriving verifier: %w", err)
	}

	k.sealed = sealed
	k.verifier = verifier
	k.encrypted = true
	k.state = StateUnlocked
	return nil
}

// Lock discards the in-memory spending secrets of an encrypted wallet.
// The view key, public keys and sub-address registry remain available.
func (k *KeyManager) Lock() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.encrypted {
		return fmt.Errorf("keymanager: cannot lock a wallet with no password set")
	}
	k.seed = [32]byte{}
	k.spendKey = [32]byte{}
	k.tokenKey = [32]byte{}
	k.blindingKey = [32]byte{}
	k.mnemonic = ""
	k.state = StateLocked
	return nil
}

// Unlock attempts to restore the in-memory spending secrets from the
// sealed envelope using password. Returns false (and stays Locked) on
// any authentication failure; never returns an error for a wrong
// password.
func (k *KeyManager) Unlock(password []byte) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.encrypted {
		return true
	}
	if !k.verifier.Check(password) {
		return false
	}
	plaintext, err := cryptoenvelope.Open(password, k.sealed)
	if err != nil {
		return false
	}
	bundle, err := UnmarshalSecretBundle(plaintext)
	if err != nil {
		return false
	}
	k.seed = bundle.Seed
	k.spendKey = bundle.SpendKey
	k.tokenKey = bundle.TokenKey
	k.blindingKey = bundle.BlindingKey
	k.mnemonic = bundle.Mnemonic
	k.state = StateUnlocked
	return true
}

// IsEncrypted reports whether a password has ever been set on this wallet.
func (k *KeyManager) IsEncrypted() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.encrypted
}
