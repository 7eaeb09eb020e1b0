// Package cryptoenvelope implements the password-based encryption this
// wallet uses to protect its spending keys at rest: an Argon2id KDF
// feeding an AES-256-GCM AEAD. The KDF-then-AEAD shape is a common
// pattern for password-protected secrets; this package uses the
// stronger, memory-hard Argon2id primitive for the stretch step.
package cryptoenvelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Version is the current envelope format tag.
	Version byte = 1

	saltSize = 16
	ivSize   = 12

	argonMemoryKiB  = 64 * 1024
	argonIterations = 3
	argonThreads    = 4
	argonKeyLen     = 32
)

// ErrWrongPassword is returned when Open fails to authenticate an
// envelope, which (barring corruption) means the password was wrong.
var ErrWrongPassword = errors.New("cryptoenvelope: wrong password or corrupted data")

// ErrUnsupportedVersion is returned when an envelope's version byte
// does not match any format this package knows how to open.
var ErrUnsupportedVersion = errors.New("cryptoenvelope: unsupported envelope version")

// deriveKey stretches password+salt into a 32-byte AES-256 key via
// Argon2id, using fixed cost parameters: 64 MiB memory, 3 iterations,
// 4-way parallelism.
func deriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonIterations, argonMemoryKiB, argonThreads, argonKeyLen)
}

// Seal encrypts plaintext under password, returning a self-contained
// envelope: version(1B) || salt(16B) || iv(12B) || ciphertext||tag.
func Seal(password, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptoenvelope: generating salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cryptoenvelope: generating iv: %w", err)
	}

	key := deriveKey(password, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+saltSize+ivSize+len(plaintext)+gcm.Overhead())
	out = append(out, Version)
	out = append(out, salt...)
	out = append(out, iv...)
	out = gcm.Seal(out, iv, plaintext, nil)
	return out, nil
}

// Open authenticates and decrypts an envelope produced by Seal. A
// non-nil error (ErrWrongPassword in particular) must be treated as an
// authentication failure, not a transient error: callers must not retry
// with the same password.
func Open(password, envelope []byte) ([]byte, error) {
	if len(envelope) < 1+saltSize+ivSize {
		return nil, ErrWrongPassword
	}
	if envelope[0] != Version {
		return nil, ErrUnsupportedVersion
	}
	salt := envelope[1 : 1+saltSize]
	iv := envelope[1+saltSize : 1+saltSize+ivSize]
	ciphertext := envelope[1+saltSize+ivSize:]

	key := deriveKey(password, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: constructing GCM mode: %w", err)
	}
	return gcm, nil
}

// Verifier is a password-check value that can be stored alongside an
// envelope so a caller can reject a wrong password before attempting
// the (comparatively expensive) Argon2id+AES-GCM round trip on every
// protected record.
type Verifier struct {
	Salt [saltSize]byte
	Hash [sha256.Size]byte
}

// NewVerifier derives a fresh salted verifier for password.
func NewVerifier(password []byte) (Verifier, error) {
	var v Verifier
	if _, err := rand.Read(v.Salt[:]); err != nil {
		return Verifier{}, fmt.Errorf("cryptoenvelope: generating verifier salt: %w", err)
	}
	v.Hash = verifierHash(password, v.Salt[:])
	return v, nil
}

// Check reports whether password matches the verifier, in constant
// time with respect to the comparison step.
func (v Verifier) Check(password []byte) bool {
	got := verifierHash(password, v.Salt[:])
	return subtle.ConstantTimeCompare(got[:], v.Hash[:]) == 1
}

// verifierHash computes SHA-256(Argon2id(password, salt)): the same
// memory-hard stretch Seal/Open use for the encryption key, so the
// stored verifier is no easier to brute-force than the envelope itself.
func verifierHash(password, salt []byte) [sha256.Size]byte {
	stretched := deriveKey(password, salt)
	return sha256.Sum256(stretched)
}
