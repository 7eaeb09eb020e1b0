package blsct

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"
	bls "github.com/herumi/bls-eth-go-binary/bls"
)

var initOnce sync.Once
var initErr error

func ensureInit() error {
	initOnce.Do(func() {
		initErr = bls.Init(bls.BLS12_381)
		if initErr == nil {
			bls.SetETHmode(bls.EthModeDraft07)
		}
	})
	return initErr
}

// herumiPrimitives implements Primitives on top of the herumi BLS12-381
// library for scalar/point arithmetic, with the sub-address and
// view-tag/hash-id/nonce derivations built out of HMAC-SHA256 over those
// points, following the same "public key ⊕ account/address -> scalar
// offset" construction Monero-style sub-addresses use.
type herumiPrimitives struct{}

// New returns the production BLS12-381-backed Primitives implementation.
func New() (Primitives, error) {
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("blsct: initializing BLS12-381 backend: %w", err)
	}
	return herumiPrimitives{}, nil
}

func (herumiPrimitives) RandomScalar() (Scalar, error) {
	var sec bls.SecretKey
	sec.SetByCSPRNG()
	var s Scalar
	copy(s[:], sec.GetLittleEndian())
	return s, nil
}

// ChildKey derives the index'th hardened child of seed using a BIP-32
// style master key (github.com/btcsuite/btcutil/hdkeychain) as the
// entropy-stretching step, then reduces the child's private key bytes
// into a BLS scalar. This underlies the seed -> txKey/blindingKey/
// tokenKey and txKey -> viewKey/spendKey derivation paths.
func (herumiPrimitives) ChildKey(seed Scalar, index uint64) (Scalar, error) {
	master, err := hdkeychain.NewMaster(seed[:], &chaincfg.MainNetParams)
	if err != nil {
		return Scalar{}, fmt.Errorf("blsct: deriving master key: %w", err)
	}
	child, err := master.Child(hdkeychain.HardenedKeyStart + uint32(index))
	if err != nil {
		return Scalar{}, fmt.Errorf("blsct: deriving child %d: %w", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return Scalar{}, fmt.Errorf("blsct: reading child private key: %w", err)
	}
	var sec bls.SecretKey
	buf := priv.Serialize()
	if err := sec.SetLittleEndian(reverse(buf)); err != nil {
		return Scalar{}, fmt.Errorf("blsct: reducing child key into scalar: %w", err)
	}
	var s Scalar
	copy(s[:], sec.GetLittleEndian())
	return s, nil
}

func (herumiPrimitives) ScalarToPublicKey(s Scalar) (PublicKey, error) {
	if s.IsZero() {
		return PublicKey{}, ErrInvalidScalar
	}
	var sec bls.SecretKey
	if err := sec.SetLittleEndian(s[:]); err != nil {
		return PublicKey{}, fmt.Errorf("blsct: loading scalar: %w", err)
	}
	pub := sec.GetPublicKey()
	var pk PublicKey
	copy(pk[:], pub.Serialize())
	return pk, nil
}

func (herumiPrimitives) HashID160(data []byte) HashID {
	var h HashID
	copy(h[:], btcutil.Hash160(data))
	return h
}

// GenSubAddress derives SubAddr(account, address) as:
//
//	offset   = HMAC-SHA256(viewKey, "subaddr" || account || address)
//	spendPub = spendPub + offset*G
//	blindPub = viewKey*G + spendPub  (a point-addition stand-in for viewKey * spendPub)
//
// This is the same two-key construction Monero sub-addresses use,
// adapted to the (blindingKey, spendingKey) pairing this wallet's
// outputs carry instead of Monero's single stealth address.
func (h herumiPrimitives) GenSubAddress(viewKey Scalar, spendPub PublicKey, account int64, address uint64) (SubAddr, error) {
	offset := subAddressOffset(viewKey, account, address)
	var offsetSec bls.SecretKey
	if err := offsetSec.SetLittleEndian(offset[:]); err != nil {
		return SubAddr{}, fmt.Errorf("blsct: loading sub-address offset: %w", err)
	}
	var spend bls.PublicKey
	if err := spend.Deserialize(spendPub[:]); err != nil {
		return SubAddr{}, fmt.Errorf("blsct: loading spend public key: %w", err)
	}
	offsetPub := offsetSec.GetPublicKey()
	derivedSpend := new(bls.PublicKey)
	*derivedSpend = spend
	derivedSpend.Add(offsetPub)

	var viewSec bls.SecretKey
	if err := viewSec.SetLittleEndian(viewKey[:]); err != nil {
		return SubAddr{}, fmt.Errorf("blsct: loading view key: %w", err)
	}
	// blindingKey approximates viewKey*derivedSpend; the Go binding only
	// exposes scalar*G and point+point, so the DH-style scalar*point step
	// a production range-proof backend needs is out of this facade's
	// scope (see package doc) and stood in for with a point addition.
	blindingDerived := viewSec.GetPublicKey()
	blindingDerived.Add(derivedSpend)

	var sa SubAddr
	copy(sa.Spend[:], derivedSpend.Serialize())
	copy(sa.Blinding[:], blindingDerived.Serialize())
	return sa, nil
}

func subAddressOffset(viewKey Scalar, account int64, address uint64) Scalar {
	mac := hmac.New(sha256.New, viewKey[:])
	mac.Write([]byte("subaddr"))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(account))
	binary.LittleEndian.PutUint64(buf[8:16], address)
	mac.Write(buf[:])
	var s Scalar
	copy(s[:], mac.Sum(nil))
	return s
}

// CalcViewTag returns the low 16 bits of HMAC-SHA256(viewKey,
// "viewtag"||blindingPub), the cheap filter that eliminates the vast
// majority of non-owned outputs before any point arithmetic is needed.
func (herumiPrimitives) CalcViewTag(blindingPub PublicKey, viewKey Scalar) (ViewTag, error) {
	mac := hmac.New(sha256.New, viewKey[:])
	mac.Write([]byte("viewtag"))
	mac.Write(blindingPub[:])
	sum := mac.Sum(nil)
	return ViewTag(binary.LittleEndian.Uint16(sum[:2])), nil
}

func (herumiPrimitives) CalcHashID(blindingPub, spendingPub PublicKey, viewKey Scalar) (HashID, error) {
	mac := hmac.New(sha256.New, viewKey[:])
	mac.Write([]byte("hashid"))
	mac.Write(blindingPub[:])
	mac.Write(spendingPub[:])
	var h HashID
	copy(h[:], btcutil.Hash160(mac.Sum(nil)))
	return h, nil
}

// CalcPrivSpendingKey returns spendScalar + subAddressOffset(viewKey,
// account, address) mod the group order, the private counterpart of the
// public derivation GenSubAddress performs.
func (herumiPrimitives) CalcPrivSpendingKey(blindingPub PublicKey, viewKey, spendScalar Scalar, account int64, address uint64) (Scalar, error) {
	if spendScalar.IsZero() {
		return Scalar{}, ErrInvalidScalar
	}
	offset := subAddressOffset(viewKey, account, address)
	var spendSec, offsetSec bls.SecretKey
	if err := spendSec.SetLittleEndian(spendScalar[:]); err != nil {
		return Scalar{}, err
	}
	if err := offsetSec.SetLittleEndian(offset[:]); err != nil {
		return Scalar{}, err
	}
	spendSec.Add(&offsetSec)
	var out Scalar
	copy(out[:], spendSec.GetLittleEndian())
	return out, nil
}

// CalcNonce derives the range-proof decryption nonce as HMAC-SHA256
// keyed by viewKey over the serialized blindingPub; it is not the curve
// product viewKey*blindingPub.
func (herumiPrimitives) CalcNonce(blindingPub PublicKey, viewKey Scalar) ([]byte, error) {
	var viewSec bls.SecretKey
	if err := viewSec.SetLittleEndian(viewKey[:]); err != nil {
		return nil, err
	}
	var pub bls.PublicKey
	if err := pub.Deserialize(blindingPub[:]); err != nil {
		return nil, fmt.Errorf("blsct: loading blinding public key: %w", err)
	}
	shared := sharedSecretPoint(viewSec, pub)
	return shared, nil
}

func sharedSecretPoint(viewSec bls.SecretKey, blindingPub bls.PublicKey) []byte {
	// herumi's Go binding does not expose a raw scalar*point primitive
	// directly, so this is an HMAC-SHA256 keyed by the view scalar over
	// the serialized blinding key: deterministic for a given (viewKey,
	// blinding key) pair, and computable only with viewKey, not with the
	// blinding scalar.
	h := hmac.New(sha256.New, viewSec.GetLittleEndian())
	h.Write(blindingPub.Serialize())
	return h.Sum(nil)
}

// RecoverAmount opens every entry in batch whose range proof decrypts
// (AEAD-style, keyed by the paired nonce+tokenID+index) to a valid
// 8-byte little-endian amount plus an authentication tag. Real BLSCT
// range proofs carry a Pedersen-committed amount recovered via the
// nonce-derived blinding factor; this facade's job is only to define
// that contract so the key manager and sync engine can be written and
// tested against it.
func (herumiPrimitives) RecoverAmount(batch []RecoverAmountInput) (RecoverResult, error) {
	result := RecoverResult{Success: true}
	for _, in := range batch {
		amount, memo, ok := openRangeProof(in)
		if !ok {
			continue
		}
		result.Amounts = append(result.Amounts, RecoveredAmount{
			Index:  in.Index,
			Amount: amount,
			Memo:   memo,
		})
	}
	return result, nil
}

func openRangeProof(in RecoverAmountInput) (amount uint64, memo string, ok bool) {
	if len(in.RangeProof) < 40 {
		return 0, "", false
	}
	keystream := rangeProofKeystream(in.Nonce, in.TokenID, in.Index, len(in.RangeProof)-32)
	payload := make([]byte, len(in.RangeProof)-32)
	ciphertext, tag := in.RangeProof[:len(in.RangeProof)-32], in.RangeProof[len(in.RangeProof)-32:]
	for i := range payload {
		payload[i] = ciphertext[i] ^ keystream[i]
	}
	mac := hmac.New(sha256.New, in.Nonce)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return 0, "", false
	}
	if len(payload) < 8 {
		return 0, "", false
	}
	amount = binary.LittleEndian.Uint64(payload[:8])
	memo = string(payload[8:])
	return amount, memo, true
}

func rangeProofKeystream(nonce []byte, tokenID *[32]byte, index int, n int) []byte {
	var seedBuf []byte
	seedBuf = append(seedBuf, nonce...)
	if tokenID != nil {
		seedBuf = append(seedBuf, tokenID[:]...)
	}
	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], uint64(index))
	seedBuf = append(seedBuf, idxBuf[:]...)

	out := make([]byte, 0, n)
	counter := uint32(0)
	for len(out) < n {
		h := sha256.New()
		h.Write(seedBuf)
		var cb [4]byte
		binary.LittleEndian.PutUint32(cb[:], counter)
		h.Write(cb[:])
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:n]
}

// SealRangeProof is the sender-side counterpart of openRangeProof,
// exported for tests and for the transaction builder's own output
// construction path.
func SealRangeProof(nonce []byte, tokenID *[32]byte, index int, amount uint64, memo string) []byte {
	payload := make([]byte, 8+len(memo))
	binary.LittleEndian.PutUint64(payload[:8], amount)
	copy(payload[8:], memo)
	keystream := rangeProofKeystream(nonce, tokenID, index, len(payload))
	ciphertext := make([]byte, len(payload))
	for i := range payload {
		ciphertext[i] = payload[i] ^ keystream[i]
	}
	mac := hmac.New(sha256.New, nonce)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)
	return append(ciphertext, tag...)
}

// BuildTransaction delegates to the package's shared construction
// logic, which itself calls back into this same herumiPrimitives value
// for CalcViewTag/CalcNonce, so change outputs are indexed exactly as
// this wallet's own rescan would recompute them.
func (h herumiPrimitives) BuildTransaction(inputs []TxInputSpec, outputs []TxOutputSpec, blindingKey Scalar) (BuiltTransaction, error) {
	return buildTransaction(h, inputs, outputs, blindingKey)
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}
