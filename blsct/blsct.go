// Package blsct defines the thin capability facade this wallet uses to
// talk to the BLS-based confidential-transaction primitives: scalars,
// points, view tags, hash-ids, range-proof nonces and amount recovery.
// Per the design, the actual pairing-curve cryptography (range proofs in
// particular) is an external collaborator; this package only fixes the
// shapes and the operations the key manager and sync engine need, the
// same way a thin crypto package fixes PublicKey/SecretKey as plain
// byte arrays and leaves the curve math to a small set of package
// functions.
package blsct

import "errors"

const (
	// ScalarSize is the length in bytes of a BLS12-381 scalar (Fr element).
	ScalarSize = 32
	// PublicKeySize is the length in bytes of a compressed G1 point.
	PublicKeySize = 48
	// HashIDSize is the length in bytes of a hash-id (HASH160 output).
	HashIDSize = 20
)

type (
	// Scalar is an opaque BLS12-381 scalar: a seed, a private key, or a
	// derivation offset. The zero Scalar is never a valid key.
	Scalar [ScalarSize]byte

	// PublicKey is an opaque compressed G1 point.
	PublicKey [PublicKeySize]byte

	// DoublePublicKey pairs the two public keys that together identify a
	// spendable output: the blinding key and the spending key.
	DoublePublicKey struct {
		Blinding PublicKey
		Spend    PublicKey
	}

	// SubAddr is the public identity of a sub-address: the same shape as
	// DoublePublicKey, kept as a distinct type because it is generated by
	// GenSubAddress rather than read off the chain.
	SubAddr struct {
		Blinding PublicKey
		Spend    PublicKey
	}

	// ViewTag is the cheap 16-bit value computed from a candidate
	// output's blinding key and our view key; a mismatch proves the
	// output is not ours without needing the (expensive) hash-id.
	ViewTag uint16

	// HashID is the HASH160 of a derived spending-key point; it is the
	// primary key into the sub-address registry.
	HashID [HashIDSize]byte
)

// IsZero reports whether s is the zero scalar (an invalid key).
func (s Scalar) IsZero() bool {
	return s == Scalar{}
}

func (s SubAddr) String() string {
	return hex(s.Blinding[:]) + hex(s.Spend[:])
}

func (pk PublicKey) String() string { return hex(pk[:]) }

func hex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

// RecoverAmountInput is one element of a recoverAmount batch: a
// candidate output's range proof plus the nonce the key manager already
// computed for it via CalcNonce.
type RecoverAmountInput struct {
	RangeProof []byte
	TokenID    *[32]byte
	Nonce      []byte
	Index      int
}

// RecoveredAmount is one successfully opened entry from a recoverAmount
// batch.
type RecoveredAmount struct {
	Index  int
	Amount uint64
	Memo   string
}

// RecoverResult is the result of a recoverAmount batch call.
type RecoverResult struct {
	Success bool
	Amounts []RecoveredAmount
}

// TxInputSpec is one input the transaction builder has already resolved
// to a spendable output and its private spending scalar.
type TxInputSpec struct {
	OutputHash         string
	PrivateSpendingKey Scalar
}

// TxOutputSpec is one output the transaction builder wants constructed:
// a destination sub-address, an amount, and an optional memo/token.
type TxOutputSpec struct {
	Destination SubAddr
	Amount      uint64
	Memo        string
	TokenID     *[32]byte
}

// BuiltOutput is one output as actually constructed: the public
// (blindingKey, spendingKey) pair an indexer would index, its view tag,
// and its sealed range proof, mirroring the shape the sync engine
// expects out of a transaction_keys_range entry.
type BuiltOutput struct {
	BlindingKey PublicKey
	SpendingKey PublicKey
	ViewTag     ViewTag
	RangeProof  []byte
	Amount      uint64
	Memo        string
	TokenID     *[32]byte
}

// BuiltTransaction is the result of a BuildTransaction call: an opaque
// signed raw transaction plus its id and the concrete outputs it
// produced, in the same order as the outputs argument.
type BuiltTransaction struct {
	TxID    string
	RawHex  string
	Outputs []BuiltOutput
}

// Primitives is the capability facade the key manager depends on. The
// production implementation (New) is backed by the herumi BLS
// library; tests use a deterministic in-memory mock (NewMock) that
// exposes call counters so invariants like "the cache must avoid
// re-deriving a key" can be asserted directly.
type Primitives interface {
	// RandomScalar returns a uniformly random nonzero scalar, used to
	// generate a fresh master seed.
	RandomScalar() (Scalar, error)

	// ChildKey derives the index'th hardened child scalar of seed, the
	// single primitive the HD chain root is built from:
	// seed -> txKey(0)/blindingKey(1)/tokenKey(2), txKey -> viewKey(0)/spendKey(1).
	ChildKey(seed Scalar, index uint64) (Scalar, error)

	// ScalarToPublicKey returns the public point corresponding to scalar s.
	ScalarToPublicKey(s Scalar) (PublicKey, error)

	// HashID160 returns HASH160(data), used both for HD chain root
	// identifiers and (via CalcHashID) for sub-address hash-ids.
	HashID160(data []byte) HashID

	// GenSubAddress derives the deterministic (blindingKey, spendingKey)
	// public pair for (account, address) under viewKey/spendPubKey.
	GenSubAddress(viewKey Scalar, spendPub PublicKey, account int64, address uint64) (SubAddr, error)

	// CalcViewTag computes the 16-bit view tag for a candidate output.
	CalcViewTag(blindingPub PublicKey, viewKey Scalar) (ViewTag, error)

	// CalcHashID computes the 20-byte hash-id used to look up a
	// candidate output's owning sub-address in the registry.
	CalcHashID(blindingPub, spendingPub PublicKey, viewKey Scalar) (HashID, error)

	// CalcPrivSpendingKey derives the private spending scalar for the
	// output owned by (account, address).
	CalcPrivSpendingKey(blindingPub PublicKey, viewKey, spendScalar Scalar, account int64, address uint64) (Scalar, error)

	// CalcNonce derives the range-proof decryption nonce bound to a
	// candidate output's blinding key and our view key.
	CalcNonce(blindingPub PublicKey, viewKey Scalar) ([]byte, error)

	// RecoverAmount attempts to open every range proof in batch,
	// returning the amounts of the ones that decrypt successfully under
	// their paired nonce.
	RecoverAmount(batch []RecoverAmountInput) (RecoverResult, error)

	// BuildTransaction assembles and signs a transaction spending
	// inputs into outputs, using blindingKey as the transaction's
	// ephemeral blinding scalar. This is the single delegation point
	// the transaction builder uses instead of touching curve math
	// itself: it receives already-resolved private spending keys and
	// returns ready-to-broadcast hex plus the concrete outputs produced.
	BuildTransaction(inputs []TxInputSpec, outputs []TxOutputSpec, blindingKey Scalar) (BuiltTransaction, error)
}

// ErrInvalidScalar is returned when an operation is given a zero or
// otherwise invalid scalar.
var ErrInvalidScalar = errors.New("blsct: invalid scalar")
