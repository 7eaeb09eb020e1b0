package blsct

import (
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"
)

// mockPrimitives is a deterministic, non-cryptographic stand-in for the
// production backend: every derivation is a fixed hash chain over its
// inputs, so two calls with the same arguments always agree and the
// call counters below can be asserted against in key-manager tests
// without needing real BLS12-381 arithmetic.
type mockPrimitives struct {
	randCounter uint64

	childKeyCalls          int64
	scalarToPubKeyCalls    int64
	hashID160Calls         int64
	genSubAddressCalls     int64
	calcViewTagCalls       int64
	calcHashIDCalls        int64
	calcPrivSpendKeyCalls  int64
	calcNonceCalls         int64
	recoverAmountCalls     int64
	buildTransactionCalls  int64
}

// NewMock returns a deterministic Primitives implementation for tests,
// along with a handle to its call counters.
func NewMock() (Primitives, *MockCounters) {
	m := &mockPrimitives{}
	return m, &MockCounters{m: m}
}

// MockCounters exposes the number of times each Primitives method has
// been invoked on a mock backend, so tests can assert properties like
// "the spending-key cache must avoid re-deriving a key it already has".
type MockCounters struct{ m *mockPrimitives }

func (c *MockCounters) ChildKey() int64             { return atomic.LoadInt64(&c.m.childKeyCalls) }
func (c *MockCounters) ScalarToPublicKey() int64     { return atomic.LoadInt64(&c.m.scalarToPubKeyCalls) }
func (c *MockCounters) HashID160() int64             { return atomic.LoadInt64(&c.m.hashID160Calls) }
func (c *MockCounters) GenSubAddress() int64         { return atomic.LoadInt64(&c.m.genSubAddressCalls) }
func (c *MockCounters) CalcViewTag() int64           { return atomic.LoadInt64(&c.m.calcViewTagCalls) }
func (c *MockCounters) CalcHashID() int64            { return atomic.LoadInt64(&c.m.calcHashIDCalls) }
func (c *MockCounters) CalcPrivSpendingKey() int64   { return atomic.LoadInt64(&c.m.calcPrivSpendKeyCalls) }
func (c *MockCounters) CalcNonce() int64             { return atomic.LoadInt64(&c.m.calcNonceCalls) }
func (c *MockCounters) RecoverAmount() int64         { return atomic.LoadInt64(&c.m.recoverAmountCalls) }
func (c *MockCounters) BuildTransaction() int64      { return atomic.LoadInt64(&c.m.buildTransactionCalls) }

func (m *mockPrimitives) RandomScalar() (Scalar, error) {
	n := atomic.AddUint64(&m.randCounter, 1)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	return chainHash("random", buf[:]), nil
}

func (m *mockPrimitives) ChildKey(seed Scalar, index uint64) (Scalar, error) {
	atomic.AddInt64(&m.childKeyCalls, 1)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], index)
	return chainHash("child", seed[:], buf[:]), nil
}

func (m *mockPrimitives) ScalarToPublicKey(s Scalar) (PublicKey, error) {
	atomic.AddInt64(&m.scalarToPubKeyCalls, 1)
	if s.IsZero() {
		return PublicKey{}, ErrInvalidScalar
	}
	h := chainHash("pub", s[:])
	var pk PublicKey
	copy(pk[:], h[:])
	copy(pk[len(h):], h[:])
	return pk, nil
}

func (m *mockPrimitives) HashID160(data []byte) HashID {
	atomic.AddInt64(&m.hashID160Calls, 1)
	h := chainHash("hash160", data)
	var id HashID
	copy(id[:], h[:])
	return id
}

func (m *mockPrimitives) GenSubAddress(viewKey Scalar, spendPub PublicKey, account int64, address uint64) (SubAddr, error) {
	atomic.AddInt64(&m.genSubAddressCalls, 1)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(account))
	binary.LittleEndian.PutUint64(buf[8:16], address)
	spend := chainHash("subspend", viewKey[:], spendPub[:], buf[:])
	blind := chainHash("subblind", viewKey[:], spendPub[:], buf[:])
	var sa SubAddr
	copy(sa.Spend[:], spend[:])
	copy(sa.Spend[len(spend):], spend[:])
	copy(sa.Blinding[:], blind[:])
	copy(sa.Blinding[len(blind):], blind[:])
	return sa, nil
}

func (m *mockPrimitives) CalcViewTag(blindingPub PublicKey, viewKey Scalar) (ViewTag, error) {
	atomic.AddInt64(&m.calcViewTagCalls, 1)
	h := chainHash("viewtag", blindingPub[:], viewKey[:])
	return ViewTag(binary.LittleEndian.Uint16(h[:2])), nil
}

func (m *mockPrimitives) CalcHashID(blindingPub, spendingPub PublicKey, viewKey Scalar) (HashID, error) {
	atomic.AddInt64(&m.calcHashIDCalls, 1)
	h := chainHash("hashid", blindingPub[:], spendingPub[:], viewKey[:])
	var id HashID
	copy(id[:], h[:])
	return id, nil
}

func (m *mockPrimitives) CalcPrivSpendingKey(blindingPub PublicKey, viewKey, spendScalar Scalar, account int64, address uint64) (Scalar, error) {
	atomic.AddInt64(&m.calcPrivSpendKeyCalls, 1)
	if spendScalar.IsZero() {
		return Scalar{}, ErrInvalidScalar
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(account))
	binary.LittleEndian.PutUint64(buf[8:16], address)
	return chainHash("privspend", blindingPub[:], viewKey[:], spendScalar[:], buf[:]), nil
}

func (m *mockPrimitives) CalcNonce(blindingPub PublicKey, viewKey Scalar) ([]byte, error) {
	atomic.AddInt64(&m.calcNonceCalls, 1)
	h := chainHash("nonce", blindingPub[:], viewKey[:])
	return h[:], nil
}

func (m *mockPrimitives) RecoverAmount(batch []RecoverAmountInput) (RecoverResult, error) {
	atomic.AddInt64(&m.recoverAmountCalls, 1)
	result := RecoverResult{Success: true}
	for _, in := range batch {
		amount, memo, ok := openRangeProof(in)
		if !ok {
			continue
		}
		result.Amounts = append(result.Amounts, RecoveredAmount{Index: in.Index, Amount: amount, Memo: memo})
	}
	return result, nil
}

func (m *mockPrimitives) BuildTransaction(inputs []TxInputSpec, outputs []TxOutputSpec, blindingKey Scalar) (BuiltTransaction, error) {
	atomic.AddInt64(&m.buildTransactionCalls, 1)
	return buildTransaction(m, inputs, outputs, blindingKey)
}

func chainHash(domain string, parts ...[]byte) Scalar {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}
	var s Scalar
	copy(s[:], h.Sum(nil))
	return s
}
