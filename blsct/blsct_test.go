package blsct

import (
	"testing"
)

func TestScalarIsZero(t *testing.T) {
	var z Scalar
	if !z.IsZero() {
		t.Fatal("zero scalar reported as non-zero")
	}
	nz := Scalar{1}
	if nz.IsZero() {
		t.Fatal("non-zero scalar reported as zero")
	}
}

func TestMockDeterministic(t *testing.T) {
	m, counters := NewMock()
	seed := Scalar{1, 2, 3}

	k1, err := m.ChildKey(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := m.ChildKey(seed, 0)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("ChildKey not deterministic")
	}
	k3, err := m.ChildKey(seed, 1)
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k3 {
		t.Fatal("ChildKey did not vary with index")
	}
	if got := counters.ChildKey(); got != 3 {
		t.Fatalf("expected 3 ChildKey calls, got %d", got)
	}
}

func TestMockOwnershipPipeline(t *testing.T) {
	m, counters := NewMock()
	seed := Scalar{9, 9, 9}
	viewKey, _ := m.ChildKey(seed, 0)
	spendKey, _ := m.ChildKey(seed, 1)
	spendPub, err := m.ScalarToPublicKey(spendKey)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := m.GenSubAddress(viewKey, spendPub, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	tag1, err := m.CalcViewTag(sub.Blinding, viewKey)
	if err != nil {
		t.Fatal(err)
	}
	tag2, err := m.CalcViewTag(sub.Blinding, viewKey)
	if err != nil {
		t.Fatal(err)
	}
	if tag1 != tag2 {
		t.Fatal("CalcViewTag not deterministic")
	}

	hashID, err := m.CalcHashID(sub.Blinding, sub.Spend, viewKey)
	if err != nil {
		t.Fatal(err)
	}
	if hashID == (HashID{}) {
		t.Fatal("CalcHashID returned zero value")
	}

	privSpend, err := m.CalcPrivSpendingKey(sub.Blinding, viewKey, spendKey, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if privSpend.IsZero() {
		t.Fatal("CalcPrivSpendingKey returned zero scalar")
	}

	if got := counters.GenSubAddress(); got != 1 {
		t.Fatalf("expected 1 GenSubAddress call, got %d", got)
	}
}

func TestSealAndOpenRangeProof(t *testing.T) {
	nonce := []byte("0123456789abcdef")
	sealed := SealRangeProof(nonce, nil, 0, 12345, "memo")

	result, err := mockPrimitivesInstance().RecoverAmount([]RecoverAmountInput{
		{RangeProof: sealed, Nonce: nonce, Index: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Amounts) != 1 {
		t.Fatalf("expected 1 recovered amount, got %d", len(result.Amounts))
	}
	if result.Amounts[0].Amount != 12345 {
		t.Fatalf("amount mismatch: got %d", result.Amounts[0].Amount)
	}
	if result.Amounts[0].Memo != "memo" {
		t.Fatalf("memo mismatch: got %q", result.Amounts[0].Memo)
	}
}

func TestOpenRangeProofRejectsWrongNonce(t *testing.T) {
	sealed := SealRangeProof([]byte("nonce-a-----------"), nil, 0, 42, "")
	result, err := mockPrimitivesInstance().RecoverAmount([]RecoverAmountInput{
		{RangeProof: sealed, Nonce: []byte("nonce-b-----------"), Index: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Amounts) != 0 {
		t.Fatal("amount recovered under the wrong nonce")
	}
}

func mockPrimitivesInstance() Primitives {
	p, _ := NewMock()
	return p
}
