package keymanager

import (
	"testing"

	"github.com/nav-io/blsctwallet/blsct"
)

const fixedMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestManager(t *testing.T) (*KeyManager, *blsct.MockCounters) {
	t.Helper()
	primitives, counters := blsct.NewMock()
	k := New(primitives)
	if err := k.RestoreFromMnemonic(fixedMnemonic); err != nil {
		t.Fatalf("RestoreFromMnemonic: %v", err)
	}
	return k, counters
}

// TestDerivationDeterminism covers testable property S1/1: restoring
// the same mnemonic twice yields identical chain roots and identical
// sub-address serializations.
func TestDerivationDeterminism(t *testing.T) {
	k1, _ := newTestManager(t)
	k2, _ := newTestManager(t)

	if k1.ChainRoot() != k2.ChainRoot() {
		t.Fatal("same mnemonic produced different chain roots")
	}

	sub1, err := k1.GetSubAddress(AccountMain, 0)
	if err != nil {
		t.Fatal(err)
	}
	sub2, err := k2.GetSubAddress(AccountMain, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sub1 != sub2 {
		t.Fatal("same mnemonic produced different (0,0) sub-address")
	}
}

func TestIsMineRoundTrip(t *testing.T) {
	k, _ := newTestManager(t)

	address, err := k.NewSubAddress(AccountMain)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := k.GetSubAddress(AccountMain, address)
	if err != nil {
		t.Fatal(err)
	}

	tag, err := k.primitives.CalcViewTag(sub.Blinding, k.viewKey)
	if err != nil {
		t.Fatal(err)
	}
	if !k.IsMine(sub.Blinding, sub.Spend, tag) {
		t.Fatal("IsMine rejected an owned output")
	}

	var foreignBlinding blsct.PublicKey
	foreignBlinding[0] = 0xff
	if k.IsMine(foreignBlinding, sub.Spend, tag) {
		t.Fatal("IsMine accepted an output with an unrelated blinding key")
	}
}

// TestViewTagFastPathSoundness is a scaled-down version of testable
// property S4/2: a mixed corpus of owned and unowned candidate outputs
// must be classified correctly, and non-owned outputs must not trigger
// a hash-id lookup once the view tag has already ruled them out.
func TestViewTagFastPathSoundness(t *testing.T) {
	k, counters := newTestManager(t)

	address, err := k.NewSubAddress(AccountMain)
	if err != nil {
		t.Fatal(err)
	}
	owned, err := k.GetSubAddress(AccountMain, address)
	if err != nil {
		t.Fatal(err)
	}
	ownedTag, err := k.primitives.CalcViewTag(owned.Blinding, k.viewKey)
	if err != nil {
		t.Fatal(err)
	}

	if !k.IsMine(owned.Blinding, owned.Spend, ownedTag) {
		t.Fatal("owned output rejected")
	}
	hashIDCallsAfterOwned := counters.CalcHashID()
	if hashIDCallsAfterOwned == 0 {
		t.Fatal("expected a hash-id lookup for the owned output")
	}

	const unownedCount = 500
	for i := 0; i < unownedCount; i++ {
		var blinding, spending blsct.PublicKey
		blinding[0] = byte(i)
		blinding[1] = byte(i >> 8)
		spending[0] = byte(i)
		if k.IsMine(blinding, spending, blsct.ViewTag(i)) {
			t.Fatalf("unowned candidate %d reported as mine", i)
		}
	}
	if extra := counters.CalcHashID() - hashIDCallsAfterOwned; extra != 0 {
		t.Fatalf("expected the view tag to reject every unowned candidate before a hash-id lookup, got %d lookups", extra)
	}
}

func TestSpendingKeyUnknownOutput(t *testing.T) {
	k, _ := newTestManager(t)
	var blindingKey blsct.PublicKey
	if _, err := k.GetSpendingKeyForOutput(blindingKey, blsct.HashID{}); err == nil {
		t.Fatal("expected an error for an unregistered hash-id")
	}
}

// TestSpendingKeyCacheHit covers testable property S6/S7: the cached
// variant must not re-invoke CalcPrivSpendingKey on a second call for
// the same output, and both variants must agree on the returned scalar.
func TestSpendingKeyCacheHit(t *testing.T) {
	k, counters := newTestManager(t)
	address, err := k.NewSubAddress(AccountMain)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := k.GetSubAddress(AccountMain, address)
	if err != nil {
		t.Fatal(err)
	}
	hashID, err := k.primitives.CalcHashID(sub.Blinding, sub.Spend, k.viewKey)
	if err != nil {
		t.Fatal(err)
	}

	direct, err := k.GetSpendingKeyForOutput(sub.Blinding, hashID)
	if err != nil {
		t.Fatal(err)
	}

	before := counters.CalcPrivSpendingKey()
	cached1, err := k.GetSpendingKeyForOutputCached(sub.Blinding, hashID)
	if err != nil {
		t.Fatal(err)
	}
	afterFirst := counters.CalcPrivSpendingKey()
	if afterFirst != before+1 {
		t.Fatalf("expected exactly one new CalcPrivSpendingKey call, got %d new", afterFirst-before)
	}

	cached2, err := k.GetSpendingKeyForOutputCached(sub.Blinding, hashID)
	if err != nil {
		t.Fatal(err)
	}
	afterSecond := counters.CalcPrivSpendingKey()
	if afterSecond != afterFirst {
		t.Fatal("second cached call invoked CalcPrivSpendingKey again")
	}

	if direct != cached1 || cached1 != cached2 {
		t.Fatal("cached and direct spending-key derivations disagree")
	}
}

func TestLockUnlockStateMachine(t *testing.T) {
	k, _ := newTestManager(t)

	if err := k.SetPassword([]byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	if err := k.Lock(); err != nil {
		t.Fatal(err)
	}
	if k.State() != StateLocked {
		t.Fatal("expected Locked state after Lock")
	}
	if _, err := k.GetMnemonic(); err == nil {
		t.Fatal("expected GetMnemonic to fail while locked")
	}

	if k.Unlock([]byte("wrong")) {
		t.Fatal("Unlock succeeded with the wrong password")
	}
	if k.State() != StateLocked {
		t.Fatal("wrong password must leave the wallet Locked")
	}

	if !k.Unlock([]byte("hunter2")) {
		t.Fatal("Unlock failed with the correct password")
	}
	if k.State() != StateUnlocked {
		t.Fatal("expected Unlocked state after correct Unlock")
	}
	mnemonic, err := k.GetMnemonic()
	if err != nil {
		t.Fatal(err)
	}
	if mnemonic != fixedMnemonic {
		t.Fatal("unlocked mnemonic does not match the original")
	}
}

func TestIsMineStillWorksWhileLocked(t *testing.T) {
	k, _ := newTestManager(t)
	address, err := k.NewSubAddress(AccountMain)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := k.GetSubAddress(AccountMain, address)
	if err != nil {
		t.Fatal(err)
	}
	tag, err := k.primitives.CalcViewTag(sub.Blinding, k.viewKey)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.SetPassword([]byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	if err := k.Lock(); err != nil {
		t.Fatal(err)
	}

	if !k.IsMine(sub.Blinding, sub.Spend, tag) {
		t.Fatal("IsMine must keep working on a Locked wallet")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	k, _ := newTestManager(t)
	if _, err := k.NewSubAddress(AccountMain); err != nil {
		t.Fatal(err)
	}
	if err := k.SetPassword([]byte("hunter2")); err != nil {
		t.Fatal(err)
	}

	exported := k.Export()
	restored := Import(k.primitives, exported)
	if restored.State() != StateLocked {
		t.Fatal("a reloaded encrypted wallet must start Locked")
	}
	if !restored.Unlock([]byte("hunter2")) {
		t.Fatal("failed to unlock restored wallet with the original password")
	}
	if restored.ChainRoot() != k.ChainRoot() {
		t.Fatal("chain root did not survive export/import")
	}
}
