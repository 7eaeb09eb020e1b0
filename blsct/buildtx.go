package blsct

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// ErrNoInputs is returned by BuildTransaction when called with no inputs.
var ErrNoInputs = errors.New("blsct: transaction has no inputs")

// buildTransaction is the shared construction logic both the mock and
// the herumi-backed primitives use. It reuses CalcNonce/CalcViewTag
// exactly as the receiving side would, with the per-transaction
// ephemeral blindingKey standing in for the recipient's view key: for
// a wallet's own change outputs this is literally the same computation
// the owning key manager performs on rescan, and for external
// destinations it preserves the observable contract (the output is
// discoverable and its range proof opens) without claiming real
// cross-party DH soundness, which is explicitly out of scope for this
// facade (see package doc).
func buildTransaction(p Primitives, inputs []TxInputSpec, outputs []TxOutputSpec, blindingKey Scalar) (BuiltTransaction, error) {
	if len(inputs) == 0 {
		return BuiltTransaction{}, ErrNoInputs
	}

	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in.OutputHash))
		h.Write(in.PrivateSpendingKey[:])
	}

	built := make([]BuiltOutput, 0, len(outputs))
	for i, o := range outputs {
		viewTag, err := p.CalcViewTag(o.Destination.Blinding, blindingKey)
		if err != nil {
			return BuiltTransaction{}, err
		}
		nonce, err := p.CalcNonce(o.Destination.Blinding, blindingKey)
		if err != nil {
			return BuiltTransaction{}, err
		}
		rangeProof := SealRangeProof(nonce, o.TokenID, i, o.Amount, o.Memo)

		built = append(built, BuiltOutput{
			BlindingKey: o.Destination.Blinding,
			SpendingKey: o.Destination.Spend,
			ViewTag:     viewTag,
			RangeProof:  rangeProof,
			Amount:      o.Amount,
			Memo:        o.Memo,
			TokenID:     o.TokenID,
		})

		h.Write(o.Destination.Blinding[:])
		h.Write(o.Destination.Spend[:])
		var amtBuf [8]byte
		binary.LittleEndian.PutUint64(amtBuf[:], o.Amount)
		h.Write(amtBuf[:])
		h.Write(rangeProof)
	}

	sum := h.Sum(nil)
	return BuiltTransaction{
		TxID:    hex.EncodeToString(sum),
		RawHex:  hex.EncodeToString(sum) + hex.EncodeToString(blindingKey[:]),
		Outputs: built,
	}, nil
}
