package keymanager

import "github.com/nav-io/blsctwallet/blsct"

// CandidateOutput is one output the sync engine wants the key manager
// to attempt amount recovery on: already matched via IsMine (or at
// least view-tag filtered by the caller), carrying the raw range proof
// and its token id.
type CandidateOutput struct {
	Index       int
	BlindingKey blsct.PublicKey
	ViewTag     blsct.ViewTag
	RangeProof  []byte
	TokenID     *[32]byte
}

// RecoverOutputs re-filters outs by view-tag match, derives each
// match's range-proof nonce, and hands the batch to the BLSCT
// recoverAmount primitive.
func (k *KeyManager) RecoverOutputs(outs []CandidateOutput) (blsct.RecoverResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var batch []blsct.RecoverAmountInput
	for _, out := range outs {
		tag, err := k.primitives.CalcViewTag(out.BlindingKey, k.viewKey)
		if err != nil || tag != out.ViewTag {
			continue
		}
		nonce, err := k.primitives.CalcNonce(out.BlindingKey, k.viewKey)
		if err != nil {
			continue
		}
		batch = append(batch, blsct.RecoverAmountInput{
			RangeProof: out.RangeProof,
			TokenID:    out.TokenID,
			Nonce:      nonce,
			Index:      out.Index,
		})
	}
	if len(batch) == 0 {
		return blsct.RecoverResult{Success: true}, nil
	}
	return k.primitives.RecoverAmount(batch)
}
