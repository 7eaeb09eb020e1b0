// Package txbuilder implements a thin, largest-first transaction
// builder: select unspent outputs, delegate construction and signing
// to the blsct facade, then mark spent inputs and any change at
// mempool height (blockHeight=0) so the wallet's balance reflects the
// send immediately. The coin-selection loop follows the classic
// largest-first FundCoins shape, adapted to BLSCT's (blindingKey,
// spendingKey) output pairs instead of unlock hashes.
package txbuilder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nav-io/blsctwallet/blsct"
	"github.com/nav-io/blsctwallet/keymanager"
	"github.com/nav-io/blsctwallet/persist"
	"github.com/nav-io/blsctwallet/rpcclient"
	"github.com/nav-io/blsctwallet/walleterr"
	"github.com/nav-io/blsctwallet/walletstore"
)

// Config tunes fee estimation and the respend-protection window.
type Config struct {
	// BaseFee is charged on every transaction regardless of size.
	BaseFee uint64
	// FeePerInput and FeePerOutput are added per selected input/output,
	// a stand-in for a byte-size-based fee market.
	FeePerInput  uint64
	FeePerOutput uint64
	// RespendWindow is the number of synced blocks for which an output
	// selected by a successful send stays excluded from coin selection,
	// even if a reorg unspend revives it in the meantime (40 blocks by
	// default).
	RespendWindow uint64
}

// DefaultConfig uses a 40-block respend window and a simple
// flat-plus-per-item fee model.
func DefaultConfig() Config {
	return Config{
		BaseFee:       1000,
		FeePerInput:   200,
		FeePerOutput:  100,
		RespendWindow: 40,
	}
}

// SendRequest describes a single-destination payment.
type SendRequest struct {
	Destination string // bech32m sub-address
	Amount      uint64
	Memo        string
	TokenID     *[32]byte
}

// SendResult is returned on successful submission.
type SendResult struct {
	TxID        string
	Fee         uint64
	InputCount  int
	OutputCount int
	RawHex      string
}

// Builder is the thin transaction builder tying the wallet store, key
// manager and BLSCT facade together for send operations.
type Builder struct {
	store      *walletstore.Store
	keys       *keymanager.KeyManager
	primitives blsct.Primitives
	client     *rpcclient.Client
	log        *persist.Logger
	cfg        Config

	mu           sync.Mutex
	recentSpends map[string]uint64 // outputHash -> height attempted
}

// New constructs a Builder. client may be nil if the caller only wants
// to build and sign (e.g. for testing) without broadcasting.
func New(store *walletstore.Store, keys *keymanager.KeyManager, primitives blsct.Primitives, client *rpcclient.Client, log *persist.Logger, cfg Config) *Builder {
	return &Builder{
		store:        store,
		keys:         keys,
		primitives:   primitives,
		client:       client,
		log:          log,
		cfg:          cfg,
		recentSpends: make(map[string]uint64),
	}
}

// Send selects unspent outputs covering req.Amount plus the estimated
// fee, builds and signs the transaction via the BLSCT facade, and
// broadcasts it. Only once broadcast succeeds (or is skipped, with a
// nil client) are selected inputs marked spent and any change stored,
// both at blockHeight=0 (mempool height), so the balance drops
// immediately and a rejected broadcast leaves the store untouched. The
// next sync pass replaces both records with their real confirmed
// height once the spend appears in a block. The respend window guards
// against reselecting an input freed up by a reorg unspend too soon
// after the attempt.
func (b *Builder) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	destination, err := blsct.DecodeAddress(req.Destination)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: decoding destination: %v", walleterr.ErrBuilderFailed, err)
	}

	cursor, err := b.store.LoadSyncState()
	if err != nil {
		return SendResult{}, err
	}
	currentHeight := cursor.LastSyncedHeight

	unspent, err := b.store.GetUnspentOutputs(req.TokenID)
	if err != nil {
		return SendResult{}, err
	}
	sort.Slice(unspent, func(i, j int) bool { return unspent[i].Amount > unspent[j].Amount })

	b.mu.Lock()
	defer b.mu.Unlock()

	var selected []walletstore.WalletOutput
	var fund, fee uint64
	for _, out := range unspent {
		if spentAt, ok := b.recentSpends[out.OutputHash]; ok {
			if currentHeight < b.cfg.RespendWindow || spentAt > currentHeight-b.cfg.RespendWindow {
				continue
			}
		}
		selected = append(selected, out)
		fund += out.Amount
		fee = b.estimateFee(len(selected), 2)
		if fund >= req.Amount+fee {
			break
		}
	}
	fee = b.estimateFee(len(selected), 2)
	if fund < req.Amount+fee {
		return SendResult{}, walleterr.ErrInsufficientFunds
	}

	inputs := make([]blsct.TxInputSpec, 0, len(selected))
	for _, out := range selected {
		var blindingPub, spendingPub blsct.PublicKey
		copy(blindingPub[:], out.BlindingKey)
		copy(spendingPub[:], out.SpendingKey)
		priv, err := b.keys.SpendingKeyForStoredOutput(blindingPub, spendingPub)
		if err != nil {
			return SendResult{}, err
		}
		inputs = append(inputs, blsct.TxInputSpec{OutputHash: out.OutputHash, PrivateSpendingKey: priv})
	}

	outputs := []blsct.TxOutputSpec{
		{Destination: destination, Amount: req.Amount, Memo: req.Memo, TokenID: req.TokenID},
	}
	change := fund - req.Amount - fee
	if change > 0 {
		changeIndex, err := b.keys.NewSubAddress(keymanager.AccountChange)
		if err != nil {
			return SendResult{}, err
		}
		changeSub, err := b.keys.GetSubAddress(keymanager.AccountChange, changeIndex)
		if err != nil {
			return SendResult{}, err
		}
		outputs = append(outputs, blsct.TxOutputSpec{Destination: changeSub, Amount: change, TokenID: req.TokenID})
	}

	ephemeral, err := b.primitives.RandomScalar()
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", walleterr.ErrBuilderFailed, err)
	}
	built, err := b.primitives.BuildTransaction(inputs, outputs, ephemeral)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", walleterr.ErrBuilderFailed, err)
	}

	txID := built.TxID
	if b.client != nil {
		broadcastID, err := b.client.TransactionBroadcast(ctx, built.RawHex)
		if err != nil {
			return SendResult{}, &walleterr.BroadcastRejected{Reason: err.Error()}
		}
		txID = broadcastID
	}

	// Only after a successful (or skipped) broadcast do we touch the
	// store, so a rejected broadcast leaves the wallet's balance and
	// unspent set untouched.
	for _, out := range selected {
		if err := b.store.MarkSpent(out.OutputHash, txID, 0); err != nil {
			return SendResult{}, err
		}
	}
	if len(outputs) > 1 {
		changeOut := built.Outputs[len(built.Outputs)-1]
		pending := walletstore.WalletOutput{
			OutputHash:  txID + "-change",
			TxHash:      txID,
			OutputIndex: uint32(len(outputs) - 1),
			BlockHeight: 0,
			Amount:      changeOut.Amount,
			TokenID:     changeOut.TokenID,
			BlindingKey: changeOut.BlindingKey[:],
			SpendingKey: changeOut.SpendingKey[:],
		}
		if err := b.store.StoreOutput(pending); err != nil {
			return SendResult{}, err
		}
	}

	for _, out := range selected {
		b.recentSpends[out.OutputHash] = currentHeight
		if b.log != nil {
			b.log.Debugln("txbuilder: spent output pending confirmation:", out.OutputHash)
		}
	}

	return SendResult{
		TxID:        txID,
		Fee:         fee,
		InputCount:  len(selected),
		OutputCount: len(outputs),
		RawHex:      built.RawHex,
	}, nil
}

func (b *Builder) estimateFee(numInputs, numOutputs int) uint64 {
	return b.cfg.BaseFee + b.cfg.FeePerInput*uint64(numInputs) + b.cfg.FeePerOutput*uint64(numOutputs)
}

// EncodeAddress renders the wallet's sub-address (account, address) as
// the bech32m string callers should share to receive funds.
func EncodeAddress(k *keymanager.KeyManager, account int64, address uint64) (string, error) {
	sub, err := k.GetSubAddress(account, address)
	if err != nil {
		return "", err
	}
	return blsct.EncodeAddress(sub)
}
