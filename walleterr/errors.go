// Package walleterr declares the stable error taxonomy shared by every
// layer of the wallet, a single place for sentinel errors
// (ErrWalletLocked, ErrInvalidPassword and the like) instead of
// letting each package invent its own ad-hoc error values.
package walleterr

import "errors"

var (
	// ErrWalletLocked is returned by any key-manager call that needs a
	// secret scalar while the wallet is locked.
	ErrWalletLocked = errors.New("wallet: locked")
	// ErrInvalidPassword names a password authentication failure. No
	// function in this module returns it: KeyManager.Unlock reports a
	// wrong password by returning false.
	ErrInvalidPassword = errors.New("wallet: invalid password")
	// ErrInvalidMnemonic is returned by restore_from_mnemonic on a BIP-39
	// checksum failure.
	ErrInvalidMnemonic = errors.New("wallet: invalid mnemonic")
	// ErrUnknownOutput is returned when an output's hash-id is not in the
	// sub-address registry.
	ErrUnknownOutput = errors.New("wallet: unknown output")
	// ErrOwnershipMismatch is returned when a caller asserts ownership of
	// an output the key manager cannot confirm.
	ErrOwnershipMismatch = errors.New("wallet: ownership mismatch")

	// ErrStoreCorrupt is always fatal: it halts the sync engine.
	ErrStoreCorrupt = errors.New("walletstore: corrupt")
	// ErrStoreBusy is returned by Wallet methods called once the wallet
	// has begun shutting down (Close).
	ErrStoreBusy = errors.New("walletstore: busy")
	// ErrReorgDeeperThanHistory is returned when a reorg's fork point is
	// older than the retained block-hash history.
	ErrReorgDeeperThanHistory = errors.New("syncengine: reorg deeper than retained history")

	// ErrRpcTransport wraps a transport-level failure reaching the server.
	ErrRpcTransport = errors.New("rpcclient: transport error")
	// ErrRpcTimeout is returned when a call exceeds its caller-supplied timeout.
	ErrRpcTimeout = errors.New("rpcclient: timeout")
	// ErrRpcMalformed is returned when a response cannot be decoded.
	ErrRpcMalformed = errors.New("rpcclient: malformed response")
	// ErrRpcMethodUnsupported is returned for a server error response to
	// an unsupported method call.
	ErrRpcMethodUnsupported = errors.New("rpcclient: method unsupported")

	// ErrCryptoFailed covers AEAD tag failures and KDF failures.
	ErrCryptoFailed = errors.New("cryptoenvelope: crypto operation failed")

	// ErrInsufficientFunds is returned by coin selection when the unspent
	// set cannot cover amount+fee.
	ErrInsufficientFunds = errors.New("txbuilder: insufficient funds")
	// ErrFeeTooLow is returned when a caller-supplied fee is below the
	// builder's minimum.
	ErrFeeTooLow = errors.New("txbuilder: fee too low")
	// ErrBuilderFailed covers any other transaction construction failure.
	ErrBuilderFailed = errors.New("txbuilder: build failed")
)

// BroadcastRejected is the one error kind in the taxonomy that carries a
// payload: the server's rejection reason string.
type BroadcastRejected struct {
	Reason string
}

func (e *BroadcastRejected) Error() string {
	return "txbuilder: broadcast rejected: " + e.Reason
}
