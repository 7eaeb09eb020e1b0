package rpcclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HeaderSubscription is the shape returned by
// blockchain.headers.subscribe, both as the initial call result and as
// the payload of subsequent notifications.
type HeaderSubscription struct {
	Height int    `json:"height"`
	Hex    string `json:"hex"`
}

// HeadersSubscribe subscribes to new-block notifications and returns
// the current chain tip.
func (c *Client) HeadersSubscribe(ctx context.Context) (HeaderSubscription, error) {
	var result HeaderSubscription
	err := c.Call(ctx, "blockchain.headers.subscribe", nil, &result)
	return result, err
}

// BlockHeader returns the raw 80-byte header hex at height.
func (c *Client) BlockHeader(ctx context.Context, height uint64) (string, error) {
	var result string
	err := c.Call(ctx, "blockchain.block.header", []interface{}{height}, &result)
	return result, err
}

// BlockHeadersRange is the shape returned by blockchain.block.headers:
// count concatenated 80-byte headers.
type BlockHeadersRange struct {
	Count int    `json:"count"`
	Hex   string `json:"hex"`
	Max   int    `json:"max"`
}

// BlockHeaders returns a concatenated range of headers starting at start.
func (c *Client) BlockHeaders(ctx context.Context, start uint64, count int) (BlockHeadersRange, error) {
	var result BlockHeadersRange
	err := c.Call(ctx, "blockchain.block.headers", []interface{}{start, count}, &result)
	return result, err
}

// TxKeyEntry is one transaction's key hint within a block: keys is an
// opaque JSON blob forwarded to the key manager's recover_outputs path.
type TxKeyEntry struct {
	TxHash string          `json:"txHash"`
	Keys   json.RawMessage `json:"keys"`
}

// TransactionKeys returns the per-transaction key hints for a single block.
func (c *Client) TransactionKeys(ctx context.Context, height uint64) ([]TxKeyEntry, error) {
	var result []TxKeyEntry
	err := c.Call(ctx, "blockchain.block.transaction_keys", []interface{}{height}, &result)
	return result, err
}

// TxKeyBlock is one block's worth of tx-key hints within a ranged
// transaction_keys_range response.
type TxKeyBlock struct {
	Height uint64       `json:"height"`
	Txs    []TxKeyEntry `json:"txs"`
}

// TransactionKeysRange is the shape returned by
// blockchain.block.transaction_keys_range.
type TransactionKeysRange struct {
	Blocks     []TxKeyBlock `json:"blocks"`
	NextHeight uint64       `json:"nextHeight"`
}

// TransactionKeysRange requests up to count blocks of tx-key hints
// starting at start.
func (c *Client) TransactionKeysRange(ctx context.Context, start uint64, count int) (TransactionKeysRange, error) {
	var result TransactionKeysRange
	params := []interface{}{start}
	if count > 0 {
		params = append(params, count)
	}
	err := c.Call(ctx, "blockchain.block.transaction_keys_range", params, &result)
	return result, err
}

// TransactionGetOutput returns the raw serialized output at outputHash.
func (c *Client) TransactionGetOutput(ctx context.Context, outputHash string) (string, error) {
	var result string
	err := c.Call(ctx, "blockchain.transaction.get_output", []interface{}{outputHash}, &result)
	return result, err
}

// TransactionBroadcast submits rawHex and returns the resulting txId.
func (c *Client) TransactionBroadcast(ctx context.Context, rawHex string) (string, error) {
	var result string
	err := c.Call(ctx, "blockchain.transaction.broadcast", []interface{}{rawHex}, &result)
	return result, err
}

// TransactionGet fetches a transaction by hash, either as raw hex
// (verbose=false) or as a decoded object (verbose=true), returned
// verbatim as the JSON result bytes.
func (c *Client) TransactionGet(ctx context.Context, txHash string, verbose bool) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.Call(ctx, "blockchain.transaction.get", []interface{}{txHash, verbose}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// HeaderHash computes blockHash = reverse_bytes(SHA-256(SHA-256(headerHex))),
// rendered as hex.
func HeaderHash(headerHex string) (string, error) {
	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return "", err
	}
	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	reversed := make([]byte, len(second))
	for i := range second {
		reversed[i] = second[len(second)-1-i]
	}
	return hex.EncodeToString(reversed), nil
}
