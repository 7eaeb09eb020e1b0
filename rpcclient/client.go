// Package rpcclient implements the boundary JSON-RPC 2.0 client this
// wallet uses to talk to the remote indexer: one JSON object per line
// over a stream socket, monotonically increasing request ids, and
// notification demux for blockchain.headers.subscribe, built directly
// over a net.Conn.
package rpcclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nav-io/blsctwallet/build"
	"github.com/nav-io/blsctwallet/persist"
	"github.com/nav-io/blsctwallet/walleterr"
)

// DefaultTimeout is the caller-supplied timeout a Call uses when the
// caller's context carries no deadline.
const DefaultTimeout = 30 * time.Second

// clientVersion is this client's side of the server.version handshake.
var clientVersion = build.NewVersion(1, 4, 0)

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint32        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID     *uint32         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpcclient: server error %d: %s", e.Code, e.Message) }

// Notification is an unsolicited server message (no id): used for
// blockchain.headers.subscribe push updates.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Client is a framed JSON-RPC 2.0 connection to the remote indexer.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	writeMu sync.Mutex
	nextID  uint32

	pending   map[uint32]chan response
	pendingMu sync.Mutex

	notifications chan Notification

	log *persist.Logger

	closeOnce sync.Once
	closed    chan struct{}

	ServerName    string
	ServerVersion string
}

// Dial connects to addr and performs the server.version handshake,
// storing the negotiated server name/version for diagnostics, mirroring
// modules/electrum/calls.go's server.version call during connection setup.
func Dial(ctx context.Context, addr string, log *persist.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", walleterr.ErrRpcTransport, err)
	}
	c := &Client{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		writer:        bufio.NewWriter(conn),
		pending:       make(map[uint32]chan response),
		notifications: make(chan Notification, 64),
		log:           log,
		closed:        make(chan struct{}),
	}
	go c.readLoop()

	var result []string
	if err := c.Call(ctx, "server.version", []interface{}{"blsctwallet", clientVersion.String()}, &result); err != nil {
		conn.Close()
		return nil, err
	}
	if len(result) == 2 {
		c.ServerName, c.ServerVersion = result[0], result[1]
		if parsed, err := build.Parse(result[1]); err == nil && parsed.Compare(clientVersion) < 0 && log != nil {
			log.Debugln("rpcclient: server reports an older protocol version:", result[1])
		}
	}
	return c, nil
}

// Notifications returns the channel subscription push messages arrive on.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// Call sends method(params...) and decodes the response's result into
// out (which may be nil to discard the result). It blocks until a
// matching response arrives, ctx is done, or the connection closes. A
// ctx without a deadline is given DefaultTimeout.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	id := atomic.AddUint32(&c.nextID, 1)
	ch := make(chan response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", walleterr.ErrRpcMalformed, err)
	}

	c.writeMu.Lock()
	_, werr := c.writer.Write(append(line, '\n'))
	if werr == nil {
		werr = c.writer.Flush()
	}
	c.writeMu.Unlock()
	if werr != nil {
		return fmt.Errorf("%w: %v", walleterr.ErrRpcTransport, werr)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", walleterr.ErrRpcTimeout, ctx.Err())
	case <-c.closed:
		return walleterr.ErrRpcTransport
	case resp := <-ch:
		if resp.Error != nil {
			if resp.Error.Code == methodNotFoundCode {
				return fmt.Errorf("%w: %s", walleterr.ErrRpcMethodUnsupported, resp.Error.Message)
			}
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%w: %v", walleterr.ErrRpcMalformed, err)
		}
		return nil
	}
}

// CallWithTimeout is a convenience wrapper applying DefaultTimeout (or
// the caller-supplied one) as a context deadline around Call.
func (c *Client) CallWithTimeout(timeout time.Duration, method string, params []interface{}, out interface{}) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Call(ctx, method, params, out)
}

const methodNotFoundCode = -32601

func (c *Client) readLoop() {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.dispatchTransportError(err)
			return
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			if c.log != nil {
				c.log.Debugln("rpcclient: malformed line:", err)
			}
			continue
		}
		if resp.ID == nil && resp.Method != "" {
			select {
			case c.notifications <- Notification{Method: resp.Method, Params: resp.Params}:
			default:
				if c.log != nil {
					c.log.Debugln("rpcclient: dropping notification, channel full")
				}
			}
			continue
		}
		if resp.ID == nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) dispatchTransportError(err error) {
	if c.log != nil {
		c.log.Debugln("rpcclient: read loop exiting:", err)
	}
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
