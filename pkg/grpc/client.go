package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a JSON-over-TCP RPC client. Calls are serialised over one
// connection, which is re-dialled after any transport error.
type Client struct {
	addr    string
	timeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	nextID  atomic.Int64
}

// RemoteError is an error reported by the server's handler, as opposed to a
// transport failure.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	c := &Client{addr: addr, timeout: 5 * time.Second}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

// Call invokes the named RPC method with params and decodes the response
// into result. The context deadline, if any, bounds the round trip. Call is
// safe for concurrent use.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	req := Request{Method: method, ID: id, Params: raw}

	deadline, _ := ctx.Deadline()
	c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.encoder.Encode(req); err != nil {
		return c.broken(ctx, fmt.Errorf("sending request: %w", err))
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return c.broken(ctx, fmt.Errorf("reading response: %w", err))
	}
	if resp.ID != id {
		return c.broken(ctx, fmt.Errorf("response id %q does not match request %q", resp.ID, id))
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

// broken drops the connection so the next call re-dials. A cancelled
// context is reported in preference to the resulting I/O error.
func (c *Client) broken(ctx context.Context, err error) error {
	c.conn.Close()
	c.conn = nil
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
