package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by calls on a client whose connection has gone away.
var ErrClosed = errors.New("rpc: client closed")

// Error is a failure reported by the server.
type Error struct {
	Code    int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Kind, e.Message)
}

// Client multiplexes calls over one connection. It is safe for concurrent
// use.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	pending map[string]chan Response
	err     error
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		pending: make(map[string]chan Response),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			c.fail(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// fail wakes every waiting call; later calls get ErrClosed.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call invokes method and decodes the response data into result, which may
// be nil. The context deadline is forwarded to the server.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	req := Request{ID: uuid.NewString(), Method: method, Params: raw}
	if dl, ok := ctx.Deadline(); ok {
		req.TimeoutMs = max(time.Until(dl).Milliseconds(), 1)
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.send(ctx, req); err != nil {
		c.forget(req.ID)
		return err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.err
		}
		if resp.Error != "" {
			return &Error{Code: resp.Status, Kind: resp.Kind, Message: resp.Error}
		}
		if result != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, result); err != nil {
				return fmt.Errorf("decoding %s reply: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, req Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	dl, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(dl); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("sending %s: %w", req.Method, err)
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
