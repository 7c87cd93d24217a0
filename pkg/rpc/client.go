package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
)

// Client is a JSON-over-TCP RPC client. Calls are serialised over one
// connection.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  int64
}

// Dial connects to an RPC server at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the response into result.
// The ctx deadline, if any, bounds the round trip. Errors the server
// reports as 4xx come back wrapping ErrInvalidInput or ErrNotFound.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{Method: method, ID: strconv.FormatInt(c.nextID, 10), Params: raw}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %q does not match request id %q", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return remoteError(resp)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func remoteError(resp Response) error {
	switch resp.Code {
	case http.StatusBadRequest:
		return apperrors.New(apperrors.ErrInvalidInput, resp.Code, resp.Error)
	case http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, resp.Code, resp.Error)
	default:
		return fmt.Errorf("rpc error (code %d): %s", resp.Code, resp.Error)
	}
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
