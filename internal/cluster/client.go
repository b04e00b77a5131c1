package cluster

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds each connect, write and read
const DefaultTimeout = 2 * time.Second

// Client performs one request/response exchange per TCP connection
type Client struct {
	Timeout time.Duration
}

// NewClient creates a client whose attempts are bounded by timeout
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{Timeout: timeout}
}

// Exchange dials addr, sends req and waits for one response.
// A failed dial is reported as ErrUnreachable; failures after the
// connection is established are returned as-is.
func (c *Client) Exchange(ctx context.Context, addr string, req *Message) (*Message, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "dial %s: %v", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}

	if err := Send(conn, req); err != nil {
		return nil, err
	}
	return Receive(conn)
}
