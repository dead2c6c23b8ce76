package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/audiolibrelab/soundboard/internal/capture"
)

// Client sends commands to a Server, one connection per command
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient creates a client for the socket at path. timeout bounds one round trip.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{path: path, timeout: timeout}
}

// Send implements Sender
func (c *Client) Send(ctx context.Context, cmd capture.Command) (capture.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return capture.Response{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	line, err := encodeLine(cmd)
	if err != nil {
		return capture.Response{}, fmt.Errorf("failed to encode %s: %w", cmd, err)
	}
	if _, err := conn.Write(line); err != nil {
		return capture.Response{}, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	reply, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return capture.Response{}, fmt.Errorf("failed to read response to %s: %w", cmd, err)
	}

	var resp capture.Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return capture.Response{}, fmt.Errorf("invalid response to %s: %w", cmd, err)
	}
	return resp, nil
}
