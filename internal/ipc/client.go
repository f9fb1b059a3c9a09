package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control-channel requests to a running barkd daemon over its
// Unix domain socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	enc     *json.Encoder
}

// Dial connects to socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", socketPath, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Client{conn: conn, scanner: scanner, enc: json.NewEncoder(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends req and decodes the daemon's response.
func (c *Client) Call(req Request) (Response, error) {
	if err := c.enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("ipc: send request: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("ipc: read response: %w", err)
		}
		return Response{}, fmt.Errorf("ipc: connection closed before response")
	}
	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("ipc: decode response: %w", err)
	}
	return resp, nil
}

// WithClient dials socketPath, runs fn, and always closes the connection.
func WithClient(socketPath string, fn func(*Client) error) error {
	client, err := Dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}
