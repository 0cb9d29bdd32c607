package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// defaultRPCTimeout is the default timeout for RPC calls.
const defaultRPCTimeout = 5 * time.Second

// ErrEmptySocketPath is returned when an empty socket path is provided.
var ErrEmptySocketPath = errors.New("socket path cannot be empty")

// Client talks to ammlsh-daemon over its unix socket.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient creates a client for the daemon socket at sockPath.
// The connection is established lazily on the first call.
func NewClient(sockPath string) (*Client, error) {
	if sockPath == "" {
		return nil, ErrEmptySocketPath
	}

	conn, err := grpc.NewClient(
		"unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket: %w", err)
	}

	return &Client{conn: conn, timeout: defaultRPCTimeout}, nil
}

// SetTimeout changes the per-call timeout. Searches over large brackets may
// need more than the default.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Hash asks the daemon to hash a swap scenario.
func (c *Client) Hash(ctx context.Context, req PoolRequest) (HashResponse, error) {
	out, err := c.invoke(ctx, MethodHash, req.toStruct())
	if err != nil {
		return HashResponse{}, fmt.Errorf("Hash RPC failed: %w", err)
	}
	return hashResponseFrom(out)
}

// Search asks the daemon for the minimal divergences of a swap scenario.
func (c *Client) Search(ctx context.Context, req PoolRequest) (SearchResponse, error) {
	out, err := c.invoke(ctx, MethodSearch, req.toStruct())
	if err != nil {
		return SearchResponse{}, fmt.Errorf("Search RPC failed: %w", err)
	}
	return searchResponseFrom(out)
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	out, err := c.invoke(ctx, MethodStatus, &structpb.Struct{})
	if err != nil {
		return StatusResponse{}, fmt.Errorf("Status RPC failed: %w", err)
	}
	return statusResponseFrom(out)
}
