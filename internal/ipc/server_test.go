package ipc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type mockBackend struct {
	hashErr error
	lastReq PoolRequest
}

func (m *mockBackend) Hash(_ context.Context, req PoolRequest) (HashResponse, error) {
	m.lastReq = req
	if m.hashErr != nil {
		return HashResponse{}, m.hashErr
	}
	return HashResponse{
		Hash:       "1010",
		Base58:     "2VfUX",
		Commitment: "commit",
		Input:      []uint64{req.BalanceX + req.Amount, 1 << 60, 7},
		Output:     7,
	}, nil
}

func (m *mockBackend) Search(_ context.Context, req PoolRequest) (SearchResponse, error) {
	return SearchResponse{
		BaseHash: "1010",
		Favorable: SearchSide{
			Direction: "favorable", Amount: 12, BalanceX: 1, BalanceY: req.BalanceY + 12,
			Hash: "1011", Distance: 1, Stable: 11, Probes: 20,
		},
		Adverse: SearchSide{
			Direction: "adverse", Amount: 1<<62 + 1, BalanceX: 3, BalanceY: 4,
			Hash: "0010", Distance: 1, Stable: 1 << 62, Probes: 63,
		},
	}, nil
}

func (m *mockBackend) Status() StatusResponse {
	return StatusResponse{State: "watching", DatasetsProcessed: 3, SwapsAnalysed: 42, LastReport: "/tmp/a.report.csv"}
}

// waitForSocket waits for the socket file to exist with retries.
func waitForSocket(t *testing.T, sockPath string, maxRetries int) {
	t.Helper()

	for i := 0; i < maxRetries; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("Socket file %s did not appear after %d retries", sockPath, maxRetries)
}

func startServer(t *testing.T, backend Backend) *Client {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	server, err := NewServer(sockPath, backend)
	require.NoError(t, err)
	go server.Start()
	t.Cleanup(server.Stop)
	waitForSocket(t, sockPath, 20)

	client, err := NewClient(sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerStartStop(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")

	server, err := NewServer(sockPath, &mockBackend{})
	require.NoError(t, err)

	go server.Start()
	waitForSocket(t, sockPath, 20)

	server.Stop()
	_, err = os.Stat(sockPath)
	assert.True(t, os.IsNotExist(err), "socket should be removed on Stop")
}

func TestServerReplacesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	require.NoError(t, os.WriteFile(sockPath, []byte("stale"), 0600))

	server, err := NewServer(sockPath, &mockBackend{})
	require.NoError(t, err)
	server.Stop()
}

func TestHash(t *testing.T) {
	backend := &mockBackend{}
	client := startServer(t, backend)

	resp, err := client.Hash(context.Background(), PoolRequest{BalanceX: 1_000_000, BalanceY: 2_000_000, Amount: 100})
	require.NoError(t, err)

	assert.Equal(t, PoolRequest{BalanceX: 1_000_000, BalanceY: 2_000_000, Amount: 100}, backend.lastReq)
	assert.Equal(t, "1010", resp.Hash)
	assert.Equal(t, "2VfUX", resp.Base58)
	assert.Equal(t, "commit", resp.Commitment)
	// Large values survive the round trip exactly.
	assert.Equal(t, []uint64{1_000_100, 1 << 60, 7}, resp.Input)
	assert.Equal(t, uint64(7), resp.Output)
}

func TestHash_BackendErrors(t *testing.T) {
	backend := &mockBackend{hashErr: fmt.Errorf("%w: pool balance is zero", ErrInvalidRequest)}
	client := startServer(t, backend)

	_, err := client.Hash(context.Background(), PoolRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	backend.hashErr = fmt.Errorf("hash computation failed")
	_, err = client.Hash(context.Background(), PoolRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestSearch(t *testing.T) {
	client := startServer(t, &mockBackend{})

	resp, err := client.Search(context.Background(), PoolRequest{BalanceX: 1, BalanceY: 2, Amount: 3})
	require.NoError(t, err)

	assert.Equal(t, "1010", resp.BaseHash)
	assert.Equal(t, "favorable", resp.Favorable.Direction)
	assert.Equal(t, uint64(14), resp.Favorable.BalanceY)
	assert.Equal(t, int64(20), resp.Favorable.Probes)
	assert.Equal(t, uint64(1<<62+1), resp.Adverse.Amount)
	assert.Equal(t, uint64(1<<62), resp.Adverse.Stable)
}

func TestStatus(t *testing.T) {
	client := startServer(t, &mockBackend{})

	resp, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusResponse{State: "watching", DatasetsProcessed: 3, SwapsAnalysed: 42, LastReport: "/tmp/a.report.csv"}, resp)
}

func TestServer_MalformedRequest(t *testing.T) {
	client := startServer(t, &mockBackend{})

	out := new(structpb.Struct)
	err := client.conn.Invoke(context.Background(), MethodHash,
		&structpb.Struct{Fields: map[string]*structpb.Value{"balance_x": structpb.NewNumberValue(1)}}, out)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestNewClient_EmptyPath(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrEmptySocketPath)
}

func TestClient_NoServer(t *testing.T) {
	client, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	require.NoError(t, err)
	defer client.Close()
	client.SetTimeout(200 * time.Millisecond)

	_, err = client.Status(context.Background())
	assert.Error(t, err)
}

func TestMessages_RoundTrip(t *testing.T) {
	req := PoolRequest{BalanceX: ^uint64(0), BalanceY: 1, Amount: 2}
	got, err := poolRequestFrom(req.toStruct())
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = poolRequestFrom(&structpb.Struct{})
	assert.ErrorIs(t, err, ErrBadMessage)

	_, err = statusResponseFrom(&structpb.Struct{Fields: map[string]*structpb.Value{
		"state": structpb.NewNumberValue(1),
	}})
	assert.ErrorIs(t, err, ErrBadMessage)
}
