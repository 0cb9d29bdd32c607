package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ammlsh/ammlsh/internal/config"
	"github.com/ammlsh/ammlsh/internal/ipc"
	"github.com/ammlsh/ammlsh/pkg/commit"
	"github.com/ammlsh/ammlsh/pkg/lsh"
)

const datasetCSV = "dec_from,dec_to,is_reserve_swapped,amount_in,amount_out,reserve_in,reserve_out\n" +
	"6,6,false,0.5,0.66,1000000,2000000\n" +
	"6,6,true,0.25,0.1,2000000,1000000\n"

// testConfig returns a small configuration rooted in a short temp directory,
// since unix socket paths are length limited.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir, err := os.MkdirTemp("", "ammlsh")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	watchDir := filepath.Join(dir, "swaps")
	if err := os.MkdirAll(watchDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	cfg := config.Default()
	cfg.LSH.Bits = 16
	cfg.LSH.Memoize = true
	cfg.Daemon.Directories = []string{watchDir}
	cfg.Daemon.OutputDir = filepath.Join(dir, "reports")
	cfg.Daemon.Socket = filepath.Join(dir, "d.sock")
	cfg.Daemon.Workers = 2
	return &cfg
}

func writeDataset(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	path := filepath.Join(cfg.Daemon.Directories[0], name)
	if err := os.WriteFile(path, []byte(datasetCSV), 0644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	return path
}

func TestNewDaemon_RequiresPaths(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Socket = ""
	if _, err := NewDaemon(cfg, nil); err == nil {
		t.Error("expected error for missing socket path")
	}

	cfg = testConfig(t)
	cfg.Daemon.OutputDir = ""
	if _, err := NewDaemon(cfg, nil); err == nil {
		t.Error("expected error for missing output directory")
	}

	cfg = testConfig(t)
	cfg.LSH.Bits = 0
	if _, err := NewDaemon(cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected config.ErrInvalid, got %v", err)
	}
}

func TestReportPath(t *testing.T) {
	got := ReportPath("/out", "/data/2024/raydium.csv")
	want := filepath.Join("/out", "raydium.report.csv")
	if got != want {
		t.Errorf("ReportPath = %q, want %q", got, want)
	}
}

func TestDaemon_ProcessFile(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}
	if err := os.MkdirAll(cfg.Daemon.OutputDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	path := writeDataset(t, cfg, "raydium.csv")
	d.processFile(context.Background(), path)

	status := d.Status()
	if status.State != StateIdle {
		t.Errorf("expected idle state, got %s", status.State)
	}
	if status.DatasetsProcessed != 1 || status.SwapsAnalysed != 2 {
		t.Errorf("unexpected counters: %+v", status)
	}

	out := ReportPath(cfg.Daemon.OutputDir, path)
	if status.LastReport != out {
		t.Errorf("LastReport = %q, want %q", status.LastReport, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("report is empty")
	}

	// Unchanged files are not processed twice
	d.processFile(context.Background(), path)
	if got := d.Status().DatasetsProcessed; got != 1 {
		t.Errorf("expected unchanged file to be skipped, processed %d", got)
	}
}

func TestDaemon_ProcessFileRetriesAfterFailure(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	// A regular file where the output directory should be makes the report write fail
	if err := os.WriteFile(cfg.Daemon.OutputDir, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to block output dir: %v", err)
	}

	path := writeDataset(t, cfg, "retry.csv")
	d.processFile(context.Background(), path)
	if status := d.Status(); status.State != StateError || status.DatasetsProcessed != 0 {
		t.Fatalf("expected a failed write, got %+v", status)
	}

	if err := os.Remove(cfg.Daemon.OutputDir); err != nil {
		t.Fatalf("failed to unblock output dir: %v", err)
	}

	// Same file, untouched: it must still be processed
	d.processFile(context.Background(), path)
	status := d.Status()
	if status.State != StateIdle || status.DatasetsProcessed != 1 {
		t.Errorf("expected the unchanged dataset to be retried, got %+v", status)
	}
	if _, err := os.Stat(ReportPath(cfg.Daemon.OutputDir, path)); err != nil {
		t.Errorf("report not written on retry: %v", err)
	}
}

func TestDaemon_ProcessFileInvalidDataset(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	path := filepath.Join(cfg.Daemon.Directories[0], "broken.csv")
	if err := os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	d.processFile(context.Background(), path)

	if status := d.Status(); status.State != StateError || status.DatasetsProcessed != 0 {
		t.Errorf("expected error state without processed datasets, got %+v", status)
	}
}

func TestDaemon_Hash(t *testing.T) {
	d, err := NewDaemon(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	resp, err := d.Hash(context.Background(), ipc.PoolRequest{BalanceX: 1_000_000, BalanceY: 2_000_000, Amount: 500_000})
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(resp.Hash) != 16 {
		t.Errorf("expected 16 hash bits, got %q", resp.Hash)
	}
	if resp.Output != 666_667 {
		t.Errorf("expected output 666667, got %d", resp.Output)
	}
	if len(resp.Input) != 3 || resp.Input[0] != 1_500_000 {
		t.Errorf("unexpected input vector %v", resp.Input)
	}

	h, err := lsh.ParseHash(resp.Hash)
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	c, err := commit.Parse(resp.Commitment)
	if err != nil {
		t.Fatalf("commit.Parse failed: %v", err)
	}
	ok, err := commit.Verify(h, c)
	if err != nil || !ok {
		t.Errorf("commitment does not open to the hash: %v", err)
	}
}

func TestDaemon_HashEmptyPool(t *testing.T) {
	d, err := NewDaemon(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	_, err = d.Hash(context.Background(), ipc.PoolRequest{BalanceX: 0, BalanceY: 10, Amount: 1})
	if !errors.Is(err, ipc.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDaemon_Search(t *testing.T) {
	d, err := NewDaemon(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	resp, err := d.Search(context.Background(), ipc.PoolRequest{BalanceX: 1_000_000, BalanceY: 2_000_000, Amount: 500_000})
	if errors.Is(err, ipc.ErrInvalidRequest) {
		t.Skipf("no divergence inside the default brackets: %v", err)
	}
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(resp.BaseHash) != 16 {
		t.Errorf("expected 16-bit base hash, got %q", resp.BaseHash)
	}
	for _, side := range []ipc.SearchSide{resp.Favorable, resp.Adverse} {
		if side.Distance <= 0 {
			t.Errorf("%s: expected a diverging hash, got distance %d", side.Direction, side.Distance)
		}
		if side.Amount == 0 || side.Stable >= side.Amount {
			t.Errorf("%s: stable %d should be below minimal amount %d", side.Direction, side.Stable, side.Amount)
		}
	}
	if resp.Favorable.Direction == resp.Adverse.Direction {
		t.Error("sides should have distinct directions")
	}
}

func TestDaemon_Run(t *testing.T) {
	cfg := testConfig(t)
	path := writeDataset(t, cfg, "existing.csv")

	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatalf("NewDaemon failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- d.Run(ctx)
	}()

	// Wait for the socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cfg.Daemon.Socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}

	client, err := ipc.NewClient(cfg.Daemon.Socket)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	// Files present at startup are scanned
	var status ipc.StatusResponse
	for {
		status, err = client.Status(ctx)
		if err == nil && status.DatasetsProcessed == 1 {
			break
		}
		if time.Now().After(deadline.Add(10 * time.Second)) {
			t.Fatalf("existing dataset was not processed: %+v (%v)", status, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status.LastReport != ReportPath(cfg.Daemon.OutputDir, path) {
		t.Errorf("unexpected last report %q", status.LastReport)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, err := os.Stat(cfg.Daemon.Socket); !os.IsNotExist(err) {
		t.Error("socket should be removed on shutdown")
	}
}
