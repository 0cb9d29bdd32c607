package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/ammlsh/ammlsh/internal/analysis"
	"github.com/ammlsh/ammlsh/internal/config"
	"github.com/ammlsh/ammlsh/internal/dataset"
	"github.com/ammlsh/ammlsh/internal/ipc"
	"github.com/ammlsh/ammlsh/internal/report"
	"github.com/ammlsh/ammlsh/pkg/amm"
	"github.com/ammlsh/ammlsh/pkg/commit"
	"github.com/ammlsh/ammlsh/pkg/lsh"
)

// defaultRPCTimeout is the default timeout for RPC calls.
const defaultRPCTimeout = 5 * time.Second

var (
	// ErrMissingArgument is returned when a required positional argument is absent.
	ErrMissingArgument = errors.New("missing argument")

	// ErrMissingPool is returned when -x or -y is not set.
	ErrMissingPool = errors.New("-x and -y are required")

	// ErrCommitmentMismatch is returned by commit --verify when the commitment does not open to the hash.
	ErrCommitmentMismatch = errors.New("commitment does not match hash")
)

// daemonClient is the subset of ipc.Client used by the CLI.
type daemonClient interface {
	Status(ctx context.Context) (ipc.StatusResponse, error)
	Close() error
}

// CLI provides the analysis commands and talks to the daemon.
type CLI struct {
	socket     string
	configPath string
	client     daemonClient
	output     io.Writer
}

// NewCLI creates a CLI that reads configPath by default and reaches the
// daemon on socket.
func NewCLI(socket, configPath string) *CLI {
	return &CLI{
		socket:     socket,
		configPath: configPath,
		output:     os.Stdout,
	}
}

// NewCLIWithDefaults creates a CLI using the default paths.
func NewCLIWithDefaults() *CLI {
	paths := config.DefaultPaths()
	return NewCLI(paths.DaemonSocket, paths.ConfigFile)
}

// Close releases the daemon connection, if any.
func (c *CLI) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *CLI) connect() error {
	if c.client != nil {
		return nil
	}
	client, err := ipc.NewClient(c.socket)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	client.SetTimeout(defaultRPCTimeout)
	c.client = client
	return nil
}

// commandFlags are the flags shared by the analysis commands.
type commandFlags struct {
	fs *flag.FlagSet

	config    string
	bits      int
	hash      string
	mode      string
	direction string

	x, y, amount uint64
	out          string
}

func (c *CLI) newFlags(name string) *commandFlags {
	f := &commandFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(c.output)
	f.fs.StringVar(&f.config, "config", "", "Path to TOML configuration file")
	f.fs.IntVar(&f.bits, "bits", 0, "Override lsh.bits")
	f.fs.StringVar(&f.hash, "hash", "", "Override lsh.hash (poseidon, mimc)")
	f.fs.StringVar(&f.mode, "mode", "", "Override lsh.mode (native, circuit)")
	f.fs.StringVar(&f.direction, "direction", "", "Override search.swap_direction (x_to_y, y_to_x)")
	f.fs.Uint64Var(&f.x, "x", 0, "Pool balance of token X")
	f.fs.Uint64Var(&f.y, "y", 0, "Pool balance of token Y")
	f.fs.Uint64Var(&f.amount, "amount", 0, "Amount swapped into the pool")
	f.fs.StringVar(&f.out, "out", "", "Write the CSV report to this file")
	return f
}

func (f *commandFlags) pool() (amm.Pool, error) {
	if f.x == 0 || f.y == 0 {
		return amm.Pool{}, ErrMissingPool
	}
	return amm.Pool{X: f.x, Y: f.y}, nil
}

// load reads the configuration and applies flag overrides.
func (c *CLI) load(f *commandFlags) (*config.Config, error) {
	path := f.config
	if path == "" {
		path = c.configPath
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if f.bits != 0 {
		cfg.LSH.Bits = f.bits
	}
	if f.hash != "" {
		cfg.LSH.Hash = f.hash
	}
	if f.mode != "" {
		cfg.LSH.Mode = f.mode
	}
	if f.direction != "" {
		cfg.Search.SwapDirection = f.direction
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLI) analyzer(f *commandFlags) (*analysis.Analyzer, *config.Config, error) {
	cfg, err := c.load(f)
	if err != nil {
		return nil, nil, err
	}
	a, err := analysis.FromConfig(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// writeReport writes records to out, or to the CLI output when out is empty.
func writeReport[R report.Record](c *CLI, out string, records []R) error {
	runID := report.NewRunID()
	if out == "" {
		return report.Write(c.output, runID, records)
	}
	if err := report.WriteFile(out, runID, records); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Wrote %d records to %s (run %s)\n", len(records), out, runID)
	return nil
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Hash hashes one swap scenario and prints its commitment.
func (c *CLI) Hash(args []string) error {
	f := c.newFlags("hash")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	pool, err := f.pool()
	if err != nil {
		return err
	}
	a, _, err := c.analyzer(f)
	if err != nil {
		return err
	}

	sc, err := a.Hash(pool, f.amount)
	if err != nil {
		return err
	}
	cm, err := commit.Compute(sc.Hash)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.output, "=== Swap Hash ===")
	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Direction:   %s\n", a.SwapDirection())
	fmt.Fprintf(c.output, "Balances:    %d -> %d, %d -> %d\n",
		sc.Swap.Before.X, sc.Swap.After.X, sc.Swap.Before.Y, sc.Swap.After.Y)
	fmt.Fprintf(c.output, "Output:      %d\n", sc.Swap.Output)
	fmt.Fprintf(c.output, "Input:       %v\n", []uint64(sc.Input))
	fmt.Fprintf(c.output, "Hash:        %s\n", sc.Hash)
	fmt.Fprintf(c.output, "Base58:      %s\n", sc.Hash.Base58())
	fmt.Fprintf(c.output, "Commitment:  %s\n", cm)
	return nil
}

// Drift compares the base hash to the hash after each cumulative pool perturbation.
func (c *CLI) Drift(args []string) error {
	f := c.newFlags("drift")
	steps := f.fs.Int("steps", 0, "Number of steps per direction (default: search.drift_steps)")
	step := f.fs.Uint64("step", 0, "Perturbation added per step (default: search.drift_step)")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	pool, err := f.pool()
	if err != nil {
		return err
	}
	a, cfg, err := c.analyzer(f)
	if err != nil {
		return err
	}
	if *steps == 0 {
		*steps = cfg.Search.DriftSteps
	}
	if *step == 0 {
		*step = cfg.Search.DriftStep
	}

	ctx, cancel := interruptible()
	defer cancel()

	records, err := a.Drift(ctx, pool, f.amount, *steps, *step)
	if err != nil {
		return err
	}
	return writeReport(c, f.out, records)
}

// Boundaries hashes the scenario at each slippage tolerance boundary.
func (c *CLI) Boundaries(args []string) error {
	f := c.newFlags("boundaries")
	bpsFlag := f.fs.String("bps", "", "Comma-separated slippage tolerances in basis points (default: search.slippage_bps)")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	pool, err := f.pool()
	if err != nil {
		return err
	}
	a, cfg, err := c.analyzer(f)
	if err != nil {
		return err
	}

	bps := cfg.Search.SlippageBps
	if *bpsFlag != "" {
		if bps, err = parseBps(*bpsFlag); err != nil {
			return err
		}
	}

	records, err := a.Boundaries(pool, f.amount, bps)
	if err != nil {
		return err
	}
	return writeReport(c, f.out, records)
}

func parseBps(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	bps := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --bps value %q: %w", p, err)
		}
		bps = append(bps, v)
	}
	return bps, nil
}

// Search finds the smallest favorable and adverse perturbations that change the hash.
func (c *CLI) Search(args []string) error {
	f := c.newFlags("search")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	pool, err := f.pool()
	if err != nil {
		return err
	}
	a, _, err := c.analyzer(f)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	outcome, err := a.Search(ctx, pool, f.amount)
	if err != nil {
		return err
	}
	records, err := outcome.Records(pool, a.SwapDirection())
	if err != nil {
		return err
	}
	return writeReport(c, f.out, records)
}

// Batch runs both searches for every swap of a dataset file.
func (c *CLI) Batch(args []string) error {
	f := c.newFlags("batch")
	workers := f.fs.Int("workers", 0, "Concurrent searches (default: daemon.workers)")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	if f.fs.NArg() < 1 {
		return fmt.Errorf("%w: dataset path", ErrMissingArgument)
	}
	a, cfg, err := c.analyzer(f)
	if err != nil {
		return err
	}
	if *workers == 0 {
		*workers = cfg.Daemon.Workers
	}

	swaps, err := dataset.ReadFile(f.fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	records, err := a.Batch(ctx, swaps, *workers)
	if err != nil {
		return err
	}
	return writeReport(c, f.out, records)
}

// Commit prints the commitment to a hash, given in '0'/'1' or base58 form.
// With --verify it checks a commitment instead.
func (c *CLI) Commit(args []string) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(c.output)
	verify := fs.String("verify", "", "Commitment to check against the hash")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: hash", ErrMissingArgument)
	}

	h, err := parseAnyHash(fs.Arg(0))
	if err != nil {
		return err
	}

	if *verify == "" {
		cm, err := commit.Compute(h)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.output, "Commitment: %s\n", cm)
		return nil
	}

	cm, err := commit.Parse(*verify)
	if err != nil {
		return err
	}
	ok, err := commit.Verify(h, cm)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCommitmentMismatch
	}
	fmt.Fprintln(c.output, "Commitment valid")
	return nil
}

func parseAnyHash(s string) (lsh.Hash, error) {
	if h, err := lsh.ParseHash(s); err == nil {
		return h, nil
	}
	return lsh.ParseBase58(s)
}

// Status displays the daemon status.
func (c *CLI) Status() error {
	fmt.Fprintln(c.output, "=== ammlsh Status ===")
	fmt.Fprintln(c.output)
	fmt.Fprintln(c.output, "Daemon:")

	if err := c.connect(); err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}

	resp, err := c.client.Status(context.Background())
	if err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}

	fmt.Fprintf(c.output, "  State: %s\n", resp.State)
	fmt.Fprintf(c.output, "  Datasets processed: %d\n", resp.DatasetsProcessed)
	fmt.Fprintf(c.output, "  Swaps analysed: %d\n", resp.SwapsAnalysed)
	if resp.LastReport != "" {
		fmt.Fprintf(c.output, "  Last report: %s\n", resp.LastReport)
	}
	return nil
}
