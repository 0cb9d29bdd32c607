package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ammlsh/ammlsh/internal/analysis"
	"github.com/ammlsh/ammlsh/internal/config"
	"github.com/ammlsh/ammlsh/internal/dataset"
	"github.com/ammlsh/ammlsh/internal/ingest"
	"github.com/ammlsh/ammlsh/internal/ipc"
	"github.com/ammlsh/ammlsh/internal/report"
	"github.com/ammlsh/ammlsh/pkg/amm"
	"github.com/ammlsh/ammlsh/pkg/commit"
)

// Daemon states.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
	StateError      = "error"
)

// Daemon watches directories for swap datasets, writes a search report for
// each and answers IPC requests.
type Daemon struct {
	cfg      *config.Config
	analyzer *analysis.Analyzer
	watchers []*ingest.Watcher
	server   *ipc.Server
	logger   *slog.Logger

	state   string
	stateMu sync.RWMutex

	// seen records the size and modification time of each processed file so
	// the create and write events of one drop are handled once.
	seen   map[string]fileStamp
	seenMu sync.Mutex

	datasets   atomic.Int64
	swaps      atomic.Int64
	lastReport atomic.Value // string

	events chan ingest.FileEvent
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// NewDaemon creates a daemon from a validated configuration.
func NewDaemon(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Daemon.Socket == "" {
		return nil, errors.New("socket path is required")
	}
	if cfg.Daemon.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a, err := analysis.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		analyzer: a,
		logger:   logger,
		state:    StateIdle,
		seen:     make(map[string]fileStamp),
		events:   make(chan ingest.FileEvent, 100),
	}
	d.lastReport.Store("")
	return d, nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.Daemon.OutputDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.cfg.Daemon.Socket), 0700); err != nil {
		return err
	}

	server, err := ipc.NewServer(d.cfg.Daemon.Socket, d)
	if err != nil {
		return err
	}
	d.server = server

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("starting IPC server", "socket", d.cfg.Daemon.Socket)
		serverErr <- server.Start()
	}()

	existing := d.startWatchers(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, path := range existing {
			if ctx.Err() != nil {
				return
			}
			d.processFile(ctx, path)
		}
		d.processEvents(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutting down daemon")
	case runErr = <-serverErr:
		d.logger.Error("server error", "error", runErr)
	}

	cancel()
	shutdownErr := d.shutdown()
	<-done
	return errors.Join(runErr, shutdownErr)
}

// startWatchers creates a watcher per configured directory and returns the
// datasets already present in them.
func (d *Daemon) startWatchers(ctx context.Context) []string {
	opts := ingest.DefaultOptions()
	opts.Extensions = d.cfg.Daemon.Extensions
	opts.IgnoreHidden = d.cfg.Daemon.IgnoreHidden

	var existing []string
	for _, dir := range d.cfg.Daemon.Directories {
		expandedDir := config.ExpandPath(dir)

		watcher, err := ingest.NewWatcher(expandedDir, d.events, opts)
		if err != nil {
			d.logger.Warn("failed to create watcher",
				"dir", dir,
				"error", err,
			)
			continue
		}
		watcher.SetErrorCallback(func(err error) {
			d.logger.Error("watcher error", "error", err)
		})
		d.watchers = append(d.watchers, watcher)

		paths, err := watcher.Scan()
		if err != nil {
			d.logger.Warn("initial scan failed", "dir", expandedDir, "error", err)
		}
		existing = append(existing, paths...)

		go func(w *ingest.Watcher, watchDir string) {
			d.logger.Info("watching directory", "dir", watchDir)
			w.Start(ctx)
		}(watcher, expandedDir)
	}
	return existing
}

// processEvents handles file events from watchers.
func (d *Daemon) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.events:
			if !ok {
				return
			}
			d.handleFileEvent(ctx, event)
		}
	}
}

func (d *Daemon) handleFileEvent(ctx context.Context, event ingest.FileEvent) {
	switch event.Op {
	case ingest.OpCreate, ingest.OpModify:
		d.processFile(ctx, event.Path)
	case ingest.OpDelete:
		d.seenMu.Lock()
		delete(d.seen, event.Path)
		d.seenMu.Unlock()
		d.logger.Info("dataset removed", "path", event.Path)
	}
}

// stamp returns the current stamp of path and whether it differs from the
// stamp recorded when path was last processed successfully.
func (d *Daemon) stamp(path string) (fileStamp, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false, err
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	prev, ok := d.seen[path]
	return stamp, !ok || prev != stamp, nil
}

func (d *Daemon) markProcessed(path string, stamp fileStamp) {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	d.seen[path] = stamp
}

// processFile runs both searches for every swap in a dataset and writes the report.
// A failed dataset is retried on its next event even if unchanged.
func (d *Daemon) processFile(ctx context.Context, path string) {
	stamp, changed, err := d.stamp(path)
	if err != nil {
		d.logger.Warn("cannot stat dataset", "path", path, "error", err)
		return
	}
	if !changed {
		return
	}

	d.setState(StateProcessing)
	d.logger.Info("processing dataset", "path", path)

	swaps, err := dataset.ReadFile(path)
	if err != nil {
		d.logger.Error("failed to read dataset", "path", path, "error", err)
		d.setState(StateError)
		return
	}

	records, err := d.analyzer.Batch(ctx, swaps, d.cfg.Daemon.Workers)
	if err != nil {
		d.logger.Error("batch analysis failed", "path", path, "error", err)
		d.setState(StateError)
		return
	}

	out := ReportPath(d.cfg.Daemon.OutputDir, path)
	runID := report.NewRunID()
	if err := report.WriteFile(out, runID, records); err != nil {
		d.logger.Error("failed to write report", "path", out, "error", err)
		d.setState(StateError)
		return
	}

	d.markProcessed(path, stamp)
	d.datasets.Add(1)
	d.swaps.Add(int64(len(swaps)))
	d.lastReport.Store(out)
	d.setState(StateIdle)

	d.logger.Info("dataset processed",
		"path", path,
		"report", out,
		"runID", runID,
		"swaps", len(swaps),
	)
}

// ReportPath returns the report file for a dataset: <name>.report.csv in dir.
func ReportPath(dir, dataset string) string {
	base := filepath.Base(dataset)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+ingest.ReportSuffix)
}

// shutdown stops the server and watchers.
func (d *Daemon) shutdown() error {
	var errs []error

	for _, w := range d.watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if d.server != nil {
		d.server.Stop()
	}

	return errors.Join(errs...)
}

func (d *Daemon) setState(state string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.state = state
}

// Hash implements ipc.Backend.
func (d *Daemon) Hash(_ context.Context, req ipc.PoolRequest) (ipc.HashResponse, error) {
	sc, err := d.analyzer.Hash(amm.Pool{X: req.BalanceX, Y: req.BalanceY}, req.Amount)
	if err != nil {
		return ipc.HashResponse{}, requestError(err)
	}
	c, err := commit.Compute(sc.Hash)
	if err != nil {
		return ipc.HashResponse{}, err
	}

	return ipc.HashResponse{
		Hash:       sc.Hash.String(),
		Base58:     sc.Hash.Base58(),
		Commitment: c.String(),
		Input:      sc.Input,
		Output:     sc.Swap.Output,
	}, nil
}

// Search implements ipc.Backend.
func (d *Daemon) Search(ctx context.Context, req ipc.PoolRequest) (ipc.SearchResponse, error) {
	pool := amm.Pool{X: req.BalanceX, Y: req.BalanceY}
	out, err := d.analyzer.Search(ctx, pool, req.Amount)
	if err != nil {
		return ipc.SearchResponse{}, requestError(err)
	}
	records, err := out.Records(pool, d.analyzer.SwapDirection())
	if err != nil {
		return ipc.SearchResponse{}, err
	}

	side := func(r report.SearchRecord) ipc.SearchSide {
		return ipc.SearchSide{
			Direction: r.Direction,
			Amount:    r.Amount,
			BalanceX:  r.BalanceX,
			BalanceY:  r.BalanceY,
			Hash:      r.Hash.String(),
			Distance:  int64(r.Distance),
			Stable:    r.Stable,
			Probes:    int64(r.Probes),
		}
	}
	return ipc.SearchResponse{
		BaseHash:  out.Base.Hash.String(),
		Favorable: side(records[0]),
		Adverse:   side(records[1]),
	}, nil
}

// Status implements ipc.Backend.
func (d *Daemon) Status() ipc.StatusResponse {
	d.stateMu.RLock()
	state := d.state
	d.stateMu.RUnlock()

	return ipc.StatusResponse{
		State:             state,
		DatasetsProcessed: d.datasets.Load(),
		SwapsAnalysed:     d.swaps.Load(),
		LastReport:        d.lastReport.Load().(string),
	}
}

// requestError marks errors caused by the requested scenario.
func requestError(err error) error {
	if errors.Is(err, amm.ErrEmptyPool) || errors.Is(err, amm.ErrBalanceOverflow) || analysis.IsBracketError(err) {
		return fmt.Errorf("%w: %w", ipc.ErrInvalidRequest, err)
	}
	return err
}
