// Package report exports analysis results as CSV.
//
// Every row carries the run ID of the analysis that produced it so rows from
// different runs can be concatenated and still told apart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/ammlsh/ammlsh/pkg/lsh"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Record is a row type that can be exported.
type Record interface {
	Header() []string
	Row() []string
}

// DriftRecord compares the base hash to the hash after Step repeated perturbations.
type DriftRecord struct {
	Direction    string
	Step         int
	Amount       uint64 // cumulative perturbation
	BaseHash     lsh.Hash
	ComparedHash lsh.Hash
	Distance     int
}

// Header implements Record.
func (DriftRecord) Header() []string {
	return []string{"direction", "step", "perturbation_amount", "base_hash", "compared_hash", "hamming_distance"}
}

// Row implements Record.
func (r DriftRecord) Row() []string {
	return []string{
		r.Direction,
		strconv.Itoa(r.Step),
		u64(r.Amount),
		r.BaseHash.String(),
		r.ComparedHash.String(),
		strconv.Itoa(r.Distance),
	}
}

// BoundaryRecord is the hash of the output moved by a slippage tolerance.
type BoundaryRecord struct {
	Bps      uint64
	Side     string // "lower" or "upper"
	Output   uint64
	Hash     lsh.Hash
	Distance int // to the base hash
}

// Header implements Record.
func (BoundaryRecord) Header() []string {
	return []string{"slippage_bps", "side", "output", "hash", "hamming_distance"}
}

// Row implements Record.
func (r BoundaryRecord) Row() []string {
	return []string{u64(r.Bps), r.Side, u64(r.Output), r.Hash.String(), strconv.Itoa(r.Distance)}
}

// SearchRecord is the minimal divergence found in one direction.
type SearchRecord struct {
	Direction string
	Amount    uint64
	BalanceX  uint64
	BalanceY  uint64
	Hash      lsh.Hash
	Distance  int
	Stable    uint64
	Probes    int
}

// Header implements Record.
func (SearchRecord) Header() []string {
	return []string{"direction", "minimal_amount", "balance_x", "balance_y", "hash", "hamming_distance", "stable_amount", "probes"}
}

// Row implements Record.
func (r SearchRecord) Row() []string {
	return []string{
		r.Direction,
		u64(r.Amount),
		u64(r.BalanceX),
		u64(r.BalanceY),
		r.Hash.String(),
		strconv.Itoa(r.Distance),
		u64(r.Stable),
		strconv.Itoa(r.Probes),
	}
}

// BatchRecord is both searches for one dataset row. Err is set instead of
// the search columns when the row could not be analysed.
type BatchRecord struct {
	Line       int
	AmountIn   uint64
	ReserveIn  uint64
	ReserveOut uint64
	Favorable  SearchRecord
	Adverse    SearchRecord
	Err        string
}

// Header implements Record.
func (BatchRecord) Header() []string {
	return []string{
		"line", "amount_in", "reserve_in", "reserve_out",
		"favorable_amount", "first_reserve_in_favorable", "first_reserve_out_favorable", "favorable_distance",
		"adverse_amount", "first_reserve_in_adverse", "first_reserve_out_adverse", "adverse_distance",
		"error",
	}
}

// Row implements Record.
func (r BatchRecord) Row() []string {
	row := []string{strconv.Itoa(r.Line), u64(r.AmountIn), u64(r.ReserveIn), u64(r.ReserveOut)}
	if r.Err != "" {
		return append(row, "", "", "", "", "", "", "", "", r.Err)
	}
	return append(row,
		u64(r.Favorable.Amount), u64(r.Favorable.BalanceX), u64(r.Favorable.BalanceY), strconv.Itoa(r.Favorable.Distance),
		u64(r.Adverse.Amount), u64(r.Adverse.BalanceX), u64(r.Adverse.BalanceY), strconv.Itoa(r.Adverse.Distance),
		"",
	)
}

// Write writes a header and one row per record, each prefixed by runID.
func Write[R Record](w io.Writer, runID string, records []R) error {
	cw := csv.NewWriter(w)

	var zero R
	if err := cw.Write(append([]string{"run_id"}, zero.Header()...)); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(append([]string{runID}, r.Row()...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes records to path atomically.
func WriteFile[R Record](path, runID string, records []R) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file in same directory ensures rename is atomic on POSIX
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := Write(f, runID, records); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
