// Package dataset reads historical swaps exported from Raydium-style pools.
//
// Each CSV row holds the token decimals, whether the pool lists its reserves
// in the opposite order to the trade, the human-unit trade amounts and the raw
// reserves at the time of the trade:
//
//	dec_from,dec_to,is_reserve_swapped,amount_in,amount_out,reserve_in,reserve_out
//
// The first row is a header. Columns are matched by header name, so extra
// columns are ignored.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ammlsh/ammlsh/pkg/amm"
)

var (
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("dataset: missing column")

	// ErrInvalidRow is returned when a row cannot be parsed.
	ErrInvalidRow = errors.New("dataset: invalid row")
)

// Columns lists the required header names in file order.
var Columns = []string{
	"dec_from", "dec_to", "is_reserve_swapped",
	"amount_in", "amount_out", "reserve_in", "reserve_out",
}

// Swap is one historical trade.
type Swap struct {
	Line           int
	DecFrom        int
	DecTo          int
	ReserveSwapped bool
	AmountIn       float64 // human units
	AmountOut      float64 // human units
	ReserveIn      uint64
	ReserveOut     uint64
}

// Input returns the trade input in base units, truncated.
func (s Swap) Input() uint64 {
	return uint64(s.AmountIn * math.Pow10(s.DecFrom))
}

// Pool returns the pool state oriented so the trade pays X for Y.
func (s Swap) Pool() amm.Pool {
	if s.ReserveSwapped {
		return amm.Pool{X: s.ReserveOut, Y: s.ReserveIn}
	}
	return amm.Pool{X: s.ReserveIn, Y: s.ReserveOut}
}

// ReadSwaps parses every row from r.
func ReadSwaps(r io.Reader) ([]Swap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var swaps []Swap
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		s, err := parseRow(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s.Line = line
		swaps = append(swaps, s)
	}
	return swaps, nil
}

// ReadFile parses the swaps in the CSV file at path.
func ReadFile(path string) ([]Swap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSwaps(f)
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return index, nil
}

// rowParser records the first error across a row's columns.
type rowParser struct {
	record []string
	index  map[string]int
	err    error
}

func (p *rowParser) field(col string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	i := p.index[col]
	if i >= len(p.record) {
		p.err = fmt.Errorf("%w: missing %s", ErrInvalidRow, col)
		return "", false
	}
	return strings.TrimSpace(p.record[i]), true
}

func (p *rowParser) fail(col string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrInvalidRow, col, err)
	}
}

func parseRow(record []string, index map[string]int) (Swap, error) {
	p := &rowParser{record: record, index: index}
	var s Swap
	var err error

	if v, ok := p.field("dec_from"); ok {
		s.DecFrom, err = parseDecimals(v)
		p.fail("dec_from", err)
	}
	if v, ok := p.field("dec_to"); ok {
		s.DecTo, err = parseDecimals(v)
		p.fail("dec_to", err)
	}
	if v, ok := p.field("is_reserve_swapped"); ok {
		s.ReserveSwapped, err = strconv.ParseBool(v)
		p.fail("is_reserve_swapped", err)
	}
	if v, ok := p.field("amount_in"); ok {
		s.AmountIn, err = parseAmount(v)
		p.fail("amount_in", err)
	}
	if v, ok := p.field("amount_out"); ok {
		s.AmountOut, err = parseAmount(v)
		p.fail("amount_out", err)
	}
	if v, ok := p.field("reserve_in"); ok {
		s.ReserveIn, err = parseReserve(v)
		p.fail("reserve_in", err)
	}
	if v, ok := p.field("reserve_out"); ok {
		s.ReserveOut, err = parseReserve(v)
		p.fail("reserve_out", err)
	}

	if p.err != nil {
		return Swap{}, p.err
	}
	// Input truncates to uint64, which is only defined below 2^64.
	if in := s.AmountIn * math.Pow10(s.DecFrom); in >= math.MaxUint64 {
		return Swap{}, fmt.Errorf("%w: amount_in: %g base units exceed 64 bits", ErrInvalidRow, in)
	}
	return s, nil
}

func parseDecimals(v string) (int, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 19 || f != math.Trunc(f) {
		return 0, fmt.Errorf("decimals out of range: %s", v)
	}
	return int(f), nil
}

func parseAmount(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("out of range: %s", v)
	}
	return f, nil
}

// parseReserve accepts integers exactly and falls back to truncated floats.
func parseReserve(v string) (uint64, error) {
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := parseAmount(v)
	if err != nil {
		return 0, err
	}
	if f >= math.MaxUint64 {
		return 0, fmt.Errorf("out of range: %s", v)
	}
	return uint64(f), nil
}
