package ipc

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as structpb.Struct. Integers that may exceed 2^53 are
// carried as decimal strings since protobuf Struct numbers are doubles.

// ErrBadMessage is returned when a message lacks a field or has the wrong type.
var ErrBadMessage = errors.New("ipc: malformed message")

// PoolRequest names a pool state and a swap amount.
type PoolRequest struct {
	BalanceX uint64
	BalanceY uint64
	Amount   uint64
}

// HashResponse is the hash of one swap scenario.
type HashResponse struct {
	Hash       string // '0'/'1' form
	Base58     string
	Commitment string
	Input      []uint64
	Output     uint64
}

// SearchSide is the minimal divergence in one direction.
type SearchSide struct {
	Direction string
	Amount    uint64
	BalanceX  uint64
	BalanceY  uint64
	Hash      string
	Distance  int64
	Stable    uint64
	Probes    int64
}

// SearchResponse is the outcome of both searches.
type SearchResponse struct {
	BaseHash  string
	Favorable SearchSide
	Adverse   SearchSide
}

// StatusResponse describes the daemon.
type StatusResponse struct {
	State             string
	DatasetsProcessed int64
	SwapsAnalysed     int64
	LastReport        string
}

func (r PoolRequest) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"balance_x": u64Value(r.BalanceX),
		"balance_y": u64Value(r.BalanceY),
		"amount":    u64Value(r.Amount),
	}}
}

func poolRequestFrom(s *structpb.Struct) (PoolRequest, error) {
	var r PoolRequest
	var err error
	if r.BalanceX, err = getU64(s, "balance_x"); err != nil {
		return r, err
	}
	if r.BalanceY, err = getU64(s, "balance_y"); err != nil {
		return r, err
	}
	if r.Amount, err = getU64(s, "amount"); err != nil {
		return r, err
	}
	return r, nil
}

func (r HashResponse) toStruct() *structpb.Struct {
	input := make([]*structpb.Value, len(r.Input))
	for i, v := range r.Input {
		input[i] = u64Value(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"hash":       structpb.NewStringValue(r.Hash),
		"base58":     structpb.NewStringValue(r.Base58),
		"commitment": structpb.NewStringValue(r.Commitment),
		"input":      structpb.NewListValue(&structpb.ListValue{Values: input}),
		"output":     u64Value(r.Output),
	}}
}

func hashResponseFrom(s *structpb.Struct) (HashResponse, error) {
	var r HashResponse
	var err error
	if r.Hash, err = getString(s, "hash"); err != nil {
		return r, err
	}
	if r.Base58, err = getString(s, "base58"); err != nil {
		return r, err
	}
	if r.Commitment, err = getString(s, "commitment"); err != nil {
		return r, err
	}
	if r.Output, err = getU64(s, "output"); err != nil {
		return r, err
	}

	list := s.GetFields()["input"].GetListValue()
	if list == nil {
		return r, fmt.Errorf("%w: input", ErrBadMessage)
	}
	for i, v := range list.GetValues() {
		n, err := strconv.ParseUint(v.GetStringValue(), 10, 64)
		if err != nil {
			return r, fmt.Errorf("%w: input[%d]: %v", ErrBadMessage, i, err)
		}
		r.Input = append(r.Input, n)
	}
	return r, nil
}

func (s SearchSide) toValue() *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"direction": structpb.NewStringValue(s.Direction),
		"amount":    u64Value(s.Amount),
		"balance_x": u64Value(s.BalanceX),
		"balance_y": u64Value(s.BalanceY),
		"hash":      structpb.NewStringValue(s.Hash),
		"distance":  structpb.NewNumberValue(float64(s.Distance)),
		"stable":    u64Value(s.Stable),
		"probes":    structpb.NewNumberValue(float64(s.Probes)),
	}})
}

func searchSideFrom(v *structpb.Value) (SearchSide, error) {
	s := v.GetStructValue()
	if s == nil {
		return SearchSide{}, fmt.Errorf("%w: search side", ErrBadMessage)
	}

	var r SearchSide
	var err error
	if r.Direction, err = getString(s, "direction"); err != nil {
		return r, err
	}
	if r.Hash, err = getString(s, "hash"); err != nil {
		return r, err
	}
	if r.Amount, err = getU64(s, "amount"); err != nil {
		return r, err
	}
	if r.BalanceX, err = getU64(s, "balance_x"); err != nil {
		return r, err
	}
	if r.BalanceY, err = getU64(s, "balance_y"); err != nil {
		return r, err
	}
	if r.Stable, err = getU64(s, "stable"); err != nil {
		return r, err
	}
	if r.Distance, err = getInt(s, "distance"); err != nil {
		return r, err
	}
	if r.Probes, err = getInt(s, "probes"); err != nil {
		return r, err
	}
	return r, nil
}

func (r SearchResponse) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"base_hash": structpb.NewStringValue(r.BaseHash),
		"favorable": r.Favorable.toValue(),
		"adverse":   r.Adverse.toValue(),
	}}
}

func searchResponseFrom(s *structpb.Struct) (SearchResponse, error) {
	var r SearchResponse
	var err error
	if r.BaseHash, err = getString(s, "base_hash"); err != nil {
		return r, err
	}
	if r.Favorable, err = searchSideFrom(s.GetFields()["favorable"]); err != nil {
		return r, err
	}
	if r.Adverse, err = searchSideFrom(s.GetFields()["adverse"]); err != nil {
		return r, err
	}
	return r, nil
}

func (r StatusResponse) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"state":              structpb.NewStringValue(r.State),
		"datasets_processed": structpb.NewNumberValue(float64(r.DatasetsProcessed)),
		"swaps_analysed":     structpb.NewNumberValue(float64(r.SwapsAnalysed)),
		"last_report":        structpb.NewStringValue(r.LastReport),
	}}
}

func statusResponseFrom(s *structpb.Struct) (StatusResponse, error) {
	var r StatusResponse
	var err error
	if r.State, err = getString(s, "state"); err != nil {
		return r, err
	}
	if r.LastReport, err = getString(s, "last_report"); err != nil {
		return r, err
	}
	if r.DatasetsProcessed, err = getInt(s, "datasets_processed"); err != nil {
		return r, err
	}
	if r.SwapsAnalysed, err = getInt(s, "swaps_analysed"); err != nil {
		return r, err
	}
	return r, nil
}

func u64Value(v uint64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatUint(v, 10))
}

func getU64(s *structpb.Struct, key string) (uint64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrBadMessage, key)
	}
	n, err := strconv.ParseUint(v.GetStringValue(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrBadMessage, key, err)
	}
	return n, nil
}

func getString(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrBadMessage, key)
	}
	if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrBadMessage, key)
	}
	return v.GetStringValue(), nil
}

func getInt(s *structpb.Struct, key string) (int64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrBadMessage, key)
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrBadMessage, key)
	}
	return int64(v.GetNumberValue()), nil
}
