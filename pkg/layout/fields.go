package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ammlsh/ammlsh/pkg/amm"
)

// ErrUnknownField is returned for an unrecognised scenario field.
var ErrUnknownField = errors.New("layout: unknown field")

// Field names one quantity of a swap scenario.
type Field string

// Scenario fields.
const (
	FieldBalanceX    Field = "balance_x"
	FieldBalanceY    Field = "balance_y"
	FieldNewBalanceX Field = "new_balance_x"
	FieldNewBalanceY Field = "new_balance_y"
	FieldOutput      Field = "output"
)

// DefaultFields is the post-trade state plus the amount paid out.
var DefaultFields = []Field{FieldNewBalanceX, FieldNewBalanceY, FieldOutput}

// ParseFields parses a comma separated field list. An empty list returns DefaultFields.
func ParseFields(s string) ([]Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]Field(nil), DefaultFields...), nil
	}

	parts := strings.Split(s, ",")
	fields := make([]Field, 0, len(parts))
	for _, part := range parts {
		f := Field(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case FieldBalanceX, FieldBalanceY, FieldNewBalanceX, FieldNewBalanceY, FieldOutput:
			fields = append(fields, f)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, part)
		}
	}
	return fields, nil
}

// Select returns the values of fields from res, in order.
func Select(fields []Field, res amm.SwapResult) ([]uint64, error) {
	values := make([]uint64, 0, len(fields))
	for _, f := range fields {
		switch f {
		case FieldBalanceX:
			values = append(values, res.Before.X)
		case FieldBalanceY:
			values = append(values, res.Before.Y)
		case FieldNewBalanceX:
			values = append(values, res.After.X)
		case FieldNewBalanceY:
			values = append(values, res.After.Y)
		case FieldOutput:
			values = append(values, res.Output)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
	}
	return values, nil
}
