package layout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammlsh/ammlsh/pkg/amm"
)

func TestParseFields(t *testing.T) {
	fields, err := ParseFields("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFields, fields)

	fields, err = ParseFields(" balance_x, OUTPUT ")
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldBalanceX, FieldOutput}, fields)

	_, err = ParseFields("balance_x,fee")
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestParseFields_DefaultIsCopy(t *testing.T) {
	fields, err := ParseFields("")
	require.NoError(t, err)
	fields[0] = FieldOutput
	assert.Equal(t, FieldNewBalanceX, DefaultFields[0])
}

func TestSelect(t *testing.T) {
	res := amm.SwapResult{
		Before: amm.Pool{X: 1, Y: 2},
		After:  amm.Pool{X: 3, Y: 4},
		Input:  9,
		Output: 5,
	}

	values, err := Select([]Field{FieldBalanceX, FieldBalanceY, FieldNewBalanceX, FieldNewBalanceY, FieldOutput}, res)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, values)

	values, err = Select(DefaultFields, res)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5}, values)

	_, err = Select([]Field{"fee"}, res)
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindIdentity, k)

	k, err = ParseKind("Nibbles-Exp")
	require.NoError(t, err)
	assert.Equal(t, KindNibblesExp, k)

	_, err = ParseKind("wavelet")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
