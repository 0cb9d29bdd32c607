package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammlsh/ammlsh/pkg/amm"
)

const sample = `dec_from,dec_to,is_reserve_swapped,amount_in,amount_out,reserve_in,reserve_out
9,6,false,1.5,212.25,1000000000000,141000000000
6,9,true,10,0.07,141000000000,1000000000000

6,9,false,0.5,0,5000,7000
`

func TestReadSwaps(t *testing.T) {
	swaps, err := ReadSwaps(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, swaps, 3)

	first := swaps[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, 9, first.DecFrom)
	assert.Equal(t, 6, first.DecTo)
	assert.False(t, first.ReserveSwapped)
	assert.Equal(t, uint64(1_500_000_000), first.Input())
	assert.Equal(t, amm.Pool{X: 1_000_000_000_000, Y: 141_000_000_000}, first.Pool())

	second := swaps[1]
	assert.True(t, second.ReserveSwapped)
	assert.Equal(t, uint64(10_000_000), second.Input())
	assert.Equal(t, amm.Pool{X: 1_000_000_000_000, Y: 141_000_000_000}, second.Pool())

	assert.Equal(t, 5, swaps[2].Line)
	assert.Equal(t, uint64(500_000), swaps[2].Input())
}

func TestReadSwaps_ColumnOrderFromHeader(t *testing.T) {
	in := "reserve_out,reserve_in,amount_out,amount_in,is_reserve_swapped,dec_to,dec_from,pool\n" +
		"200,100,1,3,false,0,2,abc\n"

	swaps, err := ReadSwaps(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, uint64(300), swaps[0].Input())
	assert.Equal(t, amm.Pool{X: 100, Y: 200}, swaps[0].Pool())
}

func TestReadSwaps_FloatReserves(t *testing.T) {
	in := strings.Join(Columns, ",") + "\n0,0,false,1,1,1.5e6,2000000.9\n"

	swaps, err := ReadSwaps(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, amm.Pool{X: 1_500_000, Y: 2_000_000}, swaps[0].Pool())
}

func TestReadSwaps_MissingColumn(t *testing.T) {
	_, err := ReadSwaps(strings.NewReader("dec_from,dec_to\n1,2\n"))
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, err = ReadSwaps(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestReadSwaps_InvalidRow(t *testing.T) {
	header := strings.Join(Columns, ",") + "\n"

	tests := map[string]string{
		"bool":      "9,6,maybe,1,1,1,1",
		"amount":    "9,6,false,abc,1,1,1",
		"negative":  "9,6,false,-1,1,1,1",
		"decimals":  "9.5,6,false,1,1,1,1",
		"reserve":   "9,6,false,1,1,x,1",
		"truncated": "9,6,false,1,1,1",
		"overflow":  "9,6,false,1e12,1,1,1",
	}
	for name, row := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSwaps(strings.NewReader(header + row + "\n"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRow), "got %v", err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestReadSwaps_InputNearLimit(t *testing.T) {
	header := strings.Join(Columns, ",") + "\n"

	swaps, err := ReadSwaps(strings.NewReader(header + "9,6,false,1e10,1,1,1\n"))
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, uint64(10_000_000_000_000_000_000), swaps[0].Input())

	// 2^64 base units no longer fit
	_, err = ReadSwaps(strings.NewReader(header + "0,6,false,18446744073709551616,1,1,1\n"))
	assert.True(t, errors.Is(err, ErrInvalidRow), "got %v", err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raydium.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	swaps, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, swaps, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
