package units

import (
	"errors"
	"math/big"
	"math/rand/v2"
	"strings"
	"testing"

	"web3-orchestrator/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad test literal %s", s)
	return v
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"1,234.56789", 2, "1234.56"},
		{".5", 18, "0.5"},
		{"0007", 18, "7"},
		{"00.50", 18, "0.50"},
		{"1.2.3", 5, "1.23"},
		{"12.", 6, "12."},
		{"  4 2 ", 6, "42"},
		{"abc", 6, ""},
		{"", 6, ""},
		{"$1,000.999", 2, "1000.99"},
		{"0.0000001", 6, "0.000000"},
		{"5.5", 0, "5."},
		{".", 18, "0."},
		{"-3", 18, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.raw, tt.decimals))
		})
	}
}

func TestSanitize_Invariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []rune("0123456789.,. ax-e")

	for i := 0; i < 2000; i++ {
		n := rng.IntN(16)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteRune(alphabet[rng.IntN(len(alphabet))])
		}
		decimals := rng.IntN(19)
		out := Sanitize(b.String(), decimals)

		assert.LessOrEqual(t, strings.Count(out, "."), 1, "input %q", b.String())
		if _, frac, ok := strings.Cut(out, "."); ok {
			assert.LessOrEqual(t, len(frac), decimals, "input %q", b.String())
		}
		if out == "" {
			continue
		}

		// Round-trip law: every sanitized value converts and comes back canonical.
		v, err := ToBaseUnits(out, decimals)
		require.NoError(t, err, "input %q sanitized to %q", b.String(), out)
		assert.Equal(t, Canonical(out), FromBaseUnits(v, decimals), "input %q", b.String())
	}
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
	}{
		{"0.00005", 18, "50000000000000"},
		{"1", 6, "1000000"},
		{"20", 6, "20000000"},
		{"12.", 6, "12000000"},
		{".25", 2, "25"},
		{"0", 18, "0"},
		{"1.5", 18, "1500000000000000000"},
		{"7", 0, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ToBaseUnits(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestToBaseUnits_ParseErrors(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
	}{
		{"", 18},
		{".", 18},
		{"1.234", 2},
		{"1e5", 18},
		{"-1", 18},
		{"1,000", 18},
		{" 1", 18},
		{"1.2.3", 18},
		{"0x10", 18},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ToBaseUnits(tt.in, tt.decimals)
			var parseErr *apperror.ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.Equal(t, tt.in, parseErr.Input)
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "0.00005", FromBaseUnits(bigInt(t, "50000000000000"), 18))
	assert.Equal(t, "1", FromBaseUnits(bigInt(t, "1000000"), 6))
	assert.Equal(t, "0.000000000000000001", FromBaseUnits(big.NewInt(1), 18))
	assert.Equal(t, "123456789012345678901234567890", FromBaseUnits(bigInt(t, "123456789012345678901234567890"), 0))
	assert.Equal(t, "0", FromBaseUnits(big.NewInt(0), 18))
	assert.Equal(t, "0", FromBaseUnits(nil, 18))
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive("0.000001", 6))
	assert.False(t, IsPositive("0.0000001", 6))
	assert.False(t, IsPositive("0", 18))
	assert.False(t, IsPositive("0.", 18))
	assert.False(t, IsPositive("", 18))
}

func TestFormatForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals int
		want     string
	}{
		{"unavailable", nil, 18, "—"},
		{"zero", big.NewInt(0), 18, "0"},
		{"one and a half", bigInt(t, "1500000000000000000"), 18, "1.50"},
		{"usdt", big.NewInt(123456789), 6, "123.46"},
		{"small", bigInt(t, "50000000000000"), 18, "0.00005"},
		{"lower bound", bigInt(t, "1000000000000"), 18, "0.000001"},
		{"rounds up to one", bigInt(t, "999999900000000000"), 18, "1"},
		{"one wei", big.NewInt(1), 18, "1.00e-18"},
		{"mantissa rounds over", bigInt(t, "999999999999"), 18, "1.00e-6"},
		{"tiny with digits", big.NewInt(2345), 18, "2.35e-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForDisplay(tt.raw, tt.decimals))
		})
	}
}

func TestFormatHealthFactor(t *testing.T) {
	assert.Equal(t, "—", FormatHealthFactor(nil))
	assert.Equal(t, "0.000", FormatHealthFactor(big.NewInt(0)))
	assert.Equal(t, "1.500", FormatHealthFactor(bigInt(t, "1500000000000000000")))
	assert.Equal(t, "2.346", FormatHealthFactor(bigInt(t, "2345600000000000000")))
}
