package repository

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_CyclicReferencesDropped(t *testing.T) {
	m := map[string]any{"name": "loop"}
	m["self"] = m

	out, ok := Sanitize(m).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loop", out["name"])
	_, hasSelf := out["self"]
	assert.False(t, hasSelf, "cyclic reference must be dropped, not recursed")
}

func TestSanitize_CycleThroughSlice(t *testing.T) {
	m := map[string]any{}
	s := []any{m}
	m["list"] = s

	out, ok := Sanitize(m).(map[string]any)
	require.True(t, ok)
	list, ok := out["list"].([]any)
	require.True(t, ok)
	assert.Empty(t, list)
}

func TestSanitize_SharedNonCyclicValueSurvives(t *testing.T) {
	shared := map[string]any{"k": "v"}
	m := map[string]any{"a": shared, "b": shared}

	out, ok := Sanitize(m).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, out["a"])
	assert.Equal(t, map[string]any{"k": "v"}, out["b"])
}

func TestSanitize_NonJSONSafeTypes(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	when := time.UnixMilli(1_700_000_000_123)

	m := map[string]any{
		"smallBig": big.NewInt(42),
		"hugeBig":  huge,
		"when":     when,
		"whenPtr":  &when,
		"members":  map[string]struct{}{"b": {}, "a": {}},
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
		"fn":       func() {},
	}

	out, ok := Sanitize(m).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, int64(42), out["smallBig"])
	assert.InDelta(t, 1.2345678901234568e29, out["hugeBig"].(float64), 1e15)
	assert.Equal(t, int64(1_700_000_000_123), out["when"])
	assert.Equal(t, int64(1_700_000_000_123), out["whenPtr"])
	assert.Equal(t, []string{"a", "b"}, out["members"])
	assert.Equal(t, 0.0, out["nan"])
	assert.Equal(t, 0.0, out["inf"])
	_, hasFn := out["fn"]
	assert.False(t, hasFn)
}

func TestSanitize_AuthedStripped(t *testing.T) {
	m := map[string]any{
		"authed": true,
		"nested": map[string]any{"authed": true, "keep": 1.0},
	}

	out, ok := Sanitize(m).(map[string]any)
	require.True(t, ok)
	_, has := out["authed"]
	assert.False(t, has)

	nested := out["nested"].(map[string]any)
	_, has = nested["authed"]
	assert.False(t, has)
	assert.Equal(t, 1.0, nested["keep"])
}

func TestSanitize_Scalars(t *testing.T) {
	assert.Equal(t, nil, Sanitize(nil))
	assert.Equal(t, "s", Sanitize("s"))
	assert.Equal(t, true, Sanitize(true))
	assert.Equal(t, 3.5, Sanitize(3.5))
}
