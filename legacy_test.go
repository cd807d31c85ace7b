package sheetops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyEvaluator_Evaluate(t *testing.T) {
	e := newLegacyEvaluator()
	env := legacyEnv(map[string]Value{"Price": Number(100)}, nil)

	v, err := e.Evaluate("Price * 0.9", env)
	require.NoError(t, err)
	assert.Equal(t, Number(90), v)

	v, err = e.Evaluate(`Price > 50 ? "big" : "small"`, env)
	require.NoError(t, err)
	assert.Equal(t, Text("big"), v)
}

func TestLegacyEvaluator_CachesPrograms(t *testing.T) {
	e := newLegacyEvaluator()
	env := legacyEnv(map[string]Value{"x": Number(1)}, nil)

	_, err := e.Evaluate("x + 1", env)
	require.NoError(t, err)
	_, ok := e.cache.Load("x + 1")
	assert.True(t, ok)

	// Cached program still runs against fresh environments.
	v, err := e.Evaluate("x + 1", legacyEnv(map[string]Value{"x": Number(41)}, nil))
	require.NoError(t, err)
	assert.Equal(t, Number(42), v)
}

func TestLegacyEvaluator_RuntimeError(t *testing.T) {
	e := newLegacyEvaluator()
	_, err := e.Evaluate(`missing.field`, map[string]any{})
	assert.Error(t, err)
}

func TestCheckLegacyFormula(t *testing.T) {
	assert.NoError(t, checkLegacyFormula("a + b * 2"))
	assert.Error(t, checkLegacyFormula("a +"))
}

func TestLegacyEnv_VariablesShadowColumns(t *testing.T) {
	env := legacyEnv(
		map[string]Value{"total": Number(1), "price": Number(5)},
		map[string]Value{"total": Number(99)},
	)
	assert.Equal(t, 99.0, env["total"])
	assert.Equal(t, 5.0, env["price"])
}
