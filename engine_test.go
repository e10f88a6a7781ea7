package vexpr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/vexpr"
	"github.com/sandrolain/vexpr/pkg/catalog"
	"github.com/sandrolain/vexpr/pkg/config"
	"github.com/sandrolain/vexpr/pkg/expr"
)

func newTestEngine(t *testing.T, cfg map[string]any, opts ...vexpr.EngineOption) *vexpr.Engine {
	t.Helper()
	vars := expr.VarMap{"u": scalar(2)}
	opts = append([]vexpr.EngineOption{vexpr.WithEngineResolver(vars)}, opts...)
	eng := vexpr.NewEngine(config.New(cfg), opts...)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestEngineEval(t *testing.T) {
	eng := newTestEngine(t, map[string]any{"return_dim": 1})

	out, err := eng.Eval(context.Background(), "$u * 10")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0])
}

func TestEngineCachesCompiledExpressions(t *testing.T) {
	eng := newTestEngine(t, map[string]any{"return_dim": 1, "cache_size": 8})

	ctx := context.Background()
	e1, err := eng.Compile(ctx, "$u + 1")
	require.NoError(t, err)
	e2, err := eng.Compile(ctx, "$u + 1")
	require.NoError(t, err)
	assert.Same(t, e1, e2, "second compile should hit the cache")
}

func TestEngineCacheDisabled(t *testing.T) {
	eng := newTestEngine(t, map[string]any{"return_dim": 1, "cache_size": 0})

	ctx := context.Background()
	e1, err := eng.Compile(ctx, "$u + 1")
	require.NoError(t, err)
	e2, err := eng.Compile(ctx, "$u + 1")
	require.NoError(t, err)
	assert.NotSame(t, e1, e2)
}

func TestEngineCompileError(t *testing.T) {
	eng := newTestEngine(t, map[string]any{"return_dim": 1})

	_, err := eng.Compile(context.Background(), "$missing + 1")
	require.Error(t, err)
	var ce *vexpr.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Diagnostics, 1)
}

func TestEngineStringSettings(t *testing.T) {
	vars := expr.VarMap{}
	eng := vexpr.NewEngine(config.New(map[string]any{
		"return_kind": "string",
		"strategy":    "interpreter",
	}), vexpr.WithEngineResolver(vars))
	defer eng.Close()

	got, err := eng.EvalString(context.Background(), `1 > 0 ? "up" : "down"`)
	require.NoError(t, err)
	assert.Equal(t, "up", got)
}

func TestEngineCatalogRoundTrip(t *testing.T) {
	store, err := catalog.Open(":memory:")
	require.NoError(t, err)

	eng := newTestEngine(t, map[string]any{"return_dim": 1},
		vexpr.WithCatalog(store))

	id, err := eng.Store("double", "$u * 2")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	e, err := eng.LoadStored(context.Background(), "double")
	require.NoError(t, err)
	out := e.EvalFP()
	require.Len(t, out, 1)
	assert.Equal(t, 4.0, out[0])

	entry, err := store.Load("double")
	require.NoError(t, err)
	assert.True(t, entry.Valid)
	assert.Equal(t, "FP[1]", entry.ReturnType)
}

func TestEngineStoresInvalidWithDiagnostics(t *testing.T) {
	store, err := catalog.Open(":memory:")
	require.NoError(t, err)

	eng := newTestEngine(t, map[string]any{"return_dim": 1},
		vexpr.WithCatalog(store))

	_, err = eng.Store("broken", "$u + $nope")
	require.NoError(t, err, "invalid expressions are stored with their diagnostics")

	entry, err := store.Load("broken")
	require.NoError(t, err)
	assert.False(t, entry.Valid)
	require.Len(t, entry.Diagnostics, 1)
	assert.Equal(t, "U1001", string(entry.Diagnostics[0].Code))
}

func TestEngineWithoutCatalog(t *testing.T) {
	eng := newTestEngine(t, map[string]any{"return_dim": 1})

	_, err := eng.Store("x", "1")
	assert.Error(t, err)
	_, err = eng.LoadStored(context.Background(), "x")
	assert.Error(t, err)
	assert.Nil(t, eng.Catalog())
}
