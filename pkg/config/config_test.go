package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/vexpr/pkg/config"
)

func TestTypedAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":    "fade",
		"size":    128,
		"ratio":   0.5,
		"whole":   float64(3),
		"frac":    3.7,
		"enabled": true,
	})

	assert.Equal(t, "fade", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))
	assert.Equal(t, "x", cfg.String("size", "x"), "type mismatch falls back")

	assert.Equal(t, 128, cfg.Int("size", 1))
	assert.Equal(t, 3, cfg.Int("whole", 1), "whole float converts")
	assert.Equal(t, 1, cfg.Int("frac", 1), "fractional float does not")

	assert.Equal(t, 0.5, cfg.Float("ratio", 0))
	assert.Equal(t, 128.0, cfg.Float("size", 0), "int converts to float")

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("missing", false))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
	assert.Equal(t, "fade", cfg.Any("name", nil))
}

func TestNilMap(t *testing.T) {
	cfg := config.New(nil)
	assert.Equal(t, "d", cfg.String("k", "d"))
	assert.NotNil(t, cfg.Raw())
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte("strategy: jit\ncache_size: 64\ndebug: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "jit", cfg.String("strategy", ""))
	assert.Equal(t, 64, cfg.Int("cache_size", 0))
	assert.True(t, cfg.Bool("debug", false))

	_, err = config.FromYAML([]byte(":\n:::bad"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"strategy": "interpreter", "return_dim": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "interpreter", cfg.String("strategy", ""))
	assert.Equal(t, 1, cfg.Int("return_dim", 3))

	_, err = config.FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_depth: 50\n"), 0o644))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Int("max_depth", 0))

	jsonPath := filepath.Join(dir, "engine.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"max_depth": 25}`), 0o644))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Int("max_depth", 0))

	_, err = config.FromFile(filepath.Join(dir, "engine.toml"))
	assert.Error(t, err, "unsupported extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestReadSettings(t *testing.T) {
	st := config.ReadSettings(config.New(nil))
	assert.Equal(t, "default", st.Strategy)
	assert.Equal(t, "numeric", st.ReturnKind)
	assert.Equal(t, 3, st.ReturnDim)
	assert.Equal(t, 256, st.CacheSize)
	assert.Equal(t, 100, st.MaxDepth)
	assert.False(t, st.Debug)

	st = config.ReadSettings(config.New(map[string]any{
		"strategy":    "interpreter",
		"return_kind": "string",
		"return_dim":  1,
		"cache_size":  0,
		"max_depth":   10,
		"debug":       true,
	}))
	assert.Equal(t, "interpreter", st.Strategy)
	assert.Equal(t, "string", st.ReturnKind)
	assert.Equal(t, 1, st.ReturnDim)
	assert.Equal(t, 0, st.CacheSize)
	assert.Equal(t, 10, st.MaxDepth)
	assert.True(t, st.Debug)
}
