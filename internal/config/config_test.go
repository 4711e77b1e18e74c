package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
)

const minimal = `
version: v1
product: scaffold
blocks:
  - id: Contour
    seed: c1
  - id: Top
    depends_on: [Contour]
    producers: [derive]
`

var stock = []string{"copy", "derive", "prune_extras", "require_geometry"}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Engine.QueueDepth)
	assert.Equal(t, 30000, cfg.Engine.CommandTimeoutMs)
	assert.Equal(t, "info", cfg.Engine.LogLevel)
	require.Len(t, cfg.Blocks, 2)
	require.NotNil(t, cfg.Blocks[0].Seed)
	assert.Equal(t, "c1", *cfg.Blocks[0].Seed)
	assert.Nil(t, cfg.Blocks[1].Seed)
	assert.NoError(t, config.Validate(cfg, stock))
}

func TestParse_BadYAML(t *testing.T) {
	_, err := config.Parse([]byte("blocks: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing product",
			yaml:    "version: v1\nblocks:\n  - id: A\n",
			wantErr: "Product",
		},
		{
			name:    "no blocks",
			yaml:    "version: v1\nproduct: p\n",
			wantErr: "Blocks",
		},
		{
			name:    "duplicate id",
			yaml:    "version: v1\nproduct: p\nblocks:\n  - id: A\n  - id: A\n",
			wantErr: `duplicate id "A"`,
		},
		{
			name:    "self dependency",
			yaml:    "version: v1\nproduct: p\nblocks:\n  - id: A\n    depends_on: [A]\n",
			wantErr: "depends on itself",
		},
		{
			name:    "undeclared dependency",
			yaml:    "version: v1\nproduct: p\nblocks:\n  - id: A\n    depends_on: [B]\n",
			wantErr: `undeclared block "B"`,
		},
		{
			name:    "unknown producer",
			yaml:    "version: v1\nproduct: p\nblocks:\n  - id: A\n    producers: [boolean_union]\n",
			wantErr: `unknown producer "boolean_union"`,
		},
		{
			name:    "bad log level",
			yaml:    "version: v1\nproduct: p\nengine:\n  log_level: loud\nblocks:\n  - id: A\n",
			wantErr: "LogLevel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			require.NoError(t, err)
			err = config.Validate(cfg, stock)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_NilProducersSkipsCheck(t *testing.T) {
	cfg, err := config.Parse([]byte("version: v1\nproduct: p\nblocks:\n  - id: A\n    producers: [anything]\n"))
	require.NoError(t, err)
	assert.NoError(t, config.Validate(cfg, nil))
}

func TestLoader_ReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	l, err := config.NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	assert.Equal(t, "scaffold", l.Config().Product)

	var calls atomic.Int32
	l.OnChange(func(cfg *config.ProductConfig) {
		calls.Add(1)
		assert.Equal(t, "implant", cfg.Product)
	})

	require.NoError(t, os.WriteFile(path, []byte("version: v1\nproduct: implant\nblocks:\n  - id: A\n"), 0o644))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "implant", cfg.Product)
	assert.Equal(t, "implant", l.Config().Product)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("blocks: [unterminated"), 0o644))
	_, err = l.Reload()
	assert.Error(t, err)
	assert.Equal(t, "implant", l.Config().Product, "failed reload keeps the previous config")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoader_WatchStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))
	l, err := config.NewLoader(path)
	require.NoError(t, err)

	stop, err := l.Watch()
	require.NoError(t, err)
	stop()
	stop()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, config.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, config.ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, config.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, config.ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, config.ParseLevel("loud"))
}
