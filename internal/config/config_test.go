package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GusMove/pkg/engine"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Transfer.Concurrency)
	assert.Equal(t, 10_000_000, cfg.Transfer.BufferSize)
	assert.True(t, cfg.Transfer.Truncate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ProgressAuto, cfg.UI.Progress)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gusmove.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transfer:
  concurrency: 8
  buffer_size: 4096
  truncate: false
logging:
  level: debug
ui:
  progress: log
`), 0o644))
	t.Setenv("GUSMOVE_LOGGING_LEVEL", "warn")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Transfer.Concurrency)
	assert.Equal(t, 4096, cfg.Transfer.BufferSize)
	assert.False(t, cfg.Transfer.Truncate)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ProgressLog, cfg.UI.Progress)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, engine.ErrSyntax)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Transfer: TransferConfig{Concurrency: 1, BufferSize: 2},
		UI:       UIConfig{Progress: ProgressNone},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"zero concurrency": func(c *Config) { c.Transfer.Concurrency = 0 },
		"tiny buffer":      func(c *Config) { c.Transfer.BufferSize = 1 },
		"unknown progress": func(c *Config) { c.UI.Progress = "fancy" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), engine.ErrSyntax)
		})
	}
}

func TestCheckPaths(t *testing.T) {
	require.NoError(t, CheckPaths("/data/src", "/data/dst", ""))
	require.NoError(t, CheckPaths("/data/src", "/data/src-copy", "/data/journal.md"))
	require.NoError(t, CheckPaths("/data/src", "/data/..src", ""))

	assert.ErrorIs(t, CheckPaths("/data/src", "/data/src", ""), engine.ErrSyntax)
	assert.ErrorIs(t, CheckPaths("/data/src", "/data/src/inner", ""), engine.ErrSyntax)
	assert.ErrorIs(t, CheckPaths("/data/src", "/data/dst", "/data/src/journal.md"), engine.ErrSyntax)
}
