package optimizer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optimizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("PartialFileKeepsDefaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(writeConfig(t, "max_results: 25\n"))
		require.NoError(t, err)
		assert.Equal(t, 25, cfg.MaxResults)
		assert.True(t, cfg.Projection)
		assert.True(t, cfg.Joins)
		assert.True(t, cfg.BatchFetch)
	})

	t.Run("FullFile", func(t *testing.T) {
		t.Parallel()
		cfg, err := Load(writeConfig(t, `
projection: false
joins: false
batch_fetch: false
default_limit: 10
max_limit: 50
max_results: 200
`))
		require.NoError(t, err)
		assert.Equal(t, Config{
			DefaultLimit: 10,
			MaxLimit:     50,
			MaxResults:   200,
		}, cfg)
	})

	t.Run("MalformedFile", func(t *testing.T) {
		t.Parallel()
		_, err := Load(writeConfig(t, "max_results: [not an int\n"))
		assert.Error(t, err)
	})
}

func TestWatchConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "max_results: 10\n")
	changes := make(chan Config, 4)
	stop, err := WatchConfig(path, func(cfg Config) { changes <- cfg }, nil)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("max_results: 42\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.MaxResults == 42 {
				return
			}
		case <-deadline:
			t.Fatal("no config reload observed")
		}
	}
}
