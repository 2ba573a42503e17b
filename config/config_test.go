package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/interleave"
)

func TestDefaults(t *testing.T) {
	v := New()
	v.SetConfigName("mkvmux-missing")
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, interleave.DefaultMaxDuration, cfg.Cluster.MaxDuration)
	assert.Equal(t, mkv.DefaultWritingApp, cfg.Output.WritingApp)
	assert.Equal(t, "info", cfg.Log.Level)

	opts := cfg.Options()
	assert.Equal(t, uint64(time.Millisecond), opts.Output.TimestampScale)
	assert.Equal(t, opts.Output.TimestampScale, opts.Cluster.TimestampScale)
	assert.Equal(t, 4, opts.IdentifyWorkers)
}

func TestFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
cluster:
  max_duration: 2s
  max_size: 1048576
writer:
  crc: true
output:
  title: Holiday
`), 0o644))
	t.Setenv("MKVMUX_OUTPUT_TITLE", "From env")
	t.Setenv("MKVMUX_LOG_LEVEL", "debug")

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Cluster.MaxDuration)
	assert.Equal(t, 1048576, cfg.Cluster.MaxSize)
	assert.True(t, cfg.Writer.CRC)
	assert.Equal(t, "From env", cfg.Output.Title)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Options().Output.CRC)
}

func TestInvalid(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("MKVMUX_CLUSTER_MAX_DURATION", "0s")
	v := New()
	v.SetConfigName("mkvmux-missing")
	_, err = Load(v, "")
	assert.Error(t, err)
}
