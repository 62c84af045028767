package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/xs/internal/cas"
	"github.com/kilupskalvis/xs/internal/index"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	n, err := cfg.MaxFrameBytes()
	require.NoError(t, err)
	assert.Zero(t, n, "frames are unlimited unless configured")
}

func TestLoad_MissingOptionalFile(t *testing.T) {
	t.Setenv(EnvStore, "/tmp/xs-test-store")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xs-test-store", cfg.Store)
}

func TestLoad_MissingRequiredFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), true)
	assert.Error(t, err)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
store = "/data/xs"
index_backend = "badger"
hash_algorithm = "blake3"
compression = "zstd"
max_frame_size = "1MiB"
`), 0644))

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "/data/xs", cfg.Store)

	backend, err := cfg.Backend()
	require.NoError(t, err)
	assert.Equal(t, index.BackendBadger, backend)

	alg, err := cfg.Algorithm()
	require.NoError(t, err)
	assert.Equal(t, integrity.BLAKE3, alg)

	comp, err := cfg.CompressionMode()
	require.NoError(t, err)
	assert.Equal(t, cas.CompressionZstd, comp)

	n, err := cfg.MaxFrameBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), n)

	// Unset keys keep their defaults.
	assert.Equal(t, index.DefaultPageSize, cfg.ScanPageSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"backend":     `index_backend = "sqlite"`,
		"algorithm":   `hash_algorithm = "md5"`,
		"compression": `compression = "gzip"`,
		"size":        `max_frame_size = "lots"`,
		"page size":   `scan_page_size = -1`,
		"empty store": `store = ""`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFile)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := Load(path, true)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("store = [unterminated"), 0644))

	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFile)

	cfg := Default()
	cfg.Store = "/srv/xs"
	cfg.Compression = "lz4"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestMaxFrameBytes_Unlimited(t *testing.T) {
	for _, v := range []string{"", "0"} {
		cfg := Default()
		cfg.MaxFrameSize = v
		n, err := cfg.MaxFrameBytes()
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestDefaultPath_Env(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/xs.toml")
	assert.Equal(t, "/etc/xs.toml", DefaultPath())
}

func TestDefaultStorePath_XDG(t *testing.T) {
	t.Setenv(EnvStore, "")
	t.Setenv("XDG_DATA_HOME", "/home/u/.data")
	assert.Equal(t, filepath.Join("/home/u/.data", AppDir), DefaultStorePath())
}
