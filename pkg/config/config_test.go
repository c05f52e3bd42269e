package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowshot-io/dirtar/pkg/config"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(content), 0644))
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("Overlays file on defaults", func(t *testing.T) {
		dir := writeConfig(t, `
log:
  pretty: true
archive:
  compressionLevel: 9
publish:
  connection: fs:///tmp/archives
  key: nightly.tar.gz
`)
		settings := config.Default()
		require.NoError(t, config.Load(dir, "", &settings))

		require.True(t, settings.Log.Pretty)
		require.Equal(t, "warn", settings.Log.Level)
		require.Equal(t, 9, settings.Archive.CompressionLevel)
		require.False(t, settings.Archive.SingleThreaded)
		require.Equal(t, "fs:///tmp/archives", settings.Publish.Connection)
		require.Equal(t, "nightly.tar.gz", settings.Publish.Key)
	})

	t.Run("Missing file", func(t *testing.T) {
		settings := config.Default()
		err := config.Load(t.TempDir(), "absent.yaml", &settings)
		require.ErrorContains(t, err, "does not exist")
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		dir := writeConfig(t, "log: [unterminated")
		settings := config.Default()
		require.Error(t, config.Load(dir, "settings.yaml", &settings))
	})

	t.Run("Invalid values", func(t *testing.T) {
		cases := map[string]string{
			"compression too high": "archive:\n  compressionLevel: 12\n",
			"compression too low":  "archive:\n  compressionLevel: -2\n",
			"unknown log level":    "log:\n  level: loud\n",
			"key without target":   "publish:\n  key: x.tar.gz\n",
			"bad connection":       "publish:\n  connection: nowhere\n",
		}

		for name, content := range cases {
			content := content
			t.Run(name, func(t *testing.T) {
				dir := writeConfig(t, content)
				settings := config.Default()
				require.Error(t, config.Load(dir, "", &settings))
			})
		}
	})
}

func TestDefault(t *testing.T) {
	settings := config.Default()
	require.NoError(t, config.Validate(&settings))
	require.Equal(t, -1, settings.Archive.CompressionLevel)
	require.Equal(t, "warn", settings.Log.Level)
	require.Empty(t, settings.Publish.Connection)
}
