package storager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowshot-io/dirtar/pkg/storager"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	t.Run("Writes file to fs service", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "out.tar.gz")
		require.NoError(t, os.WriteFile(src, []byte("archive bytes"), 0644))

		target := t.TempDir()
		store, err := storager.New("fs://" + target)
		require.NoError(t, err)

		n, err := storager.Upload(context.Background(), store, src, "out.tar.gz")
		require.NoError(t, err)
		require.Equal(t, int64(len("archive bytes")), n)

		data, err := os.ReadFile(filepath.Join(target, "out.tar.gz"))
		require.NoError(t, err)
		require.Equal(t, "archive bytes", string(data))
	})

	t.Run("Missing local file", func(t *testing.T) {
		store, err := storager.New("fs://" + t.TempDir())
		require.NoError(t, err)

		_, err = storager.Upload(context.Background(), store, filepath.Join(t.TempDir(), "absent"), "absent")
		require.Error(t, err)
	})

	t.Run("Unknown service", func(t *testing.T) {
		_, err := storager.New("nosuchservice:///x")
		require.Error(t, err)
	})
}
