package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallWriter returns a writer that rotates after roughly one line.
func smallWriter(t *testing.T, maxFiles int) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, maxFiles)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	// Shrink the threshold below 1MB so tests rotate with tiny writes.
	w.maxBytes = 64
	return w, path
}

func TestRotatingWriter_AppendsWithoutRotation(t *testing.T) {
	w, path := smallWriter(t, 3)

	_, err := w.Write([]byte("line one\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("line two\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))

	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err), "no rotation below the size threshold")
}

func TestRotatingWriter_RotatesPastSizeThreshold(t *testing.T) {
	w, path := smallWriter(t, 3)

	first := bytes.Repeat([]byte("a"), 60)
	_, err := w.Write(append(first, '\n'))
	require.NoError(t, err)

	_, err = w.Write([]byte("after rotation\n"))
	require.NoError(t, err)

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "aaaa")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotation\n", string(current))
}

func TestRotatingWriter_DropsFilesPastMaxFiles(t *testing.T) {
	w, path := smallWriter(t, 2)

	big := append(bytes.Repeat([]byte("x"), 70), '\n')
	for i := 0; i < 4; i++ {
		_, err := w.Write(big)
		require.NoError(t, err)
	}

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "files past maxFiles are removed")
}

func TestRotatingWriter_ReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("appended\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\nappended\n", string(data))
}
