package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aanand-mishra/student-records/internal/filestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ filestore.FileStore = (*Local)(nil)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

func TestSaveOpenRemove(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "photos"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Save(ctx, "a.png", strings.NewReader(string(pngBytes)), int64(len(pngBytes)), "image/png"))

	obj, err := l.Open(ctx, "a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())

	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.EqualValues(t, len(pngBytes), obj.Size)

	require.NoError(t, l.Remove(ctx, "a.png"))
	_, err = l.Open(ctx, "a.png")
	require.ErrorIs(t, err, filestore.ErrNotFound)

	// Idempotent removal.
	require.NoError(t, l.Remove(ctx, "a.png"))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.Save(context.Background(), "b.png", strings.NewReader("x"), 1, "image/png"))

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.png", entries[0].Name())
}

func TestRejectsKeysEscapingTheDirectory(t *testing.T) {
	root := t.TempDir()
	l, err := New(filepath.Join(root, "photos"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o600))
	ctx := context.Background()

	for _, key := range []string{
		"../secret.txt",
		"..",
		".",
		"",
		"sub/a.png",
		`..\secret.txt`,
		"/etc/passwd",
		".upload-123",
	} {
		t.Run(key, func(t *testing.T) {
			_, err := l.Open(ctx, key)
			assert.ErrorIs(t, err, filestore.ErrInvalidKey)

			err = l.Save(ctx, key, strings.NewReader("x"), 1, "image/png")
			assert.ErrorIs(t, err, filestore.ErrInvalidKey)

			err = l.Remove(ctx, key)
			assert.ErrorIs(t, err, filestore.ErrInvalidKey)
		})
	}

	_, err = os.Stat(filepath.Join(root, "secret.txt"))
	require.NoError(t, err)
}

func TestOpen_Directory(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(l.Dir(), "nested"), 0o755))

	_, err = l.Open(context.Background(), "nested")
	require.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestPing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	l, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, l.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	require.Error(t, l.Ping(context.Background()))
}
