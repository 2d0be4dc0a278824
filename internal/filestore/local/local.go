// Package local stores photos as plain files in one directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aanand-mishra/student-records/internal/filestore"

	"github.com/gabriel-vasile/mimetype"
)

// Local is a directory-backed filestore.FileStore.
type Local struct {
	basepath string
}

// New creates the directory if needed and returns a store rooted at it.
func New(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local.New: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local.New: create directory: %w", err)
	}
	return &Local{basepath: abs}, nil
}

// Dir returns the absolute directory photos are written to.
func (l *Local) Dir() string { return l.basepath }

// Save writes to a hidden temp file in the same directory and renames it
// into place, so readers never observe a partial photo.
func (l *Local) Save(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	fullPath, err := l.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.basepath, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, key string) (*filestore.Object, error) {
	fullPath, err := l.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", filestore.ErrNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", filestore.ErrNotFound, key)
	}

	// Sniff the type from the content, then rewind for the reader.
	detected, err := mimetype.DetectReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("detect type of %s: %w", key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek %s: %w", key, err)
	}

	return &filestore.Object{
		ReadSeekCloser: f,
		Name:           key,
		Size:           info.Size(),
		ContentType:    detected.String(),
		ModTime:        info.ModTime(),
	}, nil
}

func (l *Local) Remove(_ context.Context, key string) error {
	fullPath, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Ping checks that the directory still exists.
func (l *Local) Ping(_ context.Context) error {
	info, err := os.Stat(l.basepath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", l.basepath)
	}
	return nil
}

// path resolves key inside the base directory and refuses anything that
// would land outside it.
func (l *Local) path(key string) (string, error) {
	if err := filestore.CheckKey(key); err != nil {
		return "", err
	}

	fullPath := filepath.Join(l.basepath, key)
	if filepath.Dir(fullPath) != l.basepath ||
		!strings.HasPrefix(fullPath, l.basepath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside the store", filestore.ErrInvalidKey, key)
	}
	return fullPath, nil
}
