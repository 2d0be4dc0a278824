// Package filestore defines where uploaded photos are kept.
//
// FileStore is the backend contract, implemented by the local (directory)
// and s3 (bucket) subpackages. Photos sits on top of a backend and owns the
// upload policy: size limit, content sniffing and generated names.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound means no object exists under the key.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidKey means the key could address something outside the store.
	ErrInvalidKey = errors.New("invalid file key")

	// ErrStorage wraps backend write and delete failures.
	ErrStorage = errors.New("file storage failure")

	// Upload rejections. All of them happen before anything is written.
	ErrEmpty           = errors.New("photo is empty")
	ErrTooLarge        = errors.New("photo exceeds the maximum upload size")
	ErrUnsupportedType = errors.New("photo must be a jpeg, png, gif or webp image")
)

// FileStore is implemented by every storage backend. Implementations must
// be safe for concurrent use.
type FileStore interface {
	// Save writes size bytes from r under key, replacing any existing object.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns the object stored under key, or ErrNotFound.
	// The caller closes the returned Object.
	Open(ctx context.Context, key string) (*Object, error)

	// Remove deletes the object. A missing object is not an error.
	Remove(ctx context.Context, key string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Object is an open stored file.
type Object struct {
	io.ReadSeekCloser

	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// CheckKey rejects keys that are not a single plain file name: empty,
// dot-prefixed (hidden and temp files, ".", ".."), or containing a path
// separator or NUL byte.
func CheckKey(key string) error {
	switch {
	case key == "",
		strings.HasPrefix(key, "."),
		strings.ContainsAny(key, `/\`+"\x00"),
		strings.Contains(key, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
