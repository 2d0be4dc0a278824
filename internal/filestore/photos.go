package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// allowedTypes are the image formats accepted for student photos.
var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Photos applies the upload policy on top of a FileStore backend.
type Photos struct {
	backend   FileStore
	urlPrefix string
	maxBytes  int64
}

// NewPhotos returns a Photos writing to backend. urlPrefix is the public
// path the static handler serves, e.g. "/static/".
func NewPhotos(backend FileStore, urlPrefix string, maxBytes int64) *Photos {
	return &Photos{backend: backend, urlPrefix: urlPrefix, maxBytes: maxBytes}
}

// Backend returns the underlying store, for serving and health checks.
func (p *Photos) Backend() FileStore { return p.backend }

// MaxBytes is the largest accepted upload.
func (p *Photos) MaxBytes() int64 { return p.maxBytes }

// Store validates and saves an uploaded photo and returns its key.
//
// declaredType is the Content-Type the client sent for the file part; it
// must be an image type, and the sniffed content must be one of the
// allowed formats. The client's filename is only logged: the key is a
// fresh UUID plus the extension of the detected format, so names like
// "../../etc/passwd" never reach the backend.
func (p *Photos) Store(ctx context.Context, filename, declaredType string, r io.Reader) (string, error) {
	if !isImageType(declaredType) {
		return "", fmt.Errorf("%w: declared content type %q", ErrUnsupportedType, declaredType)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return "", ErrEmpty
	}
	if n > p.maxBytes {
		return "", ErrTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	if !mimetype.EqualsAny(detected.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedType, detected.String())
	}

	key := uuid.NewString() + detected.Extension()
	if err := p.backend.Save(ctx, key, &buf, n, detected.String()); err != nil {
		return "", fmt.Errorf("%w: save %s: %w", ErrStorage, key, err)
	}

	slog.Debug("photo stored",
		slog.String("key", key),
		slog.String("filename", filename),
		slog.String("type", detected.String()),
		slog.Int64("bytes", n))

	return key, nil
}

// Remove deletes a stored photo. Removing a missing photo succeeds.
func (p *Photos) Remove(ctx context.Context, key string) error {
	if err := p.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, key, err)
	}
	return nil
}

// URL is the public path of a stored photo.
func (p *Photos) URL(key string) string {
	return p.urlPrefix + key
}

func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
