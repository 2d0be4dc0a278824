// Package static serves stored photos read-only.
package static

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// New handles GET <prefix>{path...}. The path must be a single photo key;
// anything that could reach outside the store answers 404, the same as a
// missing photo.
func New(files filestore.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("path")

		obj, err := files.Open(r.Context(), key)
		if err != nil {
			status := response.WriteError(w, err)
			if status >= http.StatusInternalServerError {
				slog.Error("error opening photo", slog.String("key", key), slog.String("error", err.Error()))
			} else if errors.Is(err, filestore.ErrInvalidKey) {
				slog.Warn("rejected photo path", slog.String("path", key))
			}
			return
		}
		defer obj.Close()

		if obj.ContentType != "" {
			w.Header().Set("Content-Type", obj.ContentType)
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400")

		// ServeContent handles Range, If-Modified-Since and HEAD.
		http.ServeContent(w, r, obj.Name, obj.ModTime, obj)
	}
}
