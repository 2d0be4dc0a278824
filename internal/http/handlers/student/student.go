// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE: THE CLOSURE / FACTORY PATTERN
// ────────────────────────────────────────────────────────────
// Each exported function receives its dependencies (storage, photos) once
// at route registration and returns the http.HandlerFunc the router calls
// on every request:
//
//	router.HandleFunc("POST /api/students", student.New(storage, photos))
//
// Request bodies are accepted as application/json or multipart/form-data;
// only the multipart form can carry a photo (file part "photo").
package student

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/students
//
// JSON body:
//
//	{ "full_name": "Ana Gomez", "email": "ana@example.com", "phone": "555-1234", "age": 21 }
//
// or the same fields as multipart/form-data, plus an optional "photo" file.
//
// 201 Created with the stored student · 409 duplicate email · 422 invalid
//
// The photo is written before the row. If the insert fails the photo is
// removed again, so a rejected create leaves no file behind.
// ─────────────────────────────────────────────────────────────────────────────
func New(storage storage.Storage, photos *filestore.Photos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		in, up, err := decodeCreate(w, r, photos.MaxBytes())
		defer cleanupForm(r, up)
		if err != nil {
			response.Invalid(w, err)
			return
		}

		in.Normalize()
		if !validInput(w, in) {
			return
		}

		key, ok := storePhoto(w, r, photos, up)
		if !ok {
			return
		}
		if key != "" {
			in.PhotoPath = &key
		}

		created, err := storage.CreateStudent(r.Context(), in)
		if err != nil {
			discardPhoto(r.Context(), photos, key)
			fail(w, "error creating student", err)
			return
		}

		slog.Info("student created", slog.Int64("id", created.ID))
		response.WriteJSON(w, http.StatusCreated, withPhotoURL(photos, created))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/students/{id}
//
// 200 OK with the student · 404 unknown id · 422 id is not an integer
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(storage storage.Storage, photos *filestore.Photos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("getting a student", slog.Int64("id", id))

		student, err := storage.GetStudentByID(r.Context(), id)
		if err != nil {
			fail(w, "error getting student", err, slog.Int64("id", id))
			return
		}

		response.WriteJSON(w, http.StatusOK, withPhotoURL(photos, student))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/students
//
// 200 OK with every student ordered by id; [] (not null) when empty.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(storage storage.Storage, photos *filestore.Photos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all students")

		students, err := storage.GetStudents(r.Context())
		if err != nil {
			fail(w, "error getting students", err)
			return
		}

		for i := range students {
			students[i] = withPhotoURL(photos, students[i])
		}
		response.WriteJSON(w, http.StatusOK, students)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT and PATCH /api/students/{id}
//
// Any subset of full_name, email, phone, age and photo may be sent; absent
// fields keep their stored value. Setting the email to its current value is
// not a conflict.
//
// 200 OK with the updated student · 404 · 409 · 422
//
// A new photo is written first and removed again if the update fails. The
// replaced photo is removed only after the row points at the new one.
// ─────────────────────────────────────────────────────────────────────────────
func Update(storage storage.Storage, photos *filestore.Photos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("updating a student", slog.Int64("id", id))

		patch, up, err := decodePatch(w, r, photos.MaxBytes())
		defer cleanupForm(r, up)
		if err != nil {
			response.Invalid(w, err)
			return
		}

		patch.Normalize()
		if !validInput(w, patch) {
			return
		}
		if patch.IsEmpty() && up == nil {
			response.Invalid(w, errors.New("request must change at least one field"))
			return
		}

		// Look the row up first: an unknown id must not cost a photo write,
		// and the current photo is needed to clean up after a replacement.
		existing, err := storage.GetStudentByID(r.Context(), id)
		if err != nil {
			fail(w, "error updating student", err, slog.Int64("id", id))
			return
		}

		key, ok := storePhoto(w, r, photos, up)
		if !ok {
			return
		}
		if key != "" {
			patch.PhotoPath = &key
		}

		updated, err := storage.UpdateStudentByID(r.Context(), id, patch)
		if err != nil {
			discardPhoto(r.Context(), photos, key)
			fail(w, "error updating student", err, slog.Int64("id", id))
			return
		}

		if key != "" && existing.PhotoPath != nil && *existing.PhotoPath != key {
			if err := photos.Remove(context.WithoutCancel(r.Context()), *existing.PhotoPath); err != nil {
				slog.Warn("could not remove replaced photo",
					slog.Int64("id", id),
					slog.String("key", *existing.PhotoPath),
					slog.String("error", err.Error()))
			}
		}

		slog.Info("student updated", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, withPhotoURL(photos, updated))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/students/{id}
//
// Removes the row and then its photo file.
//
// 204 No Content · 404 unknown id · 500 storage_error if the photo could
// not be removed (the row is already gone at that point)
// ─────────────────────────────────────────────────────────────────────────────
func Delete(storage storage.Storage, photos *filestore.Photos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("deleting a student", slog.Int64("id", id))

		deleted, err := storage.DeleteStudentByID(r.Context(), id)
		if err != nil {
			fail(w, "error deleting student", err, slog.Int64("id", id))
			return
		}

		if deleted.PhotoPath != nil {
			if err := photos.Remove(context.WithoutCancel(r.Context()), *deleted.PhotoPath); err != nil {
				fail(w, "error removing photo of deleted student", err,
					slog.Int64("id", id), slog.String("key", *deleted.PhotoPath))
				return
			}
		}

		slog.Info("student deleted", slog.Int64("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseID reads the {id} path segment. It writes the 422 itself on failure.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.Invalid(w, errors.New("invalid id: must be an integer"))
		return 0, false
	}
	return id, true
}

// storePhoto saves the uploaded photo, if any, and returns its key.
// An empty key with ok=true means there was nothing to store.
func storePhoto(w http.ResponseWriter, r *http.Request, photos *filestore.Photos, up *upload) (string, bool) {
	if up == nil {
		return "", true
	}
	key, err := photos.Store(r.Context(), up.filename, up.contentType, up.file)
	if err != nil {
		fail(w, "error storing photo", err, slog.String("filename", up.filename))
		return "", false
	}
	return key, true
}

// discardPhoto removes a photo written for a request whose database write
// failed. It runs even when the request context is already cancelled.
func discardPhoto(ctx context.Context, photos *filestore.Photos, key string) {
	if key == "" {
		return
	}
	if err := photos.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.Error("could not remove orphaned photo",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// fail writes the error response for err and logs it; server-side
// failures at error level, client mistakes at info.
func fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status := response.WriteError(w, err)
	attrs = append(attrs, slog.Int("status", status), slog.String("error", err.Error()))
	if status >= http.StatusInternalServerError {
		slog.Error(msg, attrs...)
		return
	}
	slog.Info(msg, attrs...)
}

func withPhotoURL(photos *filestore.Photos, s types.Student) types.Student {
	if s.PhotoPath != nil {
		s.PhotoURL = photos.URL(*s.PhotoPath)
	}
	return s
}
