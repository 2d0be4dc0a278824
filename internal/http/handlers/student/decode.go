package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/aanand-mishra/student-records/internal/utils/response"

	"github.com/go-playground/validator/v10"
)

const (
	maxJSONBytes = 1 << 20

	// formMemory is how much of a multipart body is held in memory before
	// parts spill to temporary files.
	formMemory = 8 << 20

	// formOverhead is allowed on top of the photo limit for the text
	// fields and multipart framing.
	formOverhead = 1 << 20

	photoField = "photo"
)

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves every request. Field names in messages follow the json
// tags ("full_name", not "FullName").
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// upload is the photo part of a multipart request.
type upload struct {
	filename    string
	contentType string
	file        multipart.File
}

// validInput runs the validate tags on v and writes the 422 on failure.
func validInput(w http.ResponseWriter, v any) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		response.WriteJSON(w, http.StatusUnprocessableEntity, response.ValidationError(verrs))
	} else {
		response.Invalid(w, err)
	}
	return false
}

func decodeCreate(w http.ResponseWriter, r *http.Request, maxPhoto int64) (types.NewStudent, *upload, error) {
	var in types.NewStudent

	switch mediaType(r) {
	case "multipart/form-data":
		form, err := parseForm(w, r, maxPhoto)
		if err != nil {
			return in, nil, err
		}
		in.FullName = formValue(form, "full_name")
		in.Email = formValue(form, "email")
		in.Phone = formOptional(form, "phone")
		if in.Age, err = formInt(form, "age"); err != nil {
			return in, nil, err
		}
		up, err := formFile(form)
		return in, up, err

	case "application/json", "":
		return in, nil, decodeJSON(w, r, &in)

	default:
		return in, nil, errUnsupportedMedia(r)
	}
}

func decodePatch(w http.ResponseWriter, r *http.Request, maxPhoto int64) (types.StudentPatch, *upload, error) {
	var patch types.StudentPatch

	switch mediaType(r) {
	case "multipart/form-data":
		form, err := parseForm(w, r, maxPhoto)
		if err != nil {
			return patch, nil, err
		}
		// Forms usually submit every field; a blank one means "unchanged".
		patch.FullName = formOptional(form, "full_name")
		patch.Email = formOptional(form, "email")
		patch.Phone = formOptional(form, "phone")
		if patch.Age, err = formInt(form, "age"); err != nil {
			return patch, nil, err
		}
		up, err := formFile(form)
		return patch, up, err

	case "application/json", "":
		return patch, nil, decodeJSON(w, r, &patch)

	default:
		return patch, nil, errUnsupportedMedia(r)
	}
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

func errUnsupportedMedia(r *http.Request) error {
	return fmt.Errorf("unsupported content type %q: use application/json or multipart/form-data",
		r.Header.Get("Content-Type"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	if err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return nil
}

func parseForm(w http.ResponseWriter, r *http.Request, maxPhoto int64) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhoto+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, filestore.ErrTooLarge
		}
		return nil, fmt.Errorf("malformed multipart body: %w", err)
	}
	return r.MultipartForm, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// formOptional returns nil for a missing or blank field.
func formOptional(form *multipart.Form, key string) *string {
	v := strings.TrimSpace(formValue(form, key))
	if v == "" {
		return nil
	}
	return &v
}

func formInt(form *multipart.Form, key string) (*int, error) {
	v := formOptional(form, key)
	if v == nil {
		return nil, nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return nil, fmt.Errorf("field %s must be an integer", key)
	}
	return &n, nil
}

func formFile(form *multipart.Form) (*upload, error) {
	files := form.File[photoField]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, errors.New("only one photo may be uploaded")
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return &upload{
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		file:        f,
	}, nil
}

// cleanupForm closes the photo and deletes any temporary files the
// multipart parser created.
func cleanupForm(r *http.Request, up *upload) {
	if up != nil {
		_ = up.file.Close()
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
