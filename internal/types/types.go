// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, and utils can all import types without depending
// on each other.
package types

import (
	"strings"
	"time"
)

// Student represents a student record as stored and returned by the API.
//
// Optional columns are pointers so that "not set" (JSON null, SQL NULL)
// stays distinguishable from an empty string or a zero age.
type Student struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Age       *int      `json:"age"`
	PhotoPath *string   `json:"photo_path"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStudent is the payload accepted when creating a student.
//
// validate:"..." tags are checked by go-playground/validator in the
// handler before anything reaches storage. PhotoPath is never decoded
// from a client body; the handler fills it after a successful upload.
type NewStudent struct {
	FullName  string  `json:"full_name" validate:"required,max=100"`
	Email     string  `json:"email"     validate:"required,email,max=254"`
	Phone     *string `json:"phone"     validate:"omitempty,max=20"`
	Age       *int    `json:"age"       validate:"omitempty,gte=0,lte=150"`
	PhotoPath *string `json:"-"         validate:"-"`
}

// Normalize trims text fields and lowercases the email, so uniqueness is
// case-insensitive.
func (n *NewStudent) Normalize() {
	n.FullName = strings.TrimSpace(n.FullName)
	n.Email = normalizeEmail(n.Email)
	n.Phone = trimOptional(n.Phone)
}

// StudentPatch is a partial update. A nil field keeps the stored value.
type StudentPatch struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email"     validate:"omitempty,email,max=254"`
	Phone     *string `json:"phone"     validate:"omitempty,max=20"`
	Age       *int    `json:"age"       validate:"omitempty,gte=0,lte=150"`
	PhotoPath *string `json:"-"         validate:"-"`
}

// Normalize applies the same rules as NewStudent.Normalize to the fields
// that are present.
func (p *StudentPatch) Normalize() {
	if p.FullName != nil {
		v := strings.TrimSpace(*p.FullName)
		p.FullName = &v
	}
	if p.Email != nil {
		v := normalizeEmail(*p.Email)
		p.Email = &v
	}
	p.Phone = trimOptional(p.Phone)
}

// IsEmpty reports whether the patch would change nothing.
func (p StudentPatch) IsEmpty() bool {
	return p.FullName == nil && p.Email == nil && p.Phone == nil &&
		p.Age == nil && p.PhotoPath == nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trimOptional trims a present value and turns a blank one into nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
