// Package storage defines the Storage interface: the contract that any
// database backend must satisfy to work with this application.
//
// Handlers depend only on this interface, so switching between the
// PostgreSQL and SQLite backends is a configuration change, and handler
// tests can run against an in-memory fake.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/student-records/internal/types"
)

// Sentinel errors returned (wrapped) by every backend. Callers match them
// with errors.Is.
var (
	// ErrNotFound means no student exists with the requested id.
	ErrNotFound = errors.New("student not found")

	// ErrConflict means the email is already used by another student.
	ErrConflict = errors.New("a student with this email already exists")
)

// Storage is the database contract.
type Storage interface {
	// CreateStudent inserts a new student and returns the stored row,
	// including the generated id. Fails with ErrConflict on a duplicate
	// email.
	CreateStudent(ctx context.Context, student types.NewStudent) (types.Student, error)

	// GetStudentByID fetches a single student by primary key.
	// Fails with ErrNotFound if no row matches.
	GetStudentByID(ctx context.Context, id int64) (types.Student, error)

	// GetStudents returns every student ordered by id ascending.
	// Returns an empty slice (not nil) if there are no students.
	GetStudents(ctx context.Context) ([]types.Student, error)

	// UpdateStudentByID applies the non-nil fields of patch and returns
	// the updated row. Fails with ErrNotFound or ErrConflict.
	UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, error)

	// DeleteStudentByID removes a student permanently and returns the row
	// as it was, so the caller can release its photo.
	DeleteStudentByID(ctx context.Context, id int64) (types.Student, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
