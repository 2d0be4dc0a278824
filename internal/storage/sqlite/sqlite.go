// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// SQLite stores everything in a single file on disk: no network, no
// separate server process. It backs local development and single-node
// deployments; production uses the postgres package.
//
// Importing github.com/mattn/go-sqlite3 registers the "sqlite3" driver
// with database/sql; the package is also used to inspect constraint errors.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	"github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id         INTEGER  PRIMARY KEY AUTOINCREMENT,
		full_name  TEXT     NOT NULL,
		email      TEXT     NOT NULL,
		phone      TEXT,
		age        INTEGER  CHECK (age >= 0),
		photo_path TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS students_email_key ON students (email);
`

// Explicitly list columns; the order must match scanStudent.
const studentColumns = "id, full_name, email, phone, age, photo_path, created_at, updated_at"

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
type SQLite struct {
	Db      *sql.DB
	timeout time.Duration
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the SQLite database at cfg.Database.Path, creates the
// students table if it does not already exist, and returns a ready-to-use
// *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	path := cfg.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// SQLite allows a single writer. One connection serialises statements
	// instead of surfacing SQLITE_BUSY, and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.QueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db, timeout: cfg.Database.QueryTimeout}, nil
}

// CreateStudent inserts a new row and re-reads it so the caller gets the
// defaults the database filled in.
func (s *SQLite) CreateStudent(ctx context.Context, student types.NewStudent) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.Db.ExecContext(ctx,
		"INSERT INTO students (full_name, email, phone, age, photo_path) VALUES (?, ?, ?, ?, ?)",
		student.FullName, student.Email, student.Phone, student.Age, student.PhotoPath,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: exec: %w", mapError(err))
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	return getStudent(ctx, s.Db, lastID)
}

// GetStudentByID fetches exactly one student row matched by primary key.
func (s *SQLite) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return getStudent(ctx, s.Db, id)
}

// GetStudents returns all student rows ordered by id.
func (s *SQLite) GetStudents(ctx context.Context) ([]types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.Db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", err)
	}
	defer rows.Close()

	// Returning [] instead of null in JSON is better API behaviour.
	students := make([]types.Student, 0)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetStudents: scan row: %w", err)
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetStudents: rows iteration: %w", err)
	}

	return students, nil
}

// UpdateStudentByID applies the non-nil patch fields. COALESCE keeps the
// stored value wherever the argument is NULL.
func (s *SQLite) UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.Db.ExecContext(ctx, `
		UPDATE students SET
			full_name  = COALESCE(?, full_name),
			email      = COALESCE(?, email),
			phone      = COALESCE(?, phone),
			age        = COALESCE(?, age),
			photo_path = COALESCE(?, photo_path),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		patch.FullName, patch.Email, patch.Phone, patch.Age, patch.PhotoPath, id,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentByID: exec: %w", mapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentByID: rows affected: %w", err)
	}
	if affected == 0 {
		return types.Student{}, fmt.Errorf("UpdateStudentByID: id %d: %w", id, storage.ErrNotFound)
	}

	// Re-fetch the record so we return exactly what is stored in the DB.
	return getStudent(ctx, s.Db, id)
}

// DeleteStudentByID removes a student row by primary key, returning the
// row as it was before deletion.
func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return types.Student{}, fmt.Errorf("DeleteStudentByID: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	student, err := getStudent(ctx, tx, id)
	if err != nil {
		return types.Student{}, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id); err != nil {
		return types.Student{}, fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Student{}, fmt.Errorf("DeleteStudentByID: commit: %w", err)
	}
	return student, nil
}

// Ping checks the database file is still usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

// Close closes the underlying *sql.DB.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

func getStudent(ctx context.Context, q queryer, id int64) (types.Student, error) {
	row := q.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ? LIMIT 1", id)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("GetStudentByID: scan: %w", err)
	}
	return student, nil
}

// scanStudent reads the columns of studentColumns in order. Nullable
// columns scan into pointer fields; database/sql leaves them nil on NULL.
func scanStudent(row interface{ Scan(dest ...any) error }) (types.Student, error) {
	var student types.Student
	err := row.Scan(
		&student.ID,
		&student.FullName,
		&student.Email,
		&student.Phone,
		&student.Age,
		&student.PhotoPath,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	return student, err
}

// mapError turns a unique-index violation into storage.ErrConflict.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return storage.ErrConflict
	}
	return err
}
