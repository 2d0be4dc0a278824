// Package postgres implements storage.Storage on PostgreSQL using a pgx
// connection pool. Every operation borrows one pooled connection for a
// single statement and returns it before the call completes.
//
// The schema is kept as versioned SQL files under migrations/, embedded
// into the binary and applied with golang-migrate when the store opens.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// uniqueViolation is the SQLSTATE for a unique index violation.
const uniqueViolation = "23505"

const studentColumns = "id, full_name, email, phone, age, photo_path, created_at, updated_at"

// Postgres is the PostgreSQL implementation of storage.Storage.
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// New migrates the database to the latest schema version, opens the
// connection pool and verifies it with a ping.
func New(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	if err := Migrate(cfg.Database.URL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.QueryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Postgres{pool: pool, timeout: cfg.Database.QueryTimeout}, nil
}

// Migrate applies every pending up migration. An already current schema
// is not an error.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: open source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("migrate: connect: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the pgx5:// scheme the
// golang-migrate pgx/v5 driver registers under.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

func (p *Postgres) CreateStudent(ctx context.Context, student types.NewStudent) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	row := p.pool.QueryRow(ctx, `
		INSERT INTO students (full_name, email, phone, age, photo_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+studentColumns,
		student.FullName, student.Email, student.Phone, student.Age, student.PhotoPath,
	)

	created, err := scanStudent(row)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", mapError(err))
	}
	return created, nil
}

func (p *Postgres) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	row := p.pool.QueryRow(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id)

	student, err := scanStudent(row)
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID %d: %w", id, mapError(err))
	}
	return student, nil
}

func (p *Postgres) GetStudents(ctx context.Context) ([]types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, "SELECT "+studentColumns+" FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", err)
	}

	students, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Student, error) {
		return scanStudent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("GetStudents: collect: %w", err)
	}
	if students == nil {
		students = []types.Student{}
	}
	return students, nil
}

// UpdateStudentByID applies the non-nil patch fields in one statement.
// COALESCE keeps the stored value wherever the parameter is NULL.
func (p *Postgres) UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	row := p.pool.QueryRow(ctx, `
		UPDATE students SET
			full_name  = COALESCE($2, full_name),
			email      = COALESCE($3, email),
			phone      = COALESCE($4, phone),
			age        = COALESCE($5, age),
			photo_path = COALESCE($6, photo_path),
			updated_at = now()
		WHERE id = $1
		RETURNING `+studentColumns,
		id, patch.FullName, patch.Email, patch.Phone, patch.Age, patch.PhotoPath,
	)

	updated, err := scanStudent(row)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentByID %d: %w", id, mapError(err))
	}
	return updated, nil
}

func (p *Postgres) DeleteStudentByID(ctx context.Context, id int64) (types.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	row := p.pool.QueryRow(ctx, "DELETE FROM students WHERE id = $1 RETURNING "+studentColumns, id)

	deleted, err := scanStudent(row)
	if err != nil {
		return types.Student{}, fmt.Errorf("DeleteStudentByID %d: %w", id, mapError(err))
	}
	return deleted, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close gracefully closes the pool. It always returns nil; the error
// result satisfies storage.Storage.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanStudent(row pgx.Row) (types.Student, error) {
	var s types.Student
	err := row.Scan(
		&s.ID,
		&s.FullName,
		&s.Email,
		&s.Phone,
		&s.Age,
		&s.PhotoPath,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// mapError translates driver errors into the storage sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}
