package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xorcare/pointer"
)

var _ storage.Storage = (*Postgres)(nil)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/students?sslmode=disable", "pgx5://u:p@db:5432/students?sslmode=disable"},
		{"postgresql://db/students", "pgx5://db/students"},
		{"pgx5://db/students", "pgx5://db/students"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}

// newTestStore starts a throwaway PostgreSQL container with dockertest.
// The test is skipped when Docker is not reachable or -short is set.
func newTestStore(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in -short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}
	pool.MaxWait = 90 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=students",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "could not start postgres")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := &config.Config{Database: config.Database{
		Driver:       config.DriverPostgres,
		URL:          fmt.Sprintf("postgres://postgres:secret@%s/students?sslmode=disable", resource.GetHostPort("5432/tcp")),
		MaxConns:     4,
		QueryTimeout: 5 * time.Second,
	}}

	var store *Postgres
	err = pool.Retry(func() error {
		s, err := New(context.Background(), cfg)
		if err != nil {
			return err
		}
		store = s
		return nil
	})
	require.NoError(t, err, "could not connect to postgres")
	t.Cleanup(func() { _ = store.Close() })

	// Running the migrations a second time is a no-op.
	require.NoError(t, Migrate(cfg.Database.URL))

	return store
}

func TestPostgresStorage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		all, err := s.GetStudents(ctx)
		require.NoError(t, err)
		require.NotNil(t, all)
		assert.Empty(t, all)
	})

	var ana types.Student

	t.Run("create and get", func(t *testing.T) {
		var err error
		ana, err = s.CreateStudent(ctx, types.NewStudent{
			FullName: "Ana Gomez",
			Email:    "ana@example.com",
			Phone:    pointer.String("555-1234"),
			Age:      pointer.Int(21),
		})
		require.NoError(t, err)
		assert.Positive(t, ana.ID)

		got, err := s.GetStudentByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, ana.FullName, got.FullName)
		assert.Equal(t, ana.Email, got.Email)
		require.NotNil(t, got.Phone)
		assert.Equal(t, "555-1234", *got.Phone)
		require.NotNil(t, got.Age)
		assert.Equal(t, 21, *got.Age)
		assert.Nil(t, got.PhotoPath)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := s.CreateStudent(ctx, types.NewStudent{FullName: "Copy", Email: "ana@example.com"})
		require.ErrorIs(t, err, storage.ErrConflict)

		got, err := s.GetStudentByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana Gomez", got.FullName)
	})

	t.Run("update", func(t *testing.T) {
		updated, err := s.UpdateStudentByID(ctx, ana.ID, types.StudentPatch{
			Email:     pointer.String("ana@example.com"),
			PhotoPath: pointer.String("abc.png"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Ana Gomez", updated.FullName)
		require.NotNil(t, updated.PhotoPath)
		assert.Equal(t, "abc.png", *updated.PhotoPath)
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})

	t.Run("update conflict and missing", func(t *testing.T) {
		bo, err := s.CreateStudent(ctx, types.NewStudent{FullName: "Bo", Email: "bo@example.com"})
		require.NoError(t, err)

		_, err = s.UpdateStudentByID(ctx, bo.ID, types.StudentPatch{Email: pointer.String("ana@example.com")})
		require.ErrorIs(t, err, storage.ErrConflict)

		_, err = s.UpdateStudentByID(ctx, 1_000_000, types.StudentPatch{FullName: pointer.String("x")})
		require.ErrorIs(t, err, storage.ErrNotFound)

		all, err := s.GetStudents(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Less(t, all[0].ID, all[1].ID)
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := s.DeleteStudentByID(ctx, ana.ID)
		require.NoError(t, err)
		require.NotNil(t, deleted.PhotoPath)
		assert.Equal(t, "abc.png", *deleted.PhotoPath)

		_, err = s.GetStudentByID(ctx, ana.ID)
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.DeleteStudentByID(ctx, ana.ID)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})
}
