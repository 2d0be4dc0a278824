// main is the entry point of the Student Records API.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, optional YAML file, environment)
//  2. Initialise the logger
//  3. Connect to the database (PostgreSQL or SQLite) and prepare the schema
//  4. Open the photo store (local directory or S3 bucket)
//  5. Register all HTTP routes and wrap them in middleware
//  6. Start the HTTP server in a separate goroutine
//  7. Block until an OS signal arrives, then shut down gracefully
//
// RUNNING THE SERVER:
//
//	go run ./cmd/student-records --config=config/local.yaml
//
// or with environment variables only:
//
//	DATABASE_URL=postgres://... go run ./cmd/student-records
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/filestore/local"
	"github.com/aanand-mishra/student-records/internal/filestore/s3"
	"github.com/aanand-mishra/student-records/internal/http/handlers/health"
	"github.com/aanand-mishra/student-records/internal/http/handlers/static"
	"github.com/aanand-mishra/student-records/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/metrics"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/storage/postgres"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"

	"github.com/rs/cors"
)

const version = "1.0.0"

const healthTimeout = 2 * time.Second

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// SetDefault routes the package-level slog calls in the handlers
	// through the same handler.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting student-records",
		slog.String("env", cfg.Env),
		slog.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Initialise Storage (Database) ──────────────────────────────────
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("driver", cfg.Database.Driver),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	log.Info("storage initialised", slog.String("driver", cfg.Database.Driver))

	// ── 4. Initialise Photo Store ─────────────────────────────────────────
	files, err := newFileStore(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise file store",
			slog.String("backend", cfg.FileStore.Backend),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	photos := filestore.NewPhotos(files, cfg.FileStore.URLPrefix, cfg.FileStore.MaxUploadBytes)

	log.Info("file store initialised",
		slog.String("backend", cfg.FileStore.Backend),
		slog.String("url_prefix", cfg.FileStore.URLPrefix))

	// ── 5. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      routes(cfg, log, storage, photos),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping server...")
	case err := <-serverErr:
		log.Error("server encountered an error", slog.String("error", err.Error()))
		storage.Close()
		os.Exit(1)
	}

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		return
	}

	log.Info("server stopped gracefully")
}

// routes builds the full handler: the route table wrapped in CORS, request
// metrics and the request middleware.
//
// Route table:
//
//	GET    /                    → service index
//	GET    /health              → database and file store status
//	GET    /metrics             → Prometheus metrics
//	POST   /api/students        → create a new student
//	GET    /api/students        → list all students
//	GET    /api/students/{id}   → get one student by ID
//	PUT    /api/students/{id}   → update a student
//	PATCH  /api/students/{id}   → update a student
//	DELETE /api/students/{id}   → delete a student
//	GET    /static/{path...}    → serve a stored photo
func routes(cfg *config.Config, log *slog.Logger, storage storage.Storage, photos *filestore.Photos) http.Handler {
	collector := metrics.NewCollector()
	router := http.NewServeMux()

	router.HandleFunc("GET /{$}", health.Index(version, cfg.FileStore.URLPrefix))
	router.HandleFunc("GET /health", health.New(version, healthTimeout, map[string]health.Pinger{
		"database":   storage,
		"file_store": photos.Backend(),
	}))
	router.Handle("GET /metrics", collector.Handler())

	router.HandleFunc("POST /api/students", student.New(storage, photos))
	router.HandleFunc("GET /api/students", student.GetList(storage, photos))
	router.HandleFunc("GET /api/students/{id}", student.GetByID(storage, photos))
	router.HandleFunc("PUT /api/students/{id}", student.Update(storage, photos))
	router.HandleFunc("PATCH /api/students/{id}", student.Update(storage, photos))
	router.HandleFunc("DELETE /api/students/{id}", student.Delete(storage, photos))

	router.HandleFunc("GET "+cfg.FileStore.URLPrefix+"{path...}", static.New(photos.Backend()))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	})

	var h http.Handler = router
	h = c.Handler(h)
	h = collector.Middleware(h)
	h = middleware.Recoverer(h)
	h = middleware.Logger(log)(h)
	h = middleware.RequestID(h)
	return h
}

// newStorage opens the configured database backend.
func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		p, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// newFileStore opens the configured photo backend.
func newFileStore(ctx context.Context, cfg *config.Config) (filestore.FileStore, error) {
	switch cfg.FileStore.Backend {
	case config.BackendS3:
		b, err := s3.New(ctx, cfg.FileStore.S3)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		l, err := local.New(cfg.FileStore.Dir)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
