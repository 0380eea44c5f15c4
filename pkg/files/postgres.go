package files

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresConfig holds configuration for the PostgreSQL file store
type PostgresConfig struct {
	ConnectionString string
	MaxConnections   int32
	ConnectTimeout   time.Duration
}

// PostgresStore is a Store backed by PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	config *PostgresConfig
}

// NewPostgresStore opens a connection pool, applies pending migrations and
// returns a ready store.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		return nil, fmt.Errorf("postgres config is required")
	}
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = config.MaxConnections
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		pool:   pool,
		config: config,
	}

	if err := store.migrateToLatest(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return store, nil
}

// migrateToLatest applies all pending embedded migrations
func (s *PostgresStore) migrateToLatest() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	migrationDB, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer migrationDB.Close()

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

const fileColumns = `id, filename, original_filename, file_path, file_size, mime_type,
	file_hash, owner_id, owner_username, parent_directory, is_directory, is_public,
	tags, metadata, download_count, created_at, updated_at`

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(
		&f.ID, &f.Filename, &f.OriginalFilename, &f.FilePath, &f.FileSize, &f.MimeType,
		&f.FileHash, &f.OwnerID, &f.OwnerUsername, &f.ParentDirectory, &f.IsDirectory,
		&f.IsPublic, &f.Tags, &f.Metadata, &f.DownloadCount, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Get returns a file record by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*File, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id)

	f, err := scanFile(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return f, nil
}

// Put inserts or replaces a file record
func (s *PostgresStore) Put(ctx context.Context, f *File) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			original_filename = EXCLUDED.original_filename,
			file_path = EXCLUDED.file_path,
			file_size = EXCLUDED.file_size,
			mime_type = EXCLUDED.mime_type,
			file_hash = EXCLUDED.file_hash,
			owner_id = EXCLUDED.owner_id,
			owner_username = EXCLUDED.owner_username,
			parent_directory = EXCLUDED.parent_directory,
			is_directory = EXCLUDED.is_directory,
			is_public = EXCLUDED.is_public,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			download_count = EXCLUDED.download_count,
			updated_at = EXCLUDED.updated_at`,
		f.ID, f.Filename, f.OriginalFilename, f.FilePath, f.FileSize, f.MimeType,
		f.FileHash, f.OwnerID, f.OwnerUsername, f.ParentDirectory, f.IsDirectory,
		f.IsPublic, f.Tags, f.Metadata, f.DownloadCount, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// Delete removes a file record
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns all file records
func (s *PostgresStore) List(ctx context.Context) ([]*File, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files`)
}

// ListByOwner returns file records owned by the given user
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*File, error) {
	return s.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner_id = $1`, ownerID)
}

// ListPublic returns all file records marked public
func (s *PostgresStore) ListPublic(ctx context.Context) ([]*File, error) {
	return s.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE is_public`)
}

// ListByDirectory returns file records under the given parent directory.
// With an empty ownerID only public records are returned.
func (s *PostgresStore) ListByDirectory(ctx context.Context, ownerID, parentDirectory string) ([]*File, error) {
	if ownerID == "" {
		return s.queryFiles(ctx,
			`SELECT `+fileColumns+` FROM files WHERE is_public AND parent_directory = $1`,
			parentDirectory)
	}
	return s.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner_id = $1 AND parent_directory = $2`,
		ownerID, parentDirectory)
}

func (s *PostgresStore) queryFiles(ctx context.Context, query string, args ...interface{}) ([]*File, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file rows: %w", err)
	}
	return out, nil
}

// Stats returns aggregate counts over the store
func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
	var stats StoreStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(file_size), 0),
			COUNT(*) FILTER (WHERE is_directory),
			COUNT(*) FILTER (WHERE is_public)
		FROM files`).Scan(
		&stats.TotalFiles, &stats.TotalBytes, &stats.Directories, &stats.PublicFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &stats, nil
}

// Ping verifies database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
