package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/doorguard/internal/config"
	"github.com/your-org/doorguard/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the vector extension and the station tables if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS access_logs (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL,
			time       TIMESTAMPTZ NOT NULL,
			image_url  TEXT NOT NULL DEFAULT '',
			success    BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS access_logs_time_idx ON access_logs (time DESC);
		CREATE TABLE IF NOT EXISTS face_encodings (
			position  INTEGER PRIMARY KEY,
			name      TEXT NOT NULL,
			embedding vector NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// --- Access log ---

// AppendAccessLog inserts one audit row. Rows are never updated.
func (s *PostgresStore) AppendAccessLog(ctx context.Context, entry *models.AccessLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_logs (id, name, time, image_url, success) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Name, entry.Time, entry.ImageURL, entry.Success)
	if err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

// RecentAccessLogs returns at most limit entries, newest first.
func (s *PostgresStore) RecentAccessLogs(ctx context.Context, limit int) ([]models.AccessLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, time, image_url, success FROM access_logs ORDER BY time DESC, created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query access logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AccessLogEntry, 0, limit)
	for rows.Next() {
		var e models.AccessLogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Time, &e.ImageURL, &e.Success); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access logs: %w", err)
	}
	return entries, nil
}

// --- Gallery ---

// PostgresGallery persists the gallery as ordered rows of face_encodings.
type PostgresGallery struct {
	store *PostgresStore
}

func NewPostgresGallery(store *PostgresStore) *PostgresGallery {
	return &PostgresGallery{store: store}
}

func (g *PostgresGallery) Load(ctx context.Context) (models.Gallery, error) {
	rows, err := g.store.pool.Query(ctx,
		`SELECT name, embedding FROM face_encodings ORDER BY position`)
	if err != nil {
		return models.Gallery{}, fmt.Errorf("query face encodings: %w", err)
	}
	defer rows.Close()

	var gal models.Gallery
	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return models.Gallery{}, fmt.Errorf("scan face encoding: %w", err)
		}
		gal.Names = append(gal.Names, name)
		gal.Encodings = append(gal.Encodings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return models.Gallery{}, fmt.Errorf("iterate face encodings: %w", err)
	}
	return gal, nil
}

// Save replaces the stored gallery in one transaction.
func (g *PostgresGallery) Save(ctx context.Context, gal models.Gallery) error {
	if err := gal.Validate(); err != nil {
		return fmt.Errorf("save gallery: %w", err)
	}

	tx, err := g.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM face_encodings`); err != nil {
		return fmt.Errorf("clear face encodings: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range gal.Names {
		batch.Queue(`INSERT INTO face_encodings (position, name, embedding) VALUES ($1, $2, $3)`,
			i, gal.Names[i], pgvector.NewVector(gal.Encodings[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert face encodings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
