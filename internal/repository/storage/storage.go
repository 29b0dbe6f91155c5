// Package storage keeps the conversion_jobs ledger in Postgres.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

// Start inserts a started row for the job and returns its id.
func (s *dbStorage) Start(ctx context.Context, job entities.Job) (int64, error) {
	var id int64
	err := s.dbpool.QueryRow(ctx, `
		INSERT INTO conversion_jobs (idempotency_key, file_id, chat_id, message_id, file_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		job.IdempotencyKey(), job.FileID, job.ChatID, job.MessageID, job.DisplayName(), entities.JobStarted,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Finish stores the final status, sizes and timings of a job.
func (s *dbStorage) Finish(ctx context.Context, rec entities.JobRecord) error {
	tag, err := s.dbpool.Exec(ctx, `
		UPDATE conversion_jobs
		SET status = $2, in_bytes = $3, out_bytes = $4,
		    download_ms = $5, convert_ms = $6, upload_ms = $7, total_ms = $8,
		    archive_key = $9, error = $10, updated_at = now()
		WHERE id = $1`,
		rec.ID, rec.Status, rec.InBytes, rec.OutBytes,
		rec.DownloadMS, rec.ConvertMS, rec.UploadMS, rec.TotalMS,
		rec.ArchiveKey, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %d: %w", rec.ID, pgx.ErrNoRows)
	}
	return nil
}

// Recent lists the latest jobs for a key, newest first.
func (s *dbStorage) Recent(ctx context.Context, key string, limit int) ([]entities.JobRecord, error) {
	rows, err := s.dbpool.Query(ctx, `
		SELECT id, idempotency_key, file_id, chat_id, message_id, file_name, status,
		       in_bytes, out_bytes, download_ms, convert_ms, upload_ms, total_ms,
		       archive_key, error, created_at, updated_at
		FROM conversion_jobs
		WHERE idempotency_key = $1
		ORDER BY id DESC
		LIMIT $2`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[entities.JobRecord])
}
