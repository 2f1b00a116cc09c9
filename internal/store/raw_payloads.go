package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload is a stored response body.
type RawPayload struct {
	ID                int64
	FetchRunID        sql.NullInt64
	FetchedAt         time.Time
	Operation         string
	PayloadCompressed []byte
	PayloadHash       string
	SchemaVersion     int
}

// PayloadHash is the hex sha256 used to deduplicate payloads.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreRawPayload stores a compressed response body.
// Returns the payload ID, or 0 if the payload was a duplicate (same hash).
func (s *Store) StoreRawPayload(ctx context.Context, runID *int64, operation string, payload []byte) (int64, error) {
	return s.storeRawPayloadAt(ctx, runID, operation, payload, time.Now().UTC())
}

func (s *Store) storeRawPayloadAt(ctx context.Context, runID *int64, operation string, payload []byte, fetchedAt time.Time) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	var fetchRunID sql.NullInt64
	if runID != nil {
		fetchRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads
		(fetch_run_id, fetched_at, operation, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, fetchRunID, fetchedAt, operation, buf.Bytes(), PayloadHash(payload))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

func (s *Store) GetRawPayloadByHash(ctx context.Context, hash string) (*RawPayload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fetch_run_id, fetched_at, operation, payload_compressed, payload_hash, schema_version
		FROM raw_payloads WHERE payload_hash = ?
	`, hash)

	var p RawPayload
	err := row.Scan(&p.ID, &p.FetchRunID, &p.FetchedAt, &p.Operation, &p.PayloadCompressed, &p.PayloadHash, &p.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type RawPayloadStats struct {
	TotalCount       int
	TotalSizeBytes   int64
	CountByOperation map[string]int
	SizeByOperation  map[string]int64
}

func (s *Store) GetRawPayloadStats(ctx context.Context) (*RawPayloadStats, error) {
	stats := &RawPayloadStats{
		CountByOperation: make(map[string]int),
		SizeByOperation:  make(map[string]int64),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0)
		FROM raw_payloads
	`)
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM raw_payloads
		GROUP BY operation
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var op string
		var count int
		var size int64
		if err := rows.Scan(&op, &count, &size); err != nil {
			return nil, err
		}
		stats.CountByOperation[op] = count
		stats.SizeByOperation[op] = size
	}
	return stats, rows.Err()
}

// CleanupOldRawPayloads deletes raw payloads older than the specified number of days.
// Returns the number of deleted records.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_payloads
		WHERE fetched_at < DATE('now', '-' || ? || ' days')
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
