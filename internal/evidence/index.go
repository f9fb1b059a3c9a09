package evidence

import (
	"context"
	_ "embed"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// version this binary expects.
var ErrSchemaMismatch = errors.New("evidence: schema version mismatch")

// Index is the SQLite-backed evidence index: an append-only, queryable
// structured index alongside the flat WAV/JSON artifacts.
type Index struct {
	db *sql.DB
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OpenIndex opens (creating if absent) evidence.db inside dir.
func OpenIndex(dir string) (*Index, error) {
	dbPath := filepath.Join(dir, "evidence.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("evidence: open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("evidence: apply pragma %q: %w", pragma, execErr)
		}
	}
	idx := &Index{db: db}
	if err := idx.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

func (idx *Index) initSchema(ctx context.Context) error {
	var tableExists int
	err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("evidence: check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return idx.createSchema(ctx)
	}
	var version int
	if err := idx.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("evidence: read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (idx *Index) createSchema(ctx context.Context) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("evidence: begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("evidence: create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("evidence: record schema version: %w", err)
	}
	return tx.Commit()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Append inserts entry, the last step in the recorder's durable write
// sequence: audio and sidecar must already be on disk.
func (idx *Index) Append(ctx context.Context, entry IndexEntry) (int64, error) {
	var result sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		result, execErr = idx.db.ExecContext(ctx, `
			INSERT INTO evidence_records (
				filename, timestamp_utc, duration_seconds, peak_probability,
				bark_count_in_clip, top_label, dog_id, fingerprint_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.Filename,
			entry.TimestampUTC.UTC().Format(time.RFC3339Nano),
			entry.DurationSeconds,
			entry.PeakProbability,
			entry.BarkCountInClip,
			entry.TopLabel,
			nullableString(entry.DogID),
			nullableString(entry.FingerprintID),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("evidence: append index entry: %w", err)
	}
	return result.LastInsertId()
}

// UpdateClip rewrites the mutable fields of an in-progress clip (duration,
// peak_probability, bark_count_in_clip) as later events merge into it.
func (idx *Index) UpdateClip(ctx context.Context, id int64, durationSeconds, peakProbability float64, barkCount int) error {
	return retryOnBusy(ctx, func() error {
		_, err := idx.db.ExecContext(ctx, `
			UPDATE evidence_records
			SET duration_seconds = ?, peak_probability = ?, bark_count_in_clip = ?
			WHERE id = ?`,
			durationSeconds, peakProbability, barkCount, id,
		)
		return err
	})
}

// ByDate returns entries whose timestamp falls within [start, end).
func (idx *Index) ByDate(ctx context.Context, start, end time.Time) ([]IndexEntry, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, filename, timestamp_utc, duration_seconds, peak_probability,
		       bark_count_in_clip, top_label, dog_id, fingerprint_id
		FROM evidence_records
		WHERE timestamp_utc >= ? AND timestamp_utc < ?
		ORDER BY timestamp_utc ASC`,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("evidence: query by date: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByDogID returns entries attributed to dogID.
func (idx *Index) ByDogID(ctx context.Context, dogID string) ([]IndexEntry, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, filename, timestamp_utc, duration_seconds, peak_probability,
		       bark_count_in_clip, top_label, dog_id, fingerprint_id
		FROM evidence_records
		WHERE dog_id = ?
		ORDER BY timestamp_utc ASC`,
		dogID,
	)
	if err != nil {
		return nil, fmt.Errorf("evidence: query by dog_id: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the most recently recorded entries, newest first, capped
// at limit.
func (idx *Index) Recent(ctx context.Context, limit int) ([]IndexEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, filename, timestamp_utc, duration_seconds, peak_probability,
		       bark_count_in_clip, top_label, dog_id, fingerprint_id
		FROM evidence_records
		ORDER BY timestamp_utc DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("evidence: query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByFingerprint returns the entry matching fingerprintID, if any.
func (idx *Index) ByFingerprint(ctx context.Context, fingerprintID string) (IndexEntry, bool, error) {
	row := idx.db.QueryRowContext(ctx, `
		SELECT id, filename, timestamp_utc, duration_seconds, peak_probability,
		       bark_count_in_clip, top_label, dog_id, fingerprint_id
		FROM evidence_records
		WHERE fingerprint_id = ?`,
		fingerprintID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("evidence: query by fingerprint: %w", err)
	}
	return entry, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (IndexEntry, error) {
	var e IndexEntry
	var ts string
	var dogID, fpID sql.NullString
	if err := row.Scan(&e.ID, &e.Filename, &ts, &e.DurationSeconds, &e.PeakProbability, &e.BarkCountInClip, &e.TopLabel, &dogID, &fpID); err != nil {
		return IndexEntry{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("evidence: parse timestamp: %w", err)
	}
	e.TimestampUTC = parsed
	e.DogID = dogID.String
	e.FingerprintID = fpID.String
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]IndexEntry, error) {
	var out []IndexEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
