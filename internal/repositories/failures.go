package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
)

// DownloadFailureRepository tracks items that failed to download across cycles.
type DownloadFailureRepository struct {
	db *sql.DB
}

// NewDownloadFailureRepository creates a new DownloadFailureRepository with the given database connection
func NewDownloadFailureRepository(db *sql.DB) *DownloadFailureRepository {
	return &DownloadFailureRepository{db: db}
}

// Record counts one more failed attempt for fullID.
func (r *DownloadFailureRepository) Record(fullID string, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	query := `
		INSERT INTO download_failures (full_id, attempts, last_error, last_attempt_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(full_id) DO UPDATE SET
			attempts = attempts + 1,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at
	`

	if _, err := r.db.Exec(query, fullID, msg, at.UTC()); err != nil {
		return fmt.Errorf("failed to record download failure: %w", err)
	}
	return nil
}

// Clear forgets past failures once an item downloads successfully.
func (r *DownloadFailureRepository) Clear(fullID string) error {
	if _, err := r.db.Exec(`DELETE FROM download_failures WHERE full_id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to clear download failure: %w", err)
	}
	return nil
}

// List returns failures, most attempted first.
func (r *DownloadFailureRepository) List() ([]models.DownloadFailure, error) {
	query := `
		SELECT full_id, attempts, last_error, last_attempt_at
		FROM download_failures
		ORDER BY attempts DESC, full_id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list download failures: %w", err)
	}
	defer rows.Close()

	var out []models.DownloadFailure
	for rows.Next() {
		var f models.DownloadFailure
		if err := rows.Scan(&f.FullID, &f.Attempts, &f.LastError, &f.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("failed to scan download failure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download failures: %w", err)
	}
	return out, nil
}
