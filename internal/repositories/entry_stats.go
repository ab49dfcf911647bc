package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// EntryStatsRepository persists play and rating statistics per cached entry.
//
// Rows are keyed by composite key and removed when the entry is evicted.
type EntryStatsRepository struct {
	db *sql.DB
}

// NewEntryStatsRepository creates a new EntryStatsRepository with the given database connection
func NewEntryStatsRepository(db *sql.DB) *EntryStatsRepository {
	return &EntryStatsRepository{db: db}
}

// RecordDownload upserts the row for a freshly committed entry.
//
// Play statistics survive a re-download of the same key.
func (r *EntryStatsRepository) RecordDownload(fullID string, tier models.Tier, at time.Time) error {
	query := `
		INSERT INTO entry_stats (full_id, tier, downloaded_at, play_count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(full_id) DO UPDATE SET tier = excluded.tier, downloaded_at = excluded.downloaded_at
	`

	if _, err := r.db.Exec(query, fullID, string(tier), at.UTC()); err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// RecordPlay increments the play count and sets the last played time.
//
// Entries cached before statistics existed get a row on first play.
func (r *EntryStatsRepository) RecordPlay(fullID string, at time.Time) error {
	item, err := models.ParseFullID(fullID)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidItem, err)
	}

	query := `
		INSERT INTO entry_stats (full_id, tier, downloaded_at, play_count, last_played_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(full_id) DO UPDATE SET play_count = play_count + 1, last_played_at = excluded.last_played_at
	`

	if _, err := r.db.Exec(query, fullID, string(item.Tier()), at.UTC(), at.UTC()); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// SetRating stores the latest vote value for an entry.
func (r *EntryStatsRepository) SetRating(fullID string, rating int) error {
	result, err := r.db.Exec(`UPDATE entry_stats SET rating = ? WHERE full_id = ?`, rating, fullID)
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	return checkAffected(result, shared.ErrEntryNotFound, fullID)
}

// Get retrieves the statistics row for fullID.
func (r *EntryStatsRepository) Get(fullID string) (*models.EntryStats, error) {
	query := `
		SELECT full_id, downloaded_at, play_count, last_played_at, rating
		FROM entry_stats
		WHERE full_id = ?
	`

	stats, err := scanStats(r.db.QueryRow(query, fullID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrEntryNotFound, fullID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry stats: %w", err)
	}
	return stats, nil
}

// List returns every row, most played first.
func (r *EntryStatsRepository) List() ([]models.EntryStats, error) {
	query := `
		SELECT full_id, downloaded_at, play_count, last_played_at, rating
		FROM entry_stats
		ORDER BY play_count DESC, full_id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry stats: %w", err)
	}
	defer rows.Close()

	var out []models.EntryStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry stats: %w", err)
		}
		out = append(out, *stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry stats: %w", err)
	}
	return out, nil
}

// Delete removes the rows for evicted entries.
func (r *EntryStatsRepository) Delete(fullIDs ...string) error {
	if len(fullIDs) == 0 {
		return nil
	}

	args := make([]any, len(fullIDs))
	for i, id := range fullIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM entry_stats WHERE full_id IN (%s)`, placeholders(len(fullIDs)))
	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete entry stats: %w", err)
	}
	return nil
}

// DeleteAll clears the table.
func (r *EntryStatsRepository) DeleteAll() error {
	if _, err := r.db.Exec(`DELETE FROM entry_stats`); err != nil {
		return fmt.Errorf("failed to clear entry stats: %w", err)
	}
	return nil
}

// Count returns the number of rows.
func (r *EntryStatsRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM entry_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entry stats: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(row scanner) (*models.EntryStats, error) {
	var (
		stats      models.EntryStats
		lastPlayed sql.NullTime
		rating     sql.NullInt64
	)

	if err := row.Scan(&stats.FullID, &stats.DownloadedAt, &stats.PlayCount, &lastPlayed, &rating); err != nil {
		return nil, err
	}

	stats.LastPlayedAt = nullTime(lastPlayed)
	if rating.Valid {
		v := int(rating.Int64)
		stats.Rating = &v
	}
	return &stats, nil
}
