package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) UpsertDailyUsage(ctx context.Context, date string, durationMillis int64) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (date, duration_ms, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`, date, durationMillis, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date string) (*storage.DailyUsage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date, duration_ms, updated_at FROM daily_usage WHERE date = ?`, date)
	usage, err := scanDailyUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return usage, err
}

func (s *usageStore) ListDailyUsage(ctx context.Context, limit int) ([]storage.DailyUsage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, duration_ms, updated_at FROM daily_usage ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	usages := make([]storage.DailyUsage, 0)
	for rows.Next() {
		usage, err := scanDailyUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, *usage)
	}
	return usages, rows.Err()
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := time.Parse("2006-01-02", cutoffDate); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	return int(deleted), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDailyUsage(row scanner) (*storage.DailyUsage, error) {
	var (
		usage     storage.DailyUsage
		updatedAt string
	)
	if err := row.Scan(&usage.Date, &usage.DurationMillis, &updatedAt); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	usage.UpdatedAt = parsed
	return &usage, nil
}
