package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

type appStore struct {
	db *sql.DB
}

func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if app.Key == "" {
		return fmt.Errorf("app key is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (key, label, system, launchable, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			label = excluded.label,
			system = excluded.system,
			launchable = excluded.launchable,
			updated_at = excluded.updated_at
	`, app.Key, app.Label, app.System, app.Launchable, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *appStore) Get(ctx context.Context, key string) (*storage.App, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, label, system, launchable, updated_at FROM apps WHERE key = ?`, key)
	app, err := scanApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return app, err
}

func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, label, system, launchable, updated_at FROM apps ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	apps := make([]storage.App, 0)
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func scanApp(row scanner) (*storage.App, error) {
	var (
		app       storage.App
		updatedAt string
	)
	if err := row.Scan(&app.Key, &app.Label, &app.System, &app.Launchable, &updatedAt); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	app.UpdatedAt = parsed
	return &app, nil
}
