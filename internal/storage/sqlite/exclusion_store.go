package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

type exclusionStore struct {
	db           *sql.DB
	changes      *storage.Broadcaster
	pollInterval time.Duration
}

func (s *exclusionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT app_key FROM exclusions ORDER BY app_key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *exclusionStore) Add(ctx context.Context, appKeys ...string) error {
	return s.modify(ctx, `INSERT OR IGNORE INTO exclusions (app_key) VALUES (?)`, appKeys)
}

func (s *exclusionStore) Remove(ctx context.Context, appKeys ...string) error {
	return s.modify(ctx, `DELETE FROM exclusions WHERE app_key = ?`, appKeys)
}

// modify applies stmt to every key and bumps the revision when rows changed.
func (s *exclusionStore) modify(ctx context.Context, stmt string, appKeys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var changed int64
	for _, key := range appKeys {
		if key == "" {
			continue
		}
		result, err := tx.ExecContext(ctx, stmt, key)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		changed += n
	}

	if changed == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE revisions SET value = value + 1 WHERE name = 'exclusions'`); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.changes.Notify()
	return nil
}

func (s *exclusionStore) revision(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM revisions WHERE name = 'exclusions'`).Scan(&value)
	return value, err
}

// Changes combines in-process notifications with polling of the revision
// counter, so edits made by another process are observed too.
func (s *exclusionStore) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	local := s.changes.Subscribe(ctx)

	signal := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)

		last, _ := s.revision(ctx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-local:
				if !ok {
					return
				}
				if rev, err := s.revision(ctx); err == nil {
					last = rev
				}
				signal()
			case <-ticker.C:
				rev, err := s.revision(ctx)
				if err != nil || rev == last {
					continue
				}
				last = rev
				signal()
			}
		}
	}()

	return out
}
