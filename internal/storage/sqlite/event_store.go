package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

type eventStore struct {
	db *sql.DB
}

func (s *eventStore) Append(ctx context.Context, events ...storage.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (ts_ns, package, type, class) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			event.Timestamp.UnixNano(), event.AppKey, event.Type, event.Class); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *eventStore) Query(ctx context.Context, from, to time.Time) ([]storage.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts_ns, package, type, COALESCE(class, '')
		FROM events
		WHERE ts_ns >= ? AND ts_ns < ?
		ORDER BY ts_ns, seq
	`, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := make([]storage.RawEvent, 0)
	for rows.Next() {
		var (
			event storage.RawEvent
			ts    int64
		)
		if err := rows.Scan(&event.Seq, &ts, &event.AppKey, &event.Type, &event.Class); err != nil {
			return nil, err
		}
		event.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *eventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	return int(deleted), err
}
