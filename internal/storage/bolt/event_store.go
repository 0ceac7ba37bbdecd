package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type eventStore struct {
	db *bbolt.DB
}

func (s *eventStore) Append(ctx context.Context, events ...storage.RawEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketEvents))
		if bucket == nil {
			return fmt.Errorf("event bucket missing")
		}
		for _, event := range events {
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now().UTC()
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			event.Seq = seq
			data, err := marshal(event)
			if err != nil {
				return err
			}
			if err := bucket.Put(eventKey(event.Timestamp, seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *eventStore) Query(ctx context.Context, from, to time.Time) ([]storage.RawEvent, error) {
	events := make([]storage.RawEvent, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketEvents))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(eventKey(from, 0)); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var event storage.RawEvent
			if err := unmarshal(v, &event); err != nil {
				return err
			}
			if !event.Timestamp.Before(to) {
				break
			}
			if event.Timestamp.Before(from) {
				continue
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *eventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	limit := eventKey(cutoff, 0)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketEvents))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && string(k) < string(limit); k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
