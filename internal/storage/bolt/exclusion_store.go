package bolt

import (
	"context"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type exclusionStore struct {
	db      *bbolt.DB
	changes *storage.Broadcaster
}

type exclusionRecord struct {
	AppKey    string    `json:"app"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *exclusionStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketExclusions))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *exclusionStore) Add(ctx context.Context, appKeys ...string) error {
	changed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketExclusions))
		for _, key := range appKeys {
			if key == "" || b.Get([]byte(key)) != nil {
				continue
			}
			data, err := marshal(exclusionRecord{AppKey: key, CreatedAt: time.Now().UTC()})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err == nil && changed {
		s.changes.Notify()
	}
	return err
}

func (s *exclusionStore) Remove(ctx context.Context, appKeys ...string) error {
	changed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketExclusions))
		for _, key := range appKeys {
			if key == "" || b.Get([]byte(key)) == nil {
				continue
			}
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err == nil && changed {
		s.changes.Notify()
	}
	return err
}

func (s *exclusionStore) Changes(ctx context.Context) <-chan struct{} {
	return s.changes.Subscribe(ctx)
}
