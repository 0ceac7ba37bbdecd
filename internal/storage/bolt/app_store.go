package bolt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type appStore struct {
	db *bbolt.DB
}

func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if app.Key == "" {
		return fmt.Errorf("app key is required")
	}
	app.UpdatedAt = time.Now().UTC()
	return putBucketValue(ctx, s.db, bucketApps, app.Key, app)
}

func (s *appStore) Get(ctx context.Context, key string) (*storage.App, error) {
	return getBucketValue[storage.App](ctx, s.db, bucketApps, key)
}

func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	apps, err := listBucket[storage.App](ctx, s.db, bucketApps)
	if err != nil {
		return nil, err
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Key < apps[j].Key })
	return apps, nil
}
