package redis

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

type exclusionStore struct {
	client *redis.Client
}

// List returns the excluded app keys in sorted order
func (s *exclusionStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, exclusionsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Add excludes app keys and notifies subscribers in the same transaction
func (s *exclusionStore) Add(ctx context.Context, appKeys ...string) error {
	members := nonEmpty(appKeys)
	if len(members) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, exclusionsKey, members...)
		pipe.Publish(ctx, exclusionsChannel, "add")
		return nil
	})
	return err
}

// Remove re-includes app keys and notifies subscribers
func (s *exclusionStore) Remove(ctx context.Context, appKeys ...string) error {
	members := nonEmpty(appKeys)
	if len(members) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, exclusionsKey, members...)
		pipe.Publish(ctx, exclusionsChannel, "remove")
		return nil
	})
	return err
}

// Changes relays change notifications published by any process. The
// subscription survives redis outages: go-redis reconnects and resubscribes
// in the background, and every confirmed (re)subscription is relayed as a
// change because publications may have been missed while disconnected.
func (s *exclusionStore) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	pubsub := s.client.Subscribe(ctx, exclusionsChannel)
	messages := pubsub.ChannelWithSubscriptions()

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if sub, isSub := msg.(*redis.Subscription); isSub && sub.Kind != "subscribe" {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}

func nonEmpty(keys []string) []interface{} {
	members := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			members = append(members, key)
		}
	}
	return members
}
