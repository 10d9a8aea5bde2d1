package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

const (
	redisSnapshotPrefix = "warmup:snapshot:"
	redisInstancesKey   = "warmup:instances"
)

// RedisStore keeps one JSON snapshot per instance plus a set of instance
// names.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func snapshotKey(name string) string { return redisSnapshotPrefix + name }

// Save writes the snapshot and registers the instance name.
func (s *RedisStore) Save(ctx context.Context, snap warmup.InstanceSnapshot) error {
	name := snap.Config.InstanceName
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", name, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(name), data, 0)
	pipe.SAdd(ctx, redisInstancesKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	return nil
}

// Load reads one snapshot.
func (s *RedisStore) Load(ctx context.Context, name string) (warmup.InstanceSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return warmup.InstanceSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return warmup.InstanceSnapshot{}, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	var snap warmup.InstanceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return warmup.InstanceSnapshot{}, fmt.Errorf("unmarshaling snapshot %s: %w", name, err)
	}
	return snap, nil
}

// LoadAll reads every registered snapshot, ordered by instance name. Names
// whose snapshot has gone missing are skipped.
func (s *RedisStore) LoadAll(ctx context.Context) ([]warmup.InstanceSnapshot, error) {
	names, err := s.client.SMembers(ctx, redisInstancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	sort.Strings(names)

	var out []warmup.InstanceSnapshot
	for _, name := range names {
		snap, err := s.Load(ctx, name)
		if errors.Is(err, ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
