// Package storage persists warm-up state between restarts. The registry
// stays authoritative in memory; a Syncer periodically writes per-instance
// snapshots to a Store and reloads them at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/whatsapp-warmup/internal/config"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// ErrSnapshotNotFound is returned by Load when no snapshot exists.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store persists instance snapshots.
type Store interface {
	Save(ctx context.Context, snap warmup.InstanceSnapshot) error
	Load(ctx context.Context, name string) (warmup.InstanceSnapshot, error)
	LoadAll(ctx context.Context) ([]warmup.InstanceSnapshot, error)
}

// Open builds the snapshot store named by cfg.Type. It returns a nil Store
// when snapshots are disabled ("none").
func Open(ctx context.Context, cfg config.StorageConfig, rdb *redis.Client) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("storage type redis requires redis.url")
		}
		return NewRedisStore(rdb), nil
	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("storage type dynamodb requires storage.dynamodb_table")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, err
		}
		return NewDynamoStoreFromConfig(awsCfg, cfg.DynamoDBTable), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
