package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

// flushTimeout bounds the final flush after the sync loop stops.
const flushTimeout = 10 * time.Second

// Syncer copies registry state to a Store.
type Syncer struct {
	registry *warmup.Registry
	store    Store
	interval time.Duration

	mu   sync.Mutex
	last map[string][]byte
}

// NewSyncer creates a syncer that flushes every interval.
func NewSyncer(registry *warmup.Registry, store Store, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		registry: registry,
		store:    store,
		interval: interval,
		last:     make(map[string][]byte),
	}
}

// Restore loads every stored snapshot into the registry and returns how
// many instances were restored. A snapshot the registry rejects is logged
// and skipped.
func (s *Syncer) Restore(ctx context.Context) (int, error) {
	snaps, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading snapshots: %w", err)
	}
	restored := 0
	for _, snap := range snaps {
		if err := s.registry.Restore(snap); err != nil {
			logger.Warn("skipping snapshot", "instance", snap.Config.InstanceName, "error", err)
			continue
		}
		if data, err := json.Marshal(snap); err == nil {
			s.mu.Lock()
			s.last[snap.Config.InstanceName] = data
			s.mu.Unlock()
		}
		restored++
	}
	return restored, nil
}

// Flush saves every instance whose state changed since its last save and
// returns how many were written.
func (s *Syncer) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := 0
	var firstErr error
	for _, name := range s.registry.Instances() {
		snap, err := s.registry.Snapshot(name)
		if err != nil {
			continue
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return saved, fmt.Errorf("marshaling snapshot %s: %w", name, err)
		}
		if bytes.Equal(data, s.last[name]) {
			continue
		}
		if err := s.store.Save(ctx, snap); err != nil {
			logger.Error("snapshot save failed", "instance", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.last[name] = data
		saved++
	}
	return saved, firstErr
}

// Start flushes every interval until ctx is cancelled, then flushes once
// more so the latest state survives shutdown.
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			if n, err := s.Flush(final); err != nil {
				logger.Error("final snapshot flush failed", "error", err)
			} else {
				logger.Info("final snapshot flush", "instances", n)
			}
			cancel()
			return
		case <-ticker.C:
			if n, err := s.Flush(ctx); err == nil && n > 0 {
				logger.Debug("snapshots flushed", "instances", n)
			}
		}
	}
}
