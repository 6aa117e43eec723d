package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrSyncInProgress means another worker holds the team's sync lock.
var ErrSyncInProgress = errors.New("ITSM sync already in progress for this team")

const syncLockTTL = 2 * time.Minute

// SyncLocker serializes ITSM syncs per team across processes. The release
// func is always safe to call.
type SyncLocker interface {
	Acquire(ctx context.Context, teamID uint) (release func(), err error)
}

type noopSyncLocker struct{}

func (noopSyncLocker) Acquire(context.Context, uint) (func(), error) {
	return func() {}, nil
}

// RedisSyncLocker backs SyncLocker with bsm/redislock.
type RedisSyncLocker struct {
	client *redis.Client
	locker *redislock.Client
}

// NewSyncLocker returns a Redis-backed locker when Redis is enabled and
// reachable. Without Redis, queue dedup on (team, external id) is the only
// guard, so the fallback lock is a no-op.
func NewSyncLocker(cfg *config.RedisConfig) SyncLocker {
	if cfg == nil || !cfg.Enabled {
		return noopSyncLocker{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("[SyncLock] Redis unavailable, sync lock disabled: %v", err)
		client.Close()
		return noopSyncLocker{}
	}
	logger.Infof("[SyncLock] Redis sync lock enabled at %s", cfg.Addr)
	return &RedisSyncLocker{client: client, locker: redislock.New(client)}
}

func (l *RedisSyncLocker) Acquire(ctx context.Context, teamID uint) (func(), error) {
	lock, err := l.locker.Obtain(ctx, fmt.Sprintf("ensemble:itsm-sync:%d", teamID), syncLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return func() {}, ErrSyncInProgress
	}
	if err != nil {
		return func() {}, err
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warnf("[SyncLock] release team %d: %v", teamID, err)
		}
	}, nil
}

func (l *RedisSyncLocker) Close() error {
	return l.client.Close()
}
