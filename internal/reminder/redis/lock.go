package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const scanLockKey = "studyplanner:reminder_scan_lock"

// DefaultLockTTL bounds how long a crashed instance can hold the scan lock.
const DefaultLockTTL = 2 * time.Minute

// ScanLock is a SetNX-based lock that keeps reminder scans from running
// concurrently across service instances. Each Acquire writes a fresh token so
// Release only deletes a lock this instance still owns.
type ScanLock struct {
	Client *redis.Client
	TTL    time.Duration

	token string
}

func NewScanLock(client *redis.Client, ttl time.Duration) *ScanLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &ScanLock{Client: client, TTL: ttl}
}

// Acquire attempts to take the scan lock. Returns false when another holder
// has it.
func (l *ScanLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, scanLockKey, token, l.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it. A lock that
// expired and was re-acquired elsewhere is left alone.
func (l *ScanLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	val, err := l.Client.Get(ctx, scanLockKey).Result()
	if err == redis.Nil {
		l.token = ""
		return nil
	}
	if err != nil {
		return err
	}
	if val == l.token {
		_, err = l.Client.Del(ctx, scanLockKey).Result()
	}
	l.token = ""
	return err
}
