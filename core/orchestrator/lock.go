package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"costplan/internal/errors"
)

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the lock only when the caller still holds it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// LockManager hands out per-job leader locks backed by Redis. Only the
// holder of the lock may advance a job; the TTL bounds how long a dead
// orchestrator can block a job.
type LockManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLockManager creates a lock manager with the given lease TTL.
func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	return &LockManager{client: client, ttl: ttl}
}

// Lease is one held job lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes the leader lock for a job. A held lock is a conflict,
// not an error to retry blindly.
func (m *LockManager) Acquire(ctx context.Context, jobID string) (*Lease, error) {
	key := "job:" + jobID
	token := uuid.New().String()

	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, errors.Upstream("acquiring job lock", err)
	}
	if !ok {
		return nil, errors.Newf(errors.TypeConflict, "job %s is locked by another orchestrator", jobID)
	}
	return &Lease{client: m.client, key: key, token: token, ttl: m.ttl}, nil
}

// Renew extends the lease. Losing the lock mid-pipeline is fatal for
// this holder; the caller must stop advancing the job.
func (l *Lease) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return errors.Upstream("renewing job lock", err)
	}
	if res == 0 {
		return errors.Newf(errors.TypeConflict, "lost lock %s", l.key)
	}
	return nil
}

// Release gives up the lease. Releasing a lock already taken over by
// another holder is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		return errors.Upstream("releasing job lock", err)
	}
	return nil
}
