package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("platform/cache: lock held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Mutex is a single-holder lock on one Redis key.
type Mutex struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	token  string
}

// NewMutex prepares a lock on key that expires after ttl unless released.
func NewMutex(client redis.UniversalClient, key string, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Mutex{client: client, key: key, ttl: ttl}
}

// Key returns the locked key.
func (m *Mutex) Key() string { return m.key }

// Acquire takes the lock or returns ErrLockHeld.
func (m *Mutex) Acquire(ctx context.Context) error {
	token, err := newToken()
	if err != nil {
		return err
	}
	ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	m.token = token
	return nil
}

// Release drops the lock if this Mutex still holds it.
func (m *Mutex) Release(ctx context.Context) error {
	if m.token == "" {
		return nil
	}
	_, err := releaseScript.Run(ctx, m.client, []string{m.key}, m.token).Result()
	m.token = ""
	return err
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
