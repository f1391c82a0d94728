// Package sessions issues opaque session tokens for back-office logins.
// Only the SHA-256 of a token is stored, so a leaked store cannot be replayed.
package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	Principal model.Principal `json:"principal"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Backend stores sessions by token hash.
type Backend interface {
	Save(ctx context.Context, key string, s Session, ttl time.Duration) error
	Load(ctx context.Context, key string) (Session, error)
	Delete(ctx context.Context, key string) error
}

type Manager struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

func NewManager(backend Backend, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{backend: backend, ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Create starts a session and returns the token to hand to the client.
func (m *Manager) Create(ctx context.Context, p model.Principal) (string, Session, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", Session{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b[:])
	now := m.now().UTC()
	s := Session{Principal: p, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.backend.Save(ctx, hashToken(token), s, m.ttl); err != nil {
		return "", Session{}, err
	}
	return token, s, nil
}

func (m *Manager) Resolve(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNotFound
	}
	s, err := m.backend.Load(ctx, hashToken(token))
	if err != nil {
		return Session{}, err
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Destroy is idempotent.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.backend.Delete(ctx, hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RedisBackend shares sessions between admin-service replicas.
type RedisBackend struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisBackend(rdb redis.Cmdable, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "bo:session"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (r *RedisBackend) Save(ctx context.Context, key string, s Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.prefix+":"+key, raw, ttl).Err()
}

func (r *RedisBackend) Load(ctx context.Context, key string) (Session, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+":"+key).Err()
}

// MemoryBackend is for single-instance and local runs.
type MemoryBackend struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]Session
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{now: time.Now, data: map[string]Session{}}
}

func (m *MemoryBackend) Save(_ context.Context, key string, s Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, v := range m.data {
		if now.After(v.ExpiresAt) {
			delete(m.data, k)
		}
	}
	m.data[key] = s
	return nil
}

func (m *MemoryBackend) Load(_ context.Context, key string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
