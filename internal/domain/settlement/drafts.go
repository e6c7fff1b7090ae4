package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abdihaliim1/tmsv3-sub004/internal/platform/cache"
)

const (
	draftKeyPrefix = "settlement:draft:"
	lockScopePayee = "payee"
)

type DraftStore interface {
	Save(ctx context.Context, draft Draft, ttl time.Duration) error
	Load(ctx context.Context, id string) (Draft, error)
	Delete(ctx context.Context, id string) error
}

// PayeeLocker serialises commits per payee. Release must be safe to call
// after the lock has expired.
type PayeeLocker interface {
	Lock(ctx context.Context, payeeID string, ttl time.Duration) (release func(), err error)
}

type RedisDrafts struct {
	store *cache.Store
}

func NewRedisDrafts(client *redis.Client) *RedisDrafts {
	return &RedisDrafts{store: cache.NewStore(client, draftKeyPrefix)}
}

func (r *RedisDrafts) Save(ctx context.Context, draft Draft, ttl time.Duration) error {
	return r.store.SetJSON(ctx, draft.Settlement.ID, draft, ttl)
}

func (r *RedisDrafts) Load(ctx context.Context, id string) (Draft, error) {
	var draft Draft
	found, err := r.store.GetJSON(ctx, id, &draft)
	if err != nil {
		return Draft{}, err
	}
	if !found {
		return Draft{}, ErrDraftNotFound
	}
	return draft, nil
}

func (r *RedisDrafts) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

// MemoryDrafts is used when no Redis is configured. Drafts live only in this
// process.
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
	now    func() time.Time
}

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: map[string]Draft{}, now: time.Now}
}

func (m *MemoryDrafts) Save(_ context.Context, draft Draft, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft.ExpiresAt = m.now().Add(ttl)
	m.drafts[draft.Settlement.ID] = draft
	return nil
}

func (m *MemoryDrafts) Load(_ context.Context, id string) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft, ok := m.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	if m.now().After(draft.ExpiresAt) {
		delete(m.drafts, id)
		return Draft{}, ErrDraftNotFound
	}
	return draft, nil
}

func (m *MemoryDrafts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

type RedisLocker struct {
	locks *cache.LockStore
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locks: cache.NewLockStore(client)}
}

func (r *RedisLocker) Lock(ctx context.Context, payeeID string, ttl time.Duration) (func(), error) {
	token, err := r.locks.Acquire(ctx, lockScopePayee, payeeID, ttl)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrPayeeBusy
	}
	return func() {
		// The caller's context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.locks.Release(ctx, lockScopePayee, payeeID, token)
	}, nil
}

// LocalLocker is the single-process fallback for RedisLocker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]bool{}}
}

func (l *LocalLocker) Lock(_ context.Context, payeeID string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[payeeID] {
		return nil, ErrPayeeBusy
	}
	l.held[payeeID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, payeeID)
	}, nil
}
