package redis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/memory"
)

// mapKV mimics Cache with a JSON-encoding map.
type mapKV struct {
	mu   sync.Mutex
	data  map[string][]byte
	fail  error
	calls int
}

func newMapKV() *mapKV { return &mapKV{data: make(map[string][]byte)} }

func (m *mapKV) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	b, ok := m.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *mapKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *mapKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type countingProfiles struct {
	profile.Repository
	gets int
}

func (c *countingProfiles) Get(ctx context.Context, id string) (*profile.Profile, error) {
	c.gets++
	return c.Repository.Get(ctx, id)
}

func seededProfiles(t *testing.T) *countingProfiles {
	t.Helper()
	store := memory.NewStore()
	p, err := profile.NewProfile("abc", "a@example.com", profile.RoleStudent, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Profiles().Create(context.Background(), p))
	return &countingProfiles{Repository: store.Profiles()}
}

func TestCachedProfileRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	repo := NewCachedProfileRepository(next, kv, 0, nil)

	first, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "abc")
	require.NoError(t, err)

	assert.Equal(t, 1, next.gets)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, profile.RoleStudent, second.Role)
	assert.True(t, kv.has(ProfileKey("abc")))
}

func TestCachedProfileRepository_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	repo := NewCachedProfileRepository(next, kv, time.Minute, nil)

	_, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	require.NoError(t, repo.SetCompanion(ctx, "abc", companion.SpeciesCat))
	assert.False(t, kv.has(ProfileKey("abc")))

	got, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, companion.SpeciesCat, got.SelectedCompanion)
	assert.Equal(t, 2, next.gets)
}

func TestCachedProfileRepository_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	repo := NewCachedProfileRepository(next, kv, time.Minute, nil)

	_, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	err = repo.AssignMentor(ctx, "abc", "missing")
	require.Error(t, err)
	assert.True(t, kv.has(ProfileKey("abc")))
}

func TestCachedProfileRepository_DegradesWhenCacheDown(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	kv.fail = errors.New("connection refused")
	repo := NewCachedProfileRepository(next, kv, time.Minute, nil)

	for i := 0; i < 2; i++ {
		p, err := repo.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", p.ID)
	}
	assert.Equal(t, 2, next.gets)

	_, err := repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, shared.ErrProfileNotFound)
}

func TestCachedProfileRepository_BreakerSkipsDeadCache(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	kv.fail = errors.New("i/o timeout")
	repo := NewCachedProfileRepository(next, kv, time.Minute, nil)

	// Each read costs a failed Get and a failed Set until the breaker opens.
	for i := 0; i < 3; i++ {
		_, err := repo.Get(ctx, "abc")
		require.NoError(t, err)
	}
	calls := kv.calls

	for i := 0; i < 3; i++ {
		p, err := repo.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", p.ID)
	}
	assert.Equal(t, calls, kv.calls, "open breaker keeps reads off redis")
	assert.Equal(t, 6, next.gets)
}

func TestCachedProfileRepository_MissesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	next := seededProfiles(t)
	kv := newMapKV()
	repo := NewCachedProfileRepository(next, kv, time.Minute, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Invalidate(ctx, "abc"))
		_, err := repo.Get(ctx, "abc")
		require.NoError(t, err)
	}
	assert.True(t, kv.has(ProfileKey("abc")))
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(&fakeCounter{counts: map[string]int64{}}, 2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "identifiers are counted separately")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, ok, "new window resets the count")
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2"}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "http://nope"}.Options()
	assert.Error(t, err)
}

// Live tests: TEST_REDIS_URL=redis://localhost:6379/15 go test ./...
func openRedis(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	c, err := NewCache(context.Background(), Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_Live(t *testing.T) {
	c := openRedis(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	var out map[string]int
	assert.ErrorIs(t, c.Get(ctx, key, &out), ErrCacheMiss)
	require.NoError(t, c.Set(ctx, key, map[string]int{"n": 1}, time.Minute))
	require.NoError(t, c.Get(ctx, key, &out))
	assert.Equal(t, 1, out["n"])
	require.NoError(t, c.Delete(ctx, key))

	n, err := c.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ttl, err := c.Client().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	_ = c.Delete(ctx, key)
}

func TestMessageBroker_Live(t *testing.T) {
	c := openRedis(t)
	ctx := context.Background()
	b := NewMessageBroker(c, 0)

	conv, err := chat.NewConversation("s"+uuid.NewString()[:8], "m"+uuid.NewString()[:8])
	require.NoError(t, err)
	l, err := b.Listen(ctx, conv.ID)
	require.NoError(t, err)
	defer l.Close()

	m, err := chat.NewMessage(conv, uuid.NewString(), conv.A, "hi")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, m))

	select {
	case got := <-l.C():
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, "hi", got.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
