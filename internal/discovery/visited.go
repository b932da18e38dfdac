package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// VisitedSet records which pages a crawl has already queued.
type VisitedSet interface {
	// Add marks page as visited and reports whether it was new.
	Add(ctx context.Context, page string) (bool, error)

	// Reset forgets every page.
	Reset(ctx context.Context) error
}

// MemoryVisited is a VisitedSet held in process memory.
type MemoryVisited struct {
	mu    sync.Mutex
	pages map[string]struct{}
}

// NewMemoryVisited creates an empty in-memory set.
func NewMemoryVisited() *MemoryVisited {
	return &MemoryVisited{pages: make(map[string]struct{})}
}

func (m *MemoryVisited) Add(_ context.Context, page string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[page]; ok {
		return false, nil
	}
	m.pages[page] = struct{}{}
	return true, nil
}

func (m *MemoryVisited) Reset(context.Context) error {
	m.mu.Lock()
	m.pages = make(map[string]struct{})
	m.mu.Unlock()
	return nil
}

// RedisVisited keeps the visited set in a Redis set so several scan
// processes against the same target can share crawl state.
type RedisVisited struct {
	client *redis.Client
	key    string
}

// NewRedisVisited wraps an existing client. key names the Redis set.
func NewRedisVisited(client *redis.Client, key string) *RedisVisited {
	return &RedisVisited{client: client, key: key}
}

// DialRedis parses a redis:// URL, connects and pings the server.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("discovery: ping redis: %w", err)
	}
	return rdb, nil
}

func (r *RedisVisited) Add(ctx context.Context, page string) (bool, error) {
	n, err := r.client.SAdd(ctx, r.key, page).Result()
	if err != nil {
		return false, fmt.Errorf("discovery: redis sadd: %w", err)
	}
	return n == 1, nil
}

func (r *RedisVisited) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("discovery: redis del: %w", err)
	}
	return nil
}

var (
	_ VisitedSet = (*MemoryVisited)(nil)
	_ VisitedSet = (*RedisVisited)(nil)
)
