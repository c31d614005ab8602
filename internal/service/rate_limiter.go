package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSearchAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// SearchRateLimiter limita las búsquedas por credencial en una ventana fija.
type SearchRateLimiter interface {
	Allow(key string) bool
}

type memoryWindow struct {
	start time.Time
	count int
}

type memorySearchRateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     func() time.Time
	windows map[string]*memoryWindow
}

// NewMemorySearchRateLimiter devuelve nil si max <= 0, lo que desactiva el límite.
func NewMemorySearchRateLimiter(window time.Duration, max int) SearchRateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memorySearchRateLimiter{
		window:  window,
		max:     max,
		now:     func() time.Time { return time.Now().UTC() },
		windows: make(map[string]*memoryWindow),
	}
}

func (l *memorySearchRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		if !ok && len(l.windows) >= 1024 {
			l.pruneLocked(now)
		}
		w = &memoryWindow{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.max
}

func (l *memorySearchRateLimiter) pruneLocked(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, k)
		}
	}
}

type redisSearchRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func NewRedisSearchRateLimiter(client *redis.Client, window time.Duration, max int) SearchRateLimiter {
	if client == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &redisSearchRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "search:rl:",
	}
}

// Allow falla abierto si Redis no responde.
func (l *redisSearchRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisSearchAllowScript, []string{l.prefix + normalizedKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
