package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"petpals/internal/observability"
)

// ChangeFeed tells subscribers that a collection changed. Signals carry no
// payload; a listener re-runs its query when one arrives. Bursts of changes
// may coalesce into a single signal.
type ChangeFeed interface {
	Publish(ctx context.Context, collection string) error
	// Listen registers interest in collection. The returned release func
	// unregisters and is safe to call more than once.
	Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// LocalChangeFeed fans change signals out within one process.
type LocalChangeFeed struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]chan struct{}
}

// NewLocalChangeFeed returns an empty in-process feed.
func NewLocalChangeFeed() *LocalChangeFeed {
	return &LocalChangeFeed{listeners: make(map[string]map[int]chan struct{})}
}

// Publish implements ChangeFeed.
func (f *LocalChangeFeed) Publish(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.listeners[collection] {
		signal(ch)
	}
	return nil
}

// Listen implements ChangeFeed.
func (f *LocalChangeFeed) Listen(_ context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	id := f.next
	f.next++
	if f.listeners[collection] == nil {
		f.listeners[collection] = make(map[int]chan struct{})
	}
	f.listeners[collection][id] = ch
	f.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.listeners[collection], id)
			if len(f.listeners[collection]) == 0 {
				delete(f.listeners, collection)
			}
		})
	}
	return ch, release, nil
}

// ListenerCount returns the number of live listeners on collection.
func (f *LocalChangeFeed) ListenerCount(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[collection])
}

// RedisChangeFeed carries change signals over Redis pub/sub so subscribers
// on every API instance see writes made by any of them.
type RedisChangeFeed struct {
	client *redis.Client
	prefix string
}

// NewRedisChangeFeed returns a feed publishing on "<prefix><collection>".
func NewRedisChangeFeed(client *redis.Client, prefix string) *RedisChangeFeed {
	if prefix == "" {
		prefix = "docstore:changes:"
	}
	return &RedisChangeFeed{client: client, prefix: prefix}
}

func (f *RedisChangeFeed) channel(collection string) string {
	return f.prefix + collection
}

// Publish implements ChangeFeed.
func (f *RedisChangeFeed) Publish(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, f.channel(collection), "1").Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// Listen implements ChangeFeed. It returns once the Redis subscription is
// confirmed, so a Publish issued after Listen returns is never missed.
func (f *RedisChangeFeed) Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		observability.RedisErrorRate.WithLabelValues("subscribe").Inc()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in change feed listener", slog.Any("panic", r), slog.String("collection", collection))
			}
		}()
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				release()
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	return out, release, nil
}

// publishAll signals every collection in touched, logging failures. A lost
// signal only delays subscribers until the next change.
func publishAll(ctx context.Context, feed ChangeFeed, touched map[string]struct{}) {
	for c := range touched {
		if err := feed.Publish(ctx, c); err != nil {
			slog.WarnContext(ctx, "change feed publish failed", slog.String("collection", c), slog.String("error", err.Error()))
		}
	}
}
