package steps

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	SerializeNone  = "none"
	SerializeLocal = "local"
	SerializeRedis = "redis"
)

// Serializer orders concurrent pipeline runs that share a key.
type Serializer interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// SerializeKey scopes serialization to the user's external id, the same key
// users are resolved by. A reset that swaps the conversation mid-flight is
// still covered, and so is one id arriving on two channels.
func SerializeKey(externalID string) string {
	return "user:" + strings.TrimSpace(externalID)
}

type noopSerializer struct{}

// NoopSerializer applies no mutual exclusion.
func NoopSerializer() Serializer { return noopSerializer{} }

func (noopSerializer) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalSerializer is an in-process keyed mutex. Acquire waits until the key is
// free or ctx is done.
func LocalSerializer() Serializer {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l := k.locks[key]
	if l == nil {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, l)
		return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.unref(key, l)
		})
	}, nil
}

func (k *keyedMutex) unref(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
