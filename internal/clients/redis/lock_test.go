package redis

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

func testLock(t *testing.T) *KeyLock {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := NewClient(context.Background(), logger.Nop(), Config{Addr: addr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewKeyLock(logger.Nop(), rdb, LockConfig{Prefix: "medi:test:" + uuid.NewString() + ":", TTL: 5 * time.Second, Poll: 5 * time.Millisecond})
}

func TestNewClientRequiresAddr(t *testing.T) {
	if _, err := NewClient(context.Background(), logger.Nop(), Config{}); err == nil {
		t.Fatalf("NewClient: want error for missing addr")
	}
}

func TestKeyLockSerializesHolders(t *testing.T) {
	l := testLock(t)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "whatsapp:+1555")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("lock holders overlapped: max=%d", maxInside)
	}
}

func TestKeyLockAcquireHonoursContext(t *testing.T) {
	l := testLock(t)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Acquire while held: want ErrLockTimeout got=%v", err)
	}
}
