package executor

import (
	"context"
	"testing"
	"time"

	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

func TestNonceLockInMemorySerializesSameKey(t *testing.T) {
	nl := NewNonceLock(nil, logger.New("test"))
	ctx := context.Background()

	unlock, err := nl.Lock(ctx, 1, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		unlock2, err := nl.Lock(ctx, 1, "0xabc")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		unlock2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("expected second lock to block while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected second lock to acquire after first released")
	}
}

func TestNonceLockInMemoryAllowsDifferentKeys(t *testing.T) {
	nl := NewNonceLock(nil, logger.New("test"))
	ctx := context.Background()

	unlock1, err := nl.Lock(ctx, 1, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2, err := nl.Lock(ctx, 1, "0xdef")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected lock on a different key to acquire immediately")
	}
}

func TestNonceLockRedisBacked(t *testing.T) {
	nl := NewNonceLock(&memRedisClient{}, logger.New("test"))
	ctx := context.Background()

	unlock, err := nl.Lock(ctx, 1, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlock()

	unlock2, err := nl.Lock(ctx, 1, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error acquiring after release: %v", err)
	}
	unlock2()
}
