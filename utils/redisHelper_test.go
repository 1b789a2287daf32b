package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestObtainLockSerializesSameKey(t *testing.T) {
	ctx := context.Background()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := ObtainLock(ctx, PaintLockKey("p1"))
			if err != nil {
				t.Errorf("ObtainLock: %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxInside)
	}
	localLocks.mu.Lock()
	defer localLocks.mu.Unlock()
	if len(localLocks.slots) != 0 {
		t.Fatalf("released keys must be dropped, %d left", len(localLocks.slots))
	}
}

func TestObtainLockDistinctKeysDoNotBlock(t *testing.T) {
	ctx := context.Background()
	releaseA, err := ObtainLock(ctx, JobLockKey("a"))
	if err != nil {
		t.Fatalf("ObtainLock(a): %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := ObtainLock(ctx, JobLockKey("b"))
		if err == nil {
			releaseB()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on another key blocked")
	}
}

func TestObtainLockHonoursContext(t *testing.T) {
	release, err := ObtainLock(context.Background(), ShiftLockKey())
	if err != nil {
		t.Fatalf("ObtainLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ObtainLock(ctx, ShiftLockKey()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// releasing twice is harmless
	release()
	release()

	again, err := ObtainLock(context.Background(), ShiftLockKey())
	if err != nil {
		t.Fatalf("ObtainLock after release: %v", err)
	}
	again()
}
