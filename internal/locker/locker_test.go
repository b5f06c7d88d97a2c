package locker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSerializesSameName(t *testing.T) {
	r := NewRegistry(time.Minute)

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := r.Acquire("svc1")
			defer lock.Release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestAcquireDistinctNamesDoNotBlock(t *testing.T) {
	r := NewRegistry(time.Minute)

	lock1 := r.Acquire("svc1")
	defer lock1.Release()

	done := make(chan struct{})
	go func() {
		lock2 := r.Acquire("svc2")
		lock2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on a distinct name blocked")
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)

	// Held and never released, as if the holder crashed.
	_ = r.Acquire("svc1")

	done := make(chan struct{})
	go func() {
		lock := r.Acquire("svc1")
		lock.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stale lock was never reclaimed")
	}
}

func TestReleaseOfReclaimedLockIsNoop(t *testing.T) {
	r := NewRegistry(30 * time.Millisecond)

	abandoned := r.Acquire("svc1")
	time.Sleep(50 * time.Millisecond)

	fresh := r.Acquire("svc1")

	// The stale holder coming back must not unlock the fresh holder.
	abandoned.Release()

	acquired := make(chan struct{})
	go func() {
		lock := r.Acquire("svc1")
		lock.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reclaimed lock release freed the fresh lock")
	case <-time.After(100 * time.Millisecond):
	}

	fresh.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}

func TestReclaimStaleSweep(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)

	_ = r.Acquire("stale1")
	_ = r.Acquire("stale2")
	held := r.Acquire("fresh")

	time.Sleep(40 * time.Millisecond)
	held.Touch()

	reclaimed := r.ReclaimStale()
	assert.ElementsMatch(t, []string{"stale1", "stale2"}, reclaimed)

	// Reclaimed names are acquirable again without waiting.
	done := make(chan struct{})
	go func() {
		lock := r.Acquire("stale1")
		lock.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimed name still blocked")
	}

	held.Release()
}

func TestTouchKeepsHeldLockFresh(t *testing.T) {
	r := NewRegistry(40 * time.Millisecond)

	held := r.Acquire("svc1")
	for range 5 {
		time.Sleep(15 * time.Millisecond)
		held.Touch()
	}

	// 75ms have passed but the holder kept touching, so the lock is
	// not stale.
	assert.Empty(t, r.ReclaimStale())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"svc1"}, r.ReclaimStale())
}

func TestTouchOfReclaimedLockIsNoop(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)

	abandoned := r.Acquire("svc1")
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, []string{"svc1"}, r.ReclaimStale())

	// A stale holder coming back must not resurrect its lock.
	abandoned.Touch()

	done := make(chan struct{})
	go func() {
		lock := r.Acquire("svc1")
		lock.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("name still blocked after reclaim")
	}
}

func TestTouchInterval(t *testing.T) {
	assert.Equal(t, 100*time.Second, NewRegistry(300*time.Second).TouchInterval())
	assert.Equal(t, time.Millisecond, NewRegistry(0).TouchInterval())
}

func TestAcquireAfterRelease(t *testing.T) {
	r := NewRegistry(time.Minute)

	lock := r.Acquire("svc1")
	lock.Release()

	done := make(chan struct{})
	go func() {
		again := r.Acquire("svc1")
		again.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "reacquire after release blocked")
	}
}
